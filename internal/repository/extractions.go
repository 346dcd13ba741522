package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

type Extractions struct {
	pool *pgxpool.Pool
}

func NewExtractions(pool *pgxpool.Pool) *Extractions {
	return &Extractions{pool: pool}
}

// Insert stores a new immutable extraction. Version is assigned inside the
// insert so concurrent re-extractions still get distinct monotonic versions.
func (r *Extractions) Insert(ctx context.Context, e *Extraction) (*Extraction, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Warnings == nil {
		e.Warnings = []string{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO extractions
			(id, document_id, version, document_type, payload, raw_response,
			 confidence, confidence_level, model, warnings, page_count, tokens_in, tokens_out)
		VALUES ($1, $2,
			(SELECT coalesce(max(version), 0) + 1 FROM extractions WHERE document_id = $2),
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING version, created_at`,
		e.ID, e.DocumentID, e.DocumentType, e.Payload, e.RawResponse,
		e.Confidence, e.Level, e.Model, e.Warnings, e.PageCount, e.TokensIn, e.TokensOut)
	if err := row.Scan(&e.Version, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert extraction: %w", err)
	}
	return e, nil
}

// LatestByDocument returns the highest-version extraction for a document.
func (r *Extractions) LatestByDocument(ctx context.Context, documentID uuid.UUID) (*Extraction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, document_id, version, document_type, payload, raw_response,
		       confidence, confidence_level, model, warnings, page_count, tokens_in, tokens_out, created_at
		FROM extractions
		WHERE document_id = $1
		ORDER BY version DESC
		LIMIT 1`, documentID)

	var e Extraction
	err := row.Scan(&e.ID, &e.DocumentID, &e.Version, &e.DocumentType, &e.Payload,
		&e.RawResponse, &e.Confidence, &e.Level, &e.Model, &e.Warnings, &e.PageCount,
		&e.TokensIn, &e.TokensOut, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan extraction: %w", err)
	}
	return &e, nil
}

// ListCompleted streams the latest extraction of every completed document,
// optionally filtered by type. Feeds the export surface.
func (r *Extractions) ListCompleted(ctx context.Context, docType string, limit int) ([]*Extraction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (e.document_id)
		       e.id, e.document_id, e.version, e.document_type, e.payload, e.raw_response,
		       e.confidence, e.confidence_level, e.model, e.warnings, e.page_count, e.tokens_in, e.tokens_out, e.created_at
		FROM extractions e
		JOIN documents d ON d.id = e.document_id
		WHERE d.status = 'completed'
		  AND ($1 = '' OR e.document_type = $1)
		ORDER BY e.document_id, e.version DESC
		LIMIT $2`, docType, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed extractions: %w", err)
	}
	defer rows.Close()

	var out []*Extraction
	for rows.Next() {
		var e Extraction
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Version, &e.DocumentType, &e.Payload,
			&e.RawResponse, &e.Confidence, &e.Level, &e.Model, &e.Warnings, &e.PageCount,
			&e.TokensIn, &e.TokensOut, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
