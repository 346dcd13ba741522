package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

type Documents struct {
	pool *pgxpool.Pool
}

func NewDocuments(pool *pgxpool.Pool) *Documents {
	return &Documents{pool: pool}
}

const documentColumns = `id, content_hash, filename, mime_type, byte_size,
	document_type, type_declared, status, storage_key,
	coalesce(failure_reason, ''), claimed_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.ContentHash, &d.Filename, &d.MIMEType, &d.ByteSize,
		&d.DocumentType, &d.TypeDeclared, &d.Status, &d.StorageKey,
		&d.FailureReason, &d.ClaimedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

// Create inserts a new document in pending status. A content-hash conflict
// returns the already-stored document and ErrDuplicate.
func (r *Documents) Create(ctx context.Context, d *Document) (*Document, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents
			(id, content_hash, filename, mime_type, byte_size,
			 document_type, type_declared, status, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ContentHash, d.Filename, d.MIMEType, d.ByteSize,
		d.DocumentType, d.TypeDeclared, constants.StatusPending, d.StorageKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, findErr := r.FindByHash(ctx, d.ContentHash)
			if findErr != nil {
				return nil, findErr
			}
			return existing, ErrDuplicate
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return r.GetByID(ctx, d.ID)
}

// ErrDuplicate signals a content-hash conflict; the returned document is the
// prior upload.
var ErrDuplicate = errors.New("document already exists")

func (r *Documents) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (r *Documents) FindByHash(ctx context.Context, hash string) (*Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = $1`, hash)
	return scanDocument(row)
}

// ClaimForProcessing is the take-ownership step. The conditional update is
// the advisory lock: only a pending document, or a processing claim older
// than the liveness window, can be claimed. Returns false when another
// worker holds a live claim.
func (r *Documents) ClaimForProcessing(ctx context.Context, id uuid.UUID, liveness time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, claimed_at = now(), updated_at = now()
		WHERE id = $1
		  AND (status = $3
		       OR (status = $2 AND claimed_at < now() - $4::interval))`,
		id, constants.StatusProcessing, constants.StatusPending, liveness.String())
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceStage moves a document between pipeline stages with compare-and-set
// semantics. Returns false when the document was not in the expected stage,
// which signals a concurrent reclaim or cancellation.
func (r *Documents) AdvanceStage(ctx context.Context, id uuid.UUID, from, to constants.Status) (bool, error) {
	if !constants.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("advance stage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetDocumentType records the classifier's decision.
func (r *Documents) SetDocumentType(ctx context.Context, id uuid.UUID, t constants.DocumentType) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents SET document_type = $2, updated_at = now() WHERE id = $1`,
		id, t)
	if err != nil {
		return fmt.Errorf("set document type: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with its human-readable reason.
// Conditional on the document still being in-flight: a worker whose claim was
// reclaimed must not stomp the new owner's run. Returns false on a lost race.
func (r *Documents) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = $3, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`,
		id, constants.StatusFailed, reason, activeStatuses())
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkNeedsReview parks a low-confidence document for manual resolution.
// Same lost-race semantics as MarkFailed.
func (r *Documents) MarkNeedsReview(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = $3, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`,
		id, constants.StatusNeedsReview, reason, activeStatuses())
	if err != nil {
		return false, fmt.Errorf("mark needs_review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted finishes a run. Same lost-race semantics as MarkFailed.
func (r *Documents) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = NULL, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, constants.StatusCompleted, activeStatuses())
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetForRetry returns a failed document to pending for a fresh run. The
// stored raw bytes are reused; nothing is re-uploaded.
func (r *Documents) ResetForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = NULL, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, constants.StatusPending, constants.StatusFailed, constants.StatusNeedsReview)
	if err != nil {
		return false, fmt.Errorf("reset for retry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StaleProcessing lists documents whose processing claim outlived the
// liveness window, candidates for reclaim.
func (r *Documents) StaleProcessing(ctx context.Context, liveness time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM documents
		WHERE status = ANY($1) AND claimed_at < now() - $2::interval
		ORDER BY claimed_at
		LIMIT $3`,
		activeStatuses(), liveness.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale document: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RequeueStale returns a stuck in-flight document to pending so a worker can
// reclaim it. Conditional on the claim still being stale.
func (r *Documents) RequeueStale(ctx context.Context, id uuid.UUID, liveness time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($3) AND claimed_at < now() - $4::interval`,
		id, constants.StatusPending, activeStatuses(), liveness.String())
	if err != nil {
		return false, fmt.Errorf("requeue stale: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByStatus pages documents in one status, newest first.
func (r *Documents) ListByStatus(ctx context.Context, status constants.Status, limit, offset int) ([]*Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func activeStatuses() []string {
	stages := constants.Stages()
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, string(s))
	}
	return out
}
