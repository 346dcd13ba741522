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

type Validations struct {
	pool *pgxpool.Pool
}

func NewValidations(pool *pgxpool.Pool) *Validations {
	return &Validations{pool: pool}
}

// Insert stores the report produced for one extraction. The extraction_id
// unique index enforces the 1:1 relationship.
func (r *Validations) Insert(ctx context.Context, v *ValidationReport) (*ValidationReport, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO validation_reports
			(id, extraction_id, passed, confidence, confidence_level, defects)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		v.ID, v.ExtractionID, v.Passed, v.Confidence, v.Level, v.Defects)
	if err := row.Scan(&v.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert validation report: %w", err)
	}
	return v, nil
}

// ByExtraction fetches the report tied to one extraction.
func (r *Validations) ByExtraction(ctx context.Context, extractionID uuid.UUID) (*ValidationReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, extraction_id, passed, confidence, confidence_level, defects, created_at
		FROM validation_reports
		WHERE extraction_id = $1`, extractionID)

	var v ValidationReport
	err := row.Scan(&v.ID, &v.ExtractionID, &v.Passed, &v.Confidence, &v.Level, &v.Defects, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan validation report: %w", err)
	}
	return &v, nil
}
