// Package pipeline drives a document from pending to a terminal status: the
// stage state machine, per-stage retry budgets, and terminal-state decisions.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/document"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
)

// DocumentStore is the slice of the repository the orchestrator needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Document, error)
	FindByHash(ctx context.Context, hash string) (*repository.Document, error)
	Create(ctx context.Context, d *repository.Document) (*repository.Document, error)
	ClaimForProcessing(ctx context.Context, id uuid.UUID, liveness time.Duration) (bool, error)
	AdvanceStage(ctx context.Context, id uuid.UUID, from, to constants.Status) (bool, error)
	SetDocumentType(ctx context.Context, id uuid.UUID, t constants.DocumentType) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkNeedsReview(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

type ExtractionStore interface {
	Insert(ctx context.Context, e *repository.Extraction) (*repository.Extraction, error)
	LatestByDocument(ctx context.Context, documentID uuid.UUID) (*repository.Extraction, error)
}

type ValidationStore interface {
	Insert(ctx context.Context, v *repository.ValidationReport) (*repository.ValidationReport, error)
}

// Normalizer is the format processor's contract.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, mimeType string) (*document.Result, error)
}

// Classifier decides a document type from page images.
type Classifier interface {
	Classify(ctx context.Context, pages []llm.PageImage) (llm.Classification, error)
}

// Extractor produces structured data for a known type. Retry and provider
// fallback live behind this interface.
type Extractor interface {
	Extract(ctx context.Context, docType constants.DocumentType, pages []llm.PageImage) (llm.Extraction, error)
}

// Enqueuer is the job-queue slice the ingest path needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID uuid.UUID) error
}
