package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// Document is one row in the documents table. ContentHash carries a unique
// index; a re-upload of the same bytes resolves to the existing row.
type Document struct {
	ID            uuid.UUID
	ContentHash   string
	Filename      string
	MIMEType      string
	ByteSize      int64
	DocumentType  constants.DocumentType
	TypeDeclared  bool // true when the type came from the caller, not the classifier
	Status        constants.Status
	StorageKey    string
	FailureReason string
	ClaimedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Extraction is one immutable extraction result. Version is monotonic per
// document; re-extraction inserts a new row.
type Extraction struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	Version      int
	DocumentType constants.DocumentType
	Payload      []byte // enriched structured payload, JSON
	RawResponse  []byte // model output retained for audit
	Confidence   float64
	Level        constants.ConfidenceLevel
	Model        string
	Warnings     []string // model-reported caveats, e.g. an unreadable field
	PageCount    int
	TokensIn     int
	TokensOut    int
	CreatedAt    time.Time
}

// ValidationReport is the persisted report, 1:1 with the extraction it
// evaluated.
type ValidationReport struct {
	ID           uuid.UUID
	ExtractionID uuid.UUID
	Passed       bool
	Confidence   float64
	Level        constants.ConfidenceLevel
	Defects      []byte // JSON array of defects
	CreatedAt    time.Time
}
