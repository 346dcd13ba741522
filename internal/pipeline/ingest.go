package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/hashing"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/metrics"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/storage"
)

// Ingestor accepts raw uploads: fingerprint, dedup, store, enqueue.
type Ingestor struct {
	docs        DocumentStore
	extractions ExtractionStore
	store       storage.Store
	queue       Enqueuer
	metrics     *metrics.Metrics
	maxBytes    int64
	logger      *slog.Logger
}

func NewIngestor(docs DocumentStore, extractions ExtractionStore, store storage.Store, queue Enqueuer, m *metrics.Metrics, maxBytes int64, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		docs:        docs,
		extractions: extractions,
		store:       store,
		queue:       queue,
		metrics:     m,
		maxBytes:    maxBytes,
		logger:      logger,
	}
}

// IngestResult reports what happened to one upload.
type IngestResult struct {
	Document  *repository.Document
	Duplicate bool
	// Extraction is the prior result when a duplicate upload resolved to an
	// already-completed document.
	Extraction *repository.Extraction
}

// Ingest accepts one upload. Byte-identical re-uploads resolve to the
// existing document and, when available, its latest extraction; the
// pipeline is never re-run for them.
func (i *Ingestor) Ingest(ctx context.Context, filename, mimeType string, raw []byte, declaredType constants.DocumentType) (*IngestResult, error) {
	if len(raw) == 0 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "empty upload"}
	}
	if i.maxBytes > 0 && int64(len(raw)) > i.maxBytes {
		return nil, &common.LimitError{Resource: "file bytes", Actual: int64(len(raw)), Limit: i.maxBytes}
	}
	if _, ok := constants.AllowedMIMETypes[mimeType]; !ok {
		return nil, &common.InputError{Reason: "unsupported_format", Detail: fmt.Sprintf("mime type %q", mimeType)}
	}

	fingerprint := hashing.Bytes(raw)

	// Fast path: the hash is already known.
	if existing, err := i.docs.FindByHash(ctx, string(fingerprint)); err == nil {
		return i.duplicate(ctx, existing)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// Content-addressed: the key is the fingerprint, so a concurrent upload
	// of the same bytes writes the same object.
	if err := i.store.Put(ctx, string(fingerprint), raw); err != nil {
		return nil, fmt.Errorf("store raw bytes: %w", err)
	}

	docType := declaredType
	declared := docType != "" && docType != constants.TypeUnknown
	if !declared {
		docType = constants.TypeUnknown
	}
	doc, err := i.docs.Create(ctx, &repository.Document{
		ContentHash:  string(fingerprint),
		Filename:     filename,
		MIMEType:     mimeType,
		ByteSize:     int64(len(raw)),
		DocumentType: docType,
		TypeDeclared: declared,
		StorageKey:   string(fingerprint),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the race against a concurrent identical upload.
		return i.duplicate(ctx, doc)
	}
	if err != nil {
		return nil, err
	}

	if err := i.queue.Enqueue(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("enqueue document: %w", err)
	}
	if i.metrics != nil {
		i.metrics.DocumentsIngested.WithLabelValues(string(docType)).Inc()
	}
	i.logger.Info("ingest.accepted",
		"document_id", doc.ID,
		"filename", filename,
		"mime_type", mimeType,
		"bytes", len(raw),
		"declared_type", declared)
	return &IngestResult{Document: doc}, nil
}

func (i *Ingestor) duplicate(ctx context.Context, doc *repository.Document) (*IngestResult, error) {
	if i.metrics != nil {
		i.metrics.DuplicateUploads.Inc()
	}
	res := &IngestResult{Document: doc, Duplicate: true}
	ext, err := i.extractions.LatestByDocument(ctx, doc.ID)
	if err == nil {
		res.Extraction = ext
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	i.logger.Info("ingest.duplicate",
		"document_id", doc.ID,
		"status", string(doc.Status),
		"has_extraction", res.Extraction != nil)
	return res, nil
}
