package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/document"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/enrich"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/metrics"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/notify"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/storage"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/validation"
)

// Orchestrator owns one document's traversal of the stage sequence. Stage
// errors never escape: each is classified and turned into a retry, a
// terminal failure, or a needs_review parking, always recorded on the row.
type Orchestrator struct {
	docs        DocumentStore
	extractions ExtractionStore
	validations ValidationStore
	store       storage.Store
	processor   Normalizer
	classifier  Classifier
	extractor   Extractor
	validator   *validation.Validator
	enricher    *enrich.Enricher
	notifier    notify.Notifier
	cancels     *CancelRegistry
	metrics     *metrics.Metrics // nil disables instrumentation
	cfg         common.PipelineConfig
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type Deps struct {
	Documents   DocumentStore
	Extractions ExtractionStore
	Validations ValidationStore
	Storage     storage.Store
	Processor   Normalizer
	Classifier  Classifier
	Extractor   Extractor
	Validator   *validation.Validator
	Enricher    *enrich.Enricher
	Notifier    notify.Notifier
	Cancels     *CancelRegistry
	Metrics     *metrics.Metrics
}

func NewOrchestrator(deps Deps, cfg common.PipelineConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NoopNotifier{}
	}
	if deps.Cancels == nil {
		deps.Cancels = NewCancelRegistry()
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 3
	}
	return &Orchestrator{
		docs:        deps.Documents,
		extractions: deps.Extractions,
		validations: deps.Validations,
		store:       deps.Storage,
		processor:   deps.Processor,
		classifier:  deps.Classifier,
		extractor:   deps.Extractor,
		validator:   deps.Validator,
		enricher:    deps.Enricher,
		notifier:    deps.Notifier,
		cancels:     deps.Cancels,
		metrics:     deps.Metrics,
		cfg:         cfg,
		logger:      logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Cancels exposes the cancellation registry for admin surfaces.
func (o *Orchestrator) Cancels() *CancelRegistry { return o.cancels }

// Process runs one claimed document to a terminal status. A document that
// cannot be claimed (another worker holds a live claim, or it is already
// terminal) is skipped without error; that is how queue redelivery is
// absorbed.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	doc, err := o.docs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	if doc.Status.Terminal() {
		o.logger.Debug("pipeline.skip.terminal", "document_id", id, "status", string(doc.Status))
		return nil
	}

	claimed, err := o.docs.ClaimForProcessing(ctx, id, o.cfg.ClaimTimeout)
	if err != nil {
		return fmt.Errorf("claim document %s: %w", id, err)
	}
	if !claimed {
		o.logger.Info("pipeline.skip.claimed_elsewhere", "document_id", id)
		return nil
	}

	run := NewRun(id)
	o.logger.Info("pipeline.run.start", "document_id", id, "document_type", string(doc.DocumentType))
	o.execute(ctx, run, doc)
	return nil
}

// execute walks the stage sequence. All terminal decisions happen in here.
func (o *Orchestrator) execute(ctx context.Context, run *Run, doc *repository.Document) {
	// Stage: processing (download + format normalization).
	var pages []llm.PageImage
	var nativeText bool
	err := o.runStage(ctx, run, constants.StatusProcessing, func(ctx context.Context) error {
		raw, err := o.store.Get(ctx, doc.StorageKey)
		if err != nil {
			return fmt.Errorf("fetch raw bytes: %w", err)
		}
		res, err := o.processor.Normalize(ctx, raw, doc.MIMEType)
		if err != nil {
			return err
		}
		pages = pageImages(res)
		nativeText = hasNativeText(res)
		return nil
	})
	if err != nil {
		o.fail(ctx, run, err)
		return
	}
	if o.cancelled(ctx, run) {
		return
	}

	// Stage: classifying, skipped when the type was declared at ingestion.
	docType := doc.DocumentType
	if !doc.TypeDeclared || docType == constants.TypeUnknown {
		if !o.advance(ctx, run, constants.StatusProcessing, constants.StatusClassifying) {
			return
		}
		var cls llm.Classification
		err = o.runStage(ctx, run, constants.StatusClassifying, func(ctx context.Context) error {
			var err error
			cls, err = o.classifier.Classify(ctx, pages)
			return err
		})
		if err != nil {
			o.fail(ctx, run, err)
			return
		}
		docType = cls.DocumentType
		if err := o.docs.SetDocumentType(ctx, run.DocumentID, docType); err != nil {
			o.fail(ctx, run, err)
			return
		}
		if cls.Confidence < o.cfg.ConfidenceFloor {
			o.review(ctx, run, fmt.Sprintf("classification confidence %.2f below floor %.2f",
				cls.Confidence, o.cfg.ConfidenceFloor))
			return
		}
		if o.cancelled(ctx, run) {
			return
		}
	}

	if !docType.Extractable() {
		o.review(ctx, run, fmt.Sprintf("no extraction contract for document type %q", docType))
		return
	}

	// Stage: extracting.
	if !o.advance(ctx, run, run.Stage, constants.StatusExtracting) {
		return
	}
	var ext llm.Extraction
	err = o.runStage(ctx, run, constants.StatusExtracting, func(ctx context.Context) error {
		var err error
		ext, err = o.extractor.Extract(ctx, docType, pages)
		return err
	})
	if err != nil {
		o.fail(ctx, run, err)
		return
	}
	o.countTokens(ext)
	if o.cancelled(ctx, run) {
		return
	}

	// Stage: validating. Pure, no retry budget needed.
	if !o.advance(ctx, run, constants.StatusExtracting, constants.StatusValidating) {
		return
	}
	report := o.validator.Validate(docType, ext.Data, ext.Confidence)
	if !report.Passed {
		// Keep the partial result for diagnostics before failing.
		if rec, perr := o.persistExtraction(ctx, run, docType, ext, ext.Data, report); perr != nil {
			o.logger.Error("pipeline.partial_result.persist_failed",
				"document_id", run.DocumentID, "error", perr)
		} else {
			o.logger.Info("pipeline.partial_result.retained",
				"document_id", run.DocumentID, "extraction_id", rec.ID)
		}
		o.fail(ctx, run, fmt.Errorf("validation: %s", criticalSummary(report)))
		return
	}
	if o.cancelled(ctx, run) {
		return
	}

	// Stage: enriching.
	if !o.advance(ctx, run, constants.StatusValidating, constants.StatusEnriching) {
		return
	}
	enriched := o.enricher.Enrich(ctx, docType, ext.Data)
	rec, err := o.persistExtraction(ctx, run, docType, ext, enriched, report)
	if err != nil {
		o.fail(ctx, run, err)
		return
	}

	if report.Confidence < o.cfg.ConfidenceFloor {
		o.review(ctx, run, fmt.Sprintf("adjusted confidence %.2f below floor %.2f",
			report.Confidence, o.cfg.ConfidenceFloor))
		return
	}

	done, err := o.docs.MarkCompleted(ctx, run.DocumentID)
	if err != nil {
		o.fail(ctx, run, err)
		return
	}
	if !done {
		o.logger.Warn("pipeline.terminal.lost_claim",
			"document_id", run.DocumentID, "outcome", "completed")
		return
	}
	o.countRun("completed")
	o.logger.Info("pipeline.run.completed",
		"document_id", run.DocumentID,
		"document_type", string(docType),
		"pages", len(pages),
		"native_text", nativeText,
		"confidence", report.Confidence,
		"version", rec.Version,
		"elapsed_ms", time.Since(run.StartedAt).Milliseconds(),
	)
	summary := map[string]any{
		"document_type":    string(docType),
		"confidence":       report.Confidence,
		"confidence_level": string(report.Level),
		"pages":            len(pages),
		"model":            ext.Model,
		"version":          rec.Version,
	}
	if len(ext.Warnings) > 0 {
		summary["warnings"] = ext.Warnings
	}
	o.notifier.Notify(ctx, notify.Payload{
		DocumentID: run.DocumentID,
		Status:     constants.StatusCompleted,
		Summary:    summary,
		Timestamp:  time.Now().UTC(),
	})
}

// runStage executes one stage body under its retry budget. Transient and
// internal errors retry with backoff; permanent input, limit, and schema
// errors return immediately for a terminal decision.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage constants.Status, fn func(ctx context.Context) error) error {
	run.Stage = stage
	policy := common.RetryPolicy{
		MaxAttempts: o.cfg.RetryMaxAttempts,
		BaseDelay:   o.cfg.RetryBaseDelay,
		MaxDelay:    o.cfg.RetryMaxDelay,
		Factor:      2,
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}

	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveStage(string(stage), time.Since(start))
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		stageCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.JobTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
		}
		err := fn(stageCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}

		run.Attempts[stage] = attempt
		run.LastError = err.Error()
		lastErr = err

		switch common.Classify(err) {
		case common.ClassTransient, common.ClassInternal:
			// retryable within the stage budget
		default:
			return err
		}
		if attempt == policy.MaxAttempts || ctx.Err() != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.StageRetries.WithLabelValues(string(stage)).Inc()
		}
		delay := policy.Backoff(attempt)
		o.logger.Warn("pipeline.stage.retry",
			"document_id", run.DocumentID,
			"stage", string(stage),
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return lastErr
}

// advance performs the CAS stage transition. A lost race means the claim was
// reclaimed or cancelled elsewhere; the run stops silently.
func (o *Orchestrator) advance(ctx context.Context, run *Run, from, to constants.Status) bool {
	ok, err := o.docs.AdvanceStage(ctx, run.DocumentID, from, to)
	if err != nil {
		o.fail(ctx, run, err)
		return false
	}
	if !ok {
		o.logger.Warn("pipeline.stage.lost_claim",
			"document_id", run.DocumentID,
			"from", string(from), "to", string(to))
		return false
	}
	run.Stage = to
	return true
}

// cancelled checks for an operator cancellation between stages. Results of
// any in-flight work are discarded and the document fails with the reason.
func (o *Orchestrator) cancelled(ctx context.Context, run *Run) bool {
	reason, ok := o.cancels.Take(run.DocumentID)
	if !ok {
		return false
	}
	o.logger.Info("pipeline.run.cancelled", "document_id", run.DocumentID, "reason", reason)
	marked, err := o.docs.MarkFailed(ctx, run.DocumentID, "cancelled: "+reason)
	if err != nil {
		o.logger.Error("pipeline.cancel.mark_failed", "document_id", run.DocumentID, "error", err)
	} else if !marked {
		o.logger.Warn("pipeline.terminal.lost_claim",
			"document_id", run.DocumentID, "outcome", "failed")
		return true
	}
	o.countRun("failed")
	o.notifier.Notify(ctx, notify.Payload{
		DocumentID: run.DocumentID,
		Status:     constants.StatusFailed,
		Summary:    map[string]any{"reason": "cancelled: " + reason},
		Timestamp:  time.Now().UTC(),
	})
	return true
}

func (o *Orchestrator) fail(ctx context.Context, run *Run, err error) {
	reason := err.Error()
	o.logger.Error("pipeline.run.failed",
		"document_id", run.DocumentID,
		"stage", string(run.Stage),
		"attempts", run.Attempts[run.Stage],
		"error", err)
	marked, merr := o.docs.MarkFailed(ctx, run.DocumentID, reason)
	if merr != nil {
		o.logger.Error("pipeline.mark_failed", "document_id", run.DocumentID, "error", merr)
	} else if !marked {
		o.logger.Warn("pipeline.terminal.lost_claim",
			"document_id", run.DocumentID, "outcome", "failed")
		return
	}
	o.countRun("failed")
	o.notifier.Notify(ctx, notify.Payload{
		DocumentID: run.DocumentID,
		Status:     constants.StatusFailed,
		Summary:    map[string]any{"stage": string(run.Stage), "reason": reason},
		Timestamp:  time.Now().UTC(),
	})
}

func (o *Orchestrator) review(ctx context.Context, run *Run, reason string) {
	o.logger.Info("pipeline.run.needs_review", "document_id", run.DocumentID, "reason", reason)
	marked, err := o.docs.MarkNeedsReview(ctx, run.DocumentID, reason)
	if err != nil {
		o.logger.Error("pipeline.mark_needs_review", "document_id", run.DocumentID, "error", err)
	} else if !marked {
		o.logger.Warn("pipeline.terminal.lost_claim",
			"document_id", run.DocumentID, "outcome", "needs_review")
		return
	}
	o.countRun("needs_review")
	o.notifier.Notify(ctx, notify.Payload{
		DocumentID: run.DocumentID,
		Status:     constants.StatusNeedsReview,
		Summary:    map[string]any{"reason": reason},
		Timestamp:  time.Now().UTC(),
	})
}

func (o *Orchestrator) persistExtraction(ctx context.Context, run *Run, docType constants.DocumentType, ext llm.Extraction, payload map[string]any, report validation.Report) (*repository.Extraction, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	rawJSON, err := json.Marshal(ext.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal raw response: %w", err)
	}
	rec, err := o.extractions.Insert(ctx, &repository.Extraction{
		DocumentID:   run.DocumentID,
		DocumentType: docType,
		Payload:      payloadJSON,
		RawResponse:  rawJSON,
		Confidence:   report.Confidence,
		Level:        report.Level,
		Model:        ext.Model,
		Warnings:     ext.Warnings,
		PageCount:    ext.Pages,
		TokensIn:     ext.TokensIn,
		TokensOut:    ext.TokensOut,
	})
	if err != nil {
		return nil, fmt.Errorf("persist extraction: %w", err)
	}

	defects, err := json.Marshal(report.Defects)
	if err != nil {
		return nil, fmt.Errorf("marshal defects: %w", err)
	}
	if defects == nil || string(defects) == "null" {
		defects = []byte("[]")
	}
	if _, err := o.validations.Insert(ctx, &repository.ValidationReport{
		ExtractionID: rec.ID,
		Passed:       report.Passed,
		Confidence:   report.Confidence,
		Level:        report.Level,
		Defects:      defects,
	}); err != nil {
		return nil, fmt.Errorf("persist validation report: %w", err)
	}
	return rec, nil
}

func (o *Orchestrator) countRun(outcome string) {
	if o.metrics != nil {
		o.metrics.RunsCompleted.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) countTokens(ext llm.Extraction) {
	if o.metrics == nil || ext.Model == "" {
		return
	}
	o.metrics.ProviderTokens.WithLabelValues(ext.Model, "in").Add(float64(ext.TokensIn))
	o.metrics.ProviderTokens.WithLabelValues(ext.Model, "out").Add(float64(ext.TokensOut))
}

func pageImages(res *document.Result) []llm.PageImage {
	pages := make([]llm.PageImage, 0, len(res.Pages))
	for _, p := range res.Pages {
		pages = append(pages, llm.PageImage{Data: p.Image, MediaType: "image/" + p.Format})
	}
	return pages
}

func hasNativeText(res *document.Result) bool {
	for _, p := range res.Pages {
		if !p.Scanned && p.Text != "" {
			return true
		}
	}
	return false
}

func criticalSummary(report validation.Report) string {
	for _, d := range report.Defects {
		if d.Severity == validation.SeverityCritical {
			return fmt.Sprintf("critical defect on %s (%s)", d.Field, d.Rule)
		}
	}
	return "critical validation failure"
}
