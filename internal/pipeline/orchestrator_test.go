package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/document"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/enrich"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/notify"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/validation"
)

type fakeDocs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*repository.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{rows: make(map[uuid.UUID]*repository.Document)}
}

func (f *fakeDocs) add(d *repository.Document) *repository.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.rows[d.ID] = d
	return d
}

func (f *fakeDocs) get(id uuid.UUID) *repository.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeDocs) GetByID(_ context.Context, id uuid.UUID) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) FindByHash(_ context.Context, hash string) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.rows {
		if d.ContentHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeDocs) Create(_ context.Context, d *repository.Document) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.ContentHash == d.ContentHash {
			cp := *existing
			return &cp, repository.ErrDuplicate
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = constants.StatusPending
	f.rows[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) ClaimForProcessing(_ context.Context, id uuid.UUID, liveness time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return false, common.ErrNotFound
	}
	stale := d.ClaimedAt != nil && time.Since(*d.ClaimedAt) > liveness
	if d.Status == constants.StatusPending || (d.Status == constants.StatusProcessing && stale) {
		now := time.Now()
		d.Status = constants.StatusProcessing
		d.ClaimedAt = &now
		return true, nil
	}
	return false, nil
}

func (f *fakeDocs) AdvanceStage(_ context.Context, id uuid.UUID, from, to constants.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.rows[id]
	if d == nil || d.Status != from || !constants.CanTransition(from, to) {
		return false, nil
	}
	d.Status = to
	return true, nil
}

func (f *fakeDocs) SetDocumentType(_ context.Context, id uuid.UUID, t constants.DocumentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].DocumentType = t
	return nil
}

// setTerminal mirrors the conditional UPDATE: only an in-flight document can
// be driven to a terminal status; anything else is a lost race.
func (f *fakeDocs) setTerminal(id uuid.UUID, s constants.Status, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return false, common.ErrNotFound
	}
	active := false
	for _, stage := range constants.Stages() {
		if d.Status == stage {
			active = true
			break
		}
	}
	if !active {
		return false, nil
	}
	d.Status = s
	d.FailureReason = reason
	d.ClaimedAt = nil
	return true, nil
}

func (f *fakeDocs) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return f.setTerminal(id, constants.StatusFailed, reason)
}

func (f *fakeDocs) MarkNeedsReview(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return f.setTerminal(id, constants.StatusNeedsReview, reason)
}

func (f *fakeDocs) MarkCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	return f.setTerminal(id, constants.StatusCompleted, "")
}

type fakeExtractions struct {
	mu   sync.Mutex
	rows []*repository.Extraction
}

func (f *fakeExtractions) Insert(_ context.Context, e *repository.Extraction) (*repository.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	e.Version = 1
	for _, r := range f.rows {
		if r.DocumentID == e.DocumentID && r.Version >= e.Version {
			e.Version = r.Version + 1
		}
	}
	f.rows = append(f.rows, e)
	return e, nil
}

func (f *fakeExtractions) LatestByDocument(_ context.Context, documentID uuid.UUID) (*repository.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *repository.Extraction
	for _, r := range f.rows {
		if r.DocumentID == documentID && (best == nil || r.Version > best.Version) {
			best = r
		}
	}
	if best == nil {
		return nil, common.ErrNotFound
	}
	return best, nil
}

type fakeValidations struct {
	mu   sync.Mutex
	rows []*repository.ValidationReport
}

func (f *fakeValidations) Insert(_ context.Context, v *repository.ValidationReport) (*repository.ValidationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = uuid.New()
	f.rows = append(f.rows, v)
	return v, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fails   int // Get fails this many times before succeeding
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return nil, context.DeadlineExceeded
	}
	d, ok := f.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return d, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type fakeNormalizer struct {
	err   error
	calls int
}

func (f *fakeNormalizer) Normalize(_ context.Context, _ []byte, _ string) (*document.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &document.Result{Pages: []document.ProcessedPage{
		{Index: 0, Image: []byte("page0"), Format: "png", Text: "Invoice text"},
		{Index: 1, Image: []byte("page1"), Format: "png", Text: "More text"},
	}}, nil
}

type fakeClassifier struct {
	result llm.Classification
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ []llm.PageImage) (llm.Classification, error) {
	f.calls++
	return f.result, f.err
}

type fakeExtractor struct {
	result llm.Extraction
	err    error
	calls  int
	onCall func()
}

func (f *fakeExtractor) Extract(_ context.Context, docType constants.DocumentType, pages []llm.PageImage) (llm.Extraction, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return llm.Extraction{}, f.err
	}
	r := f.result
	r.DocumentType = docType
	r.Pages = len(pages)
	return r, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (r *recordingNotifier) Notify(_ context.Context, p notify.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recordingNotifier) last() (notify.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return notify.Payload{}, false
	}
	return r.payloads[len(r.payloads)-1], true
}

type harness struct {
	docs        *fakeDocs
	extractions *fakeExtractions
	validations *fakeValidations
	storage     *fakeStorage
	normalizer  *fakeNormalizer
	classifier  *fakeClassifier
	extractor   *fakeExtractor
	notifier    *recordingNotifier
	orch        *Orchestrator
}

func goodExtraction() llm.Extraction {
	return llm.Extraction{
		Data: map[string]any{
			"total_amount": 108.0,
			"subtotal":     100.0,
			"currency":     "USD",
			"line_items": []any{
				map[string]any{"description": "widgets", "line_total": 100.0},
			},
		},
		Confidence: 0.95,
		Model:      "primary-model",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		docs:        newFakeDocs(),
		extractions: &fakeExtractions{},
		validations: &fakeValidations{},
		storage:     newFakeStorage(),
		normalizer:  &fakeNormalizer{},
		classifier:  &fakeClassifier{result: llm.Classification{DocumentType: constants.TypeInvoice, Confidence: 0.92}},
		extractor:   &fakeExtractor{result: goodExtraction()},
		notifier:    &recordingNotifier{},
	}
	h.orch = NewOrchestrator(Deps{
		Documents:   h.docs,
		Extractions: h.extractions,
		Validations: h.validations,
		Storage:     h.storage,
		Processor:   h.normalizer,
		Classifier:  h.classifier,
		Extractor:   h.extractor,
		Validator:   validation.NewValidator(validation.DefaultTolerance()),
		Enricher:    enrich.NewEnricher(nil, nil),
		Notifier:    h.notifier,
	}, common.PipelineConfig{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    2 * time.Millisecond,
		ClaimTimeout:     time.Minute,
		ConfidenceFloor:  0.5,
	}, nil)
	h.orch.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) seed(declaredType constants.DocumentType) *repository.Document {
	declared := declaredType != "" && declaredType != constants.TypeUnknown
	if !declared {
		declaredType = constants.TypeUnknown
	}
	doc := h.docs.add(&repository.Document{
		ContentHash:  "hash-1",
		Filename:     "doc.pdf",
		MIMEType:     "application/pdf",
		DocumentType: declaredType,
		TypeDeclared: declared,
		Status:       constants.StatusPending,
		StorageKey:   "hash-1",
	})
	_ = h.storage.Put(context.Background(), "hash-1", []byte("%PDF-raw"))
	return doc
}

func TestHappyPathDeclaredTypeSkipsClassification(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := h.docs.get(doc.ID).Status; got != constants.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if h.classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0 when type declared", h.classifier.calls)
	}
	if len(h.extractions.rows) != 1 {
		t.Fatalf("extractions = %d, want 1", len(h.extractions.rows))
	}
	if len(h.validations.rows) != 1 {
		t.Fatalf("validation reports = %d, want 1", len(h.validations.rows))
	}
	p, ok := h.notifier.last()
	if !ok || p.Status != constants.StatusCompleted {
		t.Errorf("notification = %+v, want completed", p)
	}
}

func TestClassificationRunsWhenTypeUnknown(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeUnknown)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", h.classifier.calls)
	}
	if got := h.docs.get(doc.ID).DocumentType; got != constants.TypeInvoice {
		t.Errorf("document type = %s, want invoice recorded", got)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestEncryptedDocumentFailsWithoutAICall(t *testing.T) {
	h := newHarness(t)
	h.normalizer.err = &common.InputError{Reason: "encrypted", Detail: "password required"}
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	row := h.docs.get(doc.ID)
	if row.Status != constants.StatusFailed {
		t.Fatalf("status = %s, want failed", row.Status)
	}
	if row.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
	if h.normalizer.calls != 1 {
		t.Errorf("normalize calls = %d, want 1 (no retry on permanent input)", h.normalizer.calls)
	}
	if h.classifier.calls != 0 || h.extractor.calls != 0 {
		t.Errorf("AI calls made for encrypted document: classify=%d extract=%d",
			h.classifier.calls, h.extractor.calls)
	}
}

func TestTransientStorageErrorRetriesWithinBudget(t *testing.T) {
	h := newHarness(t)
	h.storage.fails = 2
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusCompleted {
		t.Errorf("status = %s, want completed after transient retries", got)
	}
}

func TestLowClassificationConfidenceRoutesToReview(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = llm.Classification{DocumentType: constants.TypeInvoice, Confidence: 0.3}
	doc := h.seed(constants.TypeUnknown)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusNeedsReview {
		t.Fatalf("status = %s, want needs_review", got)
	}
	if h.extractor.calls != 0 {
		t.Errorf("extractor called %d times for a low-confidence classification", h.extractor.calls)
	}
}

func TestNonExtractableTypeRoutesToReview(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = llm.Classification{DocumentType: constants.TypeContract, Confidence: 0.95}
	doc := h.seed(constants.TypeUnknown)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusNeedsReview {
		t.Errorf("status = %s, want needs_review for contract", got)
	}
	if h.extractor.calls != 0 {
		t.Error("extractor must not run for non-extractable types")
	}
}

func TestAllProvidersExhaustedFailsRun(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = llm.ErrAllProvidersExhausted
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	row := h.docs.get(doc.ID)
	if row.Status != constants.StatusFailed {
		t.Fatalf("status = %s, want failed", row.Status)
	}
	p, _ := h.notifier.last()
	if p.Status != constants.StatusFailed {
		t.Errorf("notification status = %s, want failed", p.Status)
	}
}

func TestNonRetryableProviderErrorFailsWithoutStageRetry(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = fmt.Errorf("%w: %w", llm.ErrAllProvidersExhausted, &common.ProviderError{
		Provider: "anthropic", Category: "invalid_request", Status: 400, Message: "image too large",
	})
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	row := h.docs.get(doc.ID)
	if row.Status != constants.StatusFailed {
		t.Fatalf("status = %s, want failed", row.Status)
	}
	if h.extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want 1 (no stage retry for a declared non-retryable error)",
			h.extractor.calls)
	}
}

func TestExtractionWarningsPersistAndReachNotification(t *testing.T) {
	h := newHarness(t)
	withWarnings := goodExtraction()
	withWarnings.Warnings = []string{"vendor address partially illegible"}
	h.extractor.result = withWarnings
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(h.extractions.rows) != 1 {
		t.Fatalf("extractions = %d, want 1", len(h.extractions.rows))
	}
	stored := h.extractions.rows[0].Warnings
	if len(stored) != 1 || stored[0] != "vendor address partially illegible" {
		t.Errorf("stored warnings = %v, want the model's caveat retained", stored)
	}
	p, ok := h.notifier.last()
	if !ok || p.Status != constants.StatusCompleted {
		t.Fatalf("notification = %+v, want completed", p)
	}
	ws, ok := p.Summary["warnings"].([]string)
	if !ok || len(ws) != 1 {
		t.Errorf("summary warnings = %v, want the caveat surfaced", p.Summary["warnings"])
	}
}

func TestLostClaimDoesNotStompConcurrentTerminalStatus(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)

	// Another worker reclaims the document and completes it while this run's
	// extraction is in flight; this run's failure must not overwrite that.
	h.extractor.onCall = func() {
		row := h.docs.get(doc.ID)
		h.docs.mu.Lock()
		row.Status = constants.StatusCompleted
		row.ClaimedAt = nil
		h.docs.mu.Unlock()
	}
	h.extractor.err = &common.InputError{Reason: "unreadable", Detail: "page decode failed"}

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	row := h.docs.get(doc.ID)
	if row.Status != constants.StatusCompleted {
		t.Fatalf("status = %s, want completed preserved across the lost race", row.Status)
	}
	if row.FailureReason != "" {
		t.Errorf("failure reason = %q, want none on the surviving run", row.FailureReason)
	}
	for _, p := range h.notifier.payloads {
		if p.Status == constants.StatusFailed {
			t.Error("failed notification sent for a run that lost its claim")
		}
	}
}

func TestCriticalValidationFailureRetainsPartialResult(t *testing.T) {
	h := newHarness(t)
	bad := goodExtraction()
	bad.Data["total_amount"] = nil
	h.extractor.result = bad
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}
	if len(h.extractions.rows) != 1 {
		t.Errorf("extractions = %d, want partial result retained", len(h.extractions.rows))
	}
	if len(h.validations.rows) != 1 {
		t.Errorf("validation reports = %d, want 1", len(h.validations.rows))
	}
}

func TestLowAdjustedConfidenceRoutesToReview(t *testing.T) {
	h := newHarness(t)
	low := goodExtraction()
	low.Confidence = 0.55
	// Two major defects drop adjusted confidence below the 0.5 floor.
	low.Data["currency"] = "???"
	low.Data["invoice_date"] = "not-a-date"
	h.extractor.result = low
	doc := h.seed(constants.TypeInvoice)

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusNeedsReview {
		t.Fatalf("status = %s, want needs_review", got)
	}
	if len(h.extractions.rows) != 1 {
		t.Errorf("extraction should still be persisted for review, got %d", len(h.extractions.rows))
	}
}

func TestRedeliveryOfActiveClaimIsSkipped(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)

	now := time.Now()
	h.docs.get(doc.ID).Status = constants.StatusProcessing
	h.docs.get(doc.ID).ClaimedAt = &now

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.normalizer.calls != 0 {
		t.Error("redelivered job with a live claim must not start a duplicate run")
	}
}

func TestStaleClaimIsReclaimedAndCompleted(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)

	stale := time.Now().Add(-2 * time.Minute) // claim timeout is 1m
	h.docs.get(doc.ID).Status = constants.StatusProcessing
	h.docs.get(doc.ID).ClaimedAt = &stale

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.docs.get(doc.ID).Status; got != constants.StatusCompleted {
		t.Errorf("status = %s, want completed after reclaim", got)
	}
	if h.extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want exactly one billed attempt", h.extractor.calls)
	}
}

func TestCancellationBetweenStagesDiscardsResult(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)
	h.orch.Cancels().Cancel(doc.ID, "admin request")

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	row := h.docs.get(doc.ID)
	if row.Status != constants.StatusFailed {
		t.Fatalf("status = %s, want failed", row.Status)
	}
	if row.FailureReason != "cancelled: admin request" {
		t.Errorf("reason = %q", row.FailureReason)
	}
	if len(h.extractions.rows) != 0 {
		t.Error("cancelled run must not persist results")
	}
	if h.extractor.calls != 0 {
		t.Error("cancellation before extracting should prevent the AI call")
	}
}

func TestTerminalDocumentIsNotReprocessed(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(constants.TypeInvoice)
	h.docs.get(doc.ID).Status = constants.StatusCompleted

	if err := h.orch.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.normalizer.calls != 0 {
		t.Error("terminal document must be skipped")
	}
}

func TestMissingDocumentReturnsError(t *testing.T) {
	h := newHarness(t)
	err := h.orch.Process(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", err)
	}
}
