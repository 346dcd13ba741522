package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/metrics"
)

type fakeProvider struct {
	name      string
	responses []fakeReply
	calls     int
	prompts   []string
	reqs      []Request
}

type fakeReply struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req Request) (Response, error) {
	f.prompts = append(f.prompts, req.Prompt)
	f.reqs = append(f.reqs, req)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	if r.err != nil {
		return Response{}, r.err
	}
	return Response{Text: r.text, Model: f.name + "-model"}, nil
}

func newTestCaller(providers ...Provider) *Caller {
	c := NewCaller(providers, common.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Factor:      2,
	}, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func rateLimited(provider string) error {
	return &common.ProviderError{Provider: provider, Category: "rate_limited", Status: 429, Message: "slow down"}
}

func testSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total": map[string]any{"type": "number"},
		},
		"required": []string{"total"},
	}
}

func TestCallerRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{name: "primary", responses: []fakeReply{
		{err: rateLimited("primary")},
		{err: rateLimited("primary")},
		{text: `{"total": 42}`},
	}}
	c := newTestCaller(p)

	resp, err := c.Complete(context.Background(), Request{Prompt: "x"}, testSchema())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
	if resp.Text != `{"total": 42}` {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestCallerFallsBackAfterExhaustion(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeReply{
		{err: rateLimited("primary")},
	}}
	fallback := &fakeProvider{name: "fallback", responses: []fakeReply{
		{text: `{"total": 10}`},
	}}
	c := newTestCaller(primary, fallback)

	resp, err := c.Complete(context.Background(), Request{Prompt: "x"}, testSchema())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("primary calls = %d, want full retry budget of 3", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
	if resp.Model != "fallback-model" {
		t.Errorf("model = %q, want the fallback's model recorded", resp.Model)
	}
}

func TestCallerNonRetryableSkipsStraightToFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeReply{
		{err: &common.ProviderError{Provider: "primary", Category: "invalid_request", Status: 400}},
	}}
	fallback := &fakeProvider{name: "fallback", responses: []fakeReply{
		{text: `{"total": 1}`},
	}}
	c := newTestCaller(primary, fallback)

	if _, err := c.Complete(context.Background(), Request{Prompt: "x"}, testSchema()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1 (no retry on invalid_request)", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestCallerAllProvidersExhausted(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeReply{{err: rateLimited("primary")}}}
	fallback := &fakeProvider{name: "fallback", responses: []fakeReply{{err: rateLimited("fallback")}}}
	c := newTestCaller(primary, fallback)

	_, err := c.Complete(context.Background(), Request{Prompt: "x"}, nil)
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("err = %v, want ErrAllProvidersExhausted", err)
	}
	var provErr *common.ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("want wrapped provider error, got %v", err)
	}
}

func TestCallerRepairsInvalidJSONOnce(t *testing.T) {
	p := &fakeProvider{name: "primary", responses: []fakeReply{
		{text: "Sure! Here is the data: total is forty-two"},
		{text: `{"total": 42}`},
	}}
	c := newTestCaller(p)

	resp, err := c.Complete(context.Background(), Request{Prompt: "extract"}, testSchema())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("calls = %d, want 2 (original + repair)", p.calls)
	}
	if got := p.prompts[1]; got == p.prompts[0] {
		t.Error("repair call should carry the repair instruction, got original prompt")
	}
	if resp.Text != `{"total": 42}` {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestCallerRepairFailureAdvancesToFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeReply{
		{text: "not json"},
		{text: "still not json"},
	}}
	fallback := &fakeProvider{name: "fallback", responses: []fakeReply{
		{text: `{"total": 5}`},
	}}
	c := newTestCaller(primary, fallback)

	resp, err := c.Complete(context.Background(), Request{Prompt: "x"}, testSchema())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2 (one repair, then give up)", primary.calls)
	}
	if resp.Model != "fallback-model" {
		t.Errorf("model = %q, want fallback", resp.Model)
	}
}

func TestCallerContextCancellationStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &fakeProvider{name: "primary", responses: []fakeReply{{err: rateLimited("primary")}}}
	fallback := &fakeProvider{name: "fallback", responses: []fakeReply{{text: `{"total": 1}`}}}
	c := NewCaller([]Provider{primary, fallback}, common.DefaultRetryPolicy(), nil)

	_, err := c.Complete(ctx, Request{Prompt: "x"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times after cancellation", fallback.calls)
	}
}

func TestCallerCountsProviderOutcomes(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeReply{
		{err: rateLimited("primary")},
		{text: `{"total": 42}`},
	}}
	m := metrics.New(prometheus.NewRegistry())
	c := newTestCaller(primary).WithMetrics(m)

	if _, err := c.Complete(context.Background(), Request{Prompt: "p"}, testSchema()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("primary", "rate_limited")); got != 1 {
		t.Errorf("rate_limited count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("primary", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
}
