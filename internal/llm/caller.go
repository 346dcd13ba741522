package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/metrics"
)

// ErrAllProvidersExhausted is returned when every configured provider failed,
// retries included. It wraps the last provider error.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

const repairInstruction = "Your previous response was not valid JSON matching the required structure. " +
	"Return ONLY the corrected JSON object, with no markdown fences and no commentary.\n\nPrevious response:\n"

// Caller runs one logical completion against an ordered provider chain:
// retry the primary with exponential backoff while the provider's declared
// error class permits it, then fall through to the next provider. When a
// schema is supplied, a response that fails validation earns exactly one
// repair re-prompt against the same provider before the chain advances.
type Caller struct {
	providers []Provider
	policy    common.RetryPolicy
	logger    *slog.Logger
	metrics   *metrics.Metrics // nil disables instrumentation

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCaller(providers []Provider, policy common.RetryPolicy, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy = common.DefaultRetryPolicy()
	}
	return &Caller{providers: providers, policy: policy, logger: logger, sleep: sleepCtx}
}

// WithMetrics attaches call-outcome instrumentation.
func (c *Caller) WithMetrics(m *metrics.Metrics) *Caller {
	c.metrics = m
	return c
}

func (c *Caller) count(p Provider, outcome string) {
	if c.metrics != nil {
		c.metrics.ProviderCalls.WithLabelValues(p.Name(), outcome).Inc()
	}
}

func (c *Caller) countErr(p Provider, err error) {
	var provErr *common.ProviderError
	if errors.As(err, &provErr) {
		c.count(p, provErr.Category)
		return
	}
	c.count(p, "error")
}

// Complete runs the chain. The returned Response.Text is the sanitized JSON
// payload when a schema was supplied, otherwise the raw provider text.
func (c *Caller) Complete(ctx context.Context, req Request, schema map[string]any) (Response, error) {
	if len(c.providers) == 0 {
		return Response{}, fmt.Errorf("%w: no providers configured", ErrAllProvidersExhausted)
	}

	var lastErr error
	for _, p := range c.providers {
		resp, err := c.completeWithRetry(ctx, p, req, schema)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		c.logger.Warn("llm.provider.failed",
			"provider", p.Name(),
			"error", err)
	}
	return Response{}, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, lastErr)
}

func (c *Caller) completeWithRetry(ctx context.Context, p Provider, req Request, schema map[string]any) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			c.count(p, "ok")
			if schema == nil {
				return resp, nil
			}
			resp, err = c.checkSchema(ctx, p, req, resp, schema)
			if err == nil {
				return resp, nil
			}
			// A response that fails schema validation twice is not
			// going to improve with a retry of the same request.
			return Response{}, err
		}

		lastErr = err
		var provErr *common.ProviderError
		if !errors.As(err, &provErr) {
			c.count(p, "error")
			return Response{}, err
		}
		c.count(p, provErr.Category)
		if !provErr.Retryable() {
			return Response{}, err
		}
		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.Backoff(attempt)
		c.logger.Info("llm.provider.retry",
			"provider", p.Name(),
			"attempt", attempt,
			"category", provErr.Category,
			"delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

// checkSchema validates the sanitized response; on failure it issues one
// repair re-prompt carrying the invalid text back to the same provider.
func (c *Caller) checkSchema(ctx context.Context, p Provider, req Request, resp Response, schema map[string]any) (Response, error) {
	clean := SanitizeJSONResponse(resp.Text)
	if err := ValidateJSONAgainstSchema(schema, []byte(clean)); err == nil {
		resp.Text = clean
		return resp, nil
	}

	c.logger.Warn("llm.schema.repair", "provider", p.Name())
	repair := req
	repair.Prompt = req.Prompt + "\n\n" + repairInstruction + resp.Text
	repaired, err := p.Complete(ctx, repair)
	if err != nil {
		c.countErr(p, err)
		return Response{}, err
	}
	clean = SanitizeJSONResponse(repaired.Text)
	if err := ValidateJSONAgainstSchema(schema, []byte(clean)); err != nil {
		c.count(p, "schema_violation")
		return Response{}, &common.SchemaError{Detail: err.Error()}
	}
	c.count(p, "ok")
	repaired.Text = clean
	return repaired, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
