// Package notify dispatches outcome notifications. Delivery is
// fire-and-forget from the pipeline's perspective; the notifier owns its own
// retries and a failure never reverts a document's status.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// Payload is the outbound notification body.
type Payload struct {
	DocumentID uuid.UUID        `json:"document_id"`
	Status     constants.Status `json:"status"`
	Summary    map[string]any   `json:"summary,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Notifier is what the orchestrator sees.
type Notifier interface {
	Notify(ctx context.Context, p Payload)
}

// Webhook posts payloads to a configured URL, signing each body with
// HMAC-SHA256 when a secret is set.
type Webhook struct {
	cfg    common.WebhookConfig
	http   *http.Client
	policy common.RetryPolicy
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewWebhook(cfg common.WebhookConfig, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	policy := common.DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	return &Webhook{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: policy,
		logger: logger,
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

// Notify delivers the payload with bounded retries. All failures end in a
// log line, never an error to the caller.
func (w *Webhook) Notify(ctx context.Context, p Payload) {
	if w.cfg.URL == "" {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		w.logger.Error("notify.marshal_failed", "document_id", p.DocumentID, "error", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		if lastErr = w.deliver(ctx, body); lastErr == nil {
			w.logger.Info("notify.delivered",
				"document_id", p.DocumentID,
				"status", string(p.Status),
				"attempt", attempt)
			return
		}
		if attempt < w.policy.MaxAttempts {
			if err := w.sleep(ctx, w.policy.Backoff(attempt)); err != nil {
				break
			}
		}
	}
	w.logger.Error("notify.delivery_failed",
		"document_id", p.DocumentID,
		"attempts", w.policy.MaxAttempts,
		"error", lastErr)
}

func (w *Webhook) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+Sign(w.cfg.Secret, body))
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers verify
// it against the X-Signature-256 header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// NoopNotifier drops all payloads; used when no webhook URL is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Payload) {}
