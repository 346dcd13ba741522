// Package anthropic implements llm.Provider over the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm"
)

const apiVersion = "2023-06-01"

// Config for the Anthropic client.
type Config struct {
	APIKey  string // if empty, falls back to env ANTHROPIC_API_KEY
	BaseURL string // default https://api.anthropic.com
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()

	content := make([]map[string]any, 0, len(req.Pages)+1)
	for _, p := range req.Pages {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": p.MediaType,
				"data":       base64.StdEncoding.EncodeToString(p.Data),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": maxTokens,
		"system":     req.System,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return llm.Response{}, err
	}

	var msg struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return llm.Response{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return llm.Response{}, &common.ProviderError{
			Provider: c.Name(), Category: "server_error", Message: "empty content in response",
		}
	}

	c.logger.Info("llm.anthropic.ok",
		"model", msg.Model,
		"pages", len(req.Pages),
		"tokens_in", msg.Usage.InputTokens,
		"tokens_out", msg.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Text:      text.String(),
		Model:     msg.Model,
		TokensIn:  msg.Usage.InputTokens,
		TokensOut: msg.Usage.OutputTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(c.Name(), err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("anthropic response body close error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(c.Name(), resp.StatusCode, raw)
	}
	return raw, nil
}

// apiError maps the API's declared error type onto a provider category.
func apiError(provider string, status int, raw []byte) error {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &e)

	category := "server_error"
	switch {
	case e.Error.Type == "rate_limit_error" || status == http.StatusTooManyRequests:
		category = "rate_limited"
	case e.Error.Type == "overloaded_error":
		category = "server_error"
	case status == http.StatusRequestTimeout:
		category = "timeout"
	case status >= 400 && status < 500:
		category = "invalid_request"
	}

	msg := e.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &common.ProviderError{Provider: provider, Category: category, Status: status, Message: msg}
}

func transportError(provider string, err error) error {
	category := "server_error"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		category = "timeout"
	}
	return &common.ProviderError{Provider: provider, Category: category, Message: err.Error()}
}
