// Package openai implements llm.Provider over chat/completions with vision
// content parts. It serves as the fallback provider.
package openai

import (
	"bytes"
	"context"
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

// Config for the OpenAI client.
type Config struct {
	APIKey  string // if empty, falls back to env OPENAI_API_KEY
	BaseURL string // default https://api.openai.com/v1
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
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
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

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()

	parts := make([]map[string]any, 0, len(req.Pages)+1)
	parts = append(parts, map[string]any{"type": "text", "text": req.Prompt})
	for _, p := range req.Pages {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": p.DataURL()},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"max_tokens":      maxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": parts},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return llm.Response{}, err
	}

	var cc struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.Response{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.Response{}, &common.ProviderError{
			Provider: c.Name(), Category: "server_error", Message: "no choices in response",
		}
	}

	c.logger.Info("llm.openai.ok",
		"model", cc.Model,
		"pages", len(req.Pages),
		"tokens_in", cc.Usage.PromptTokens,
		"tokens_out", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Text:      strings.TrimSpace(cc.Choices[0].Message.Content),
		Model:     cc.Model,
		TokensIn:  cc.Usage.PromptTokens,
		TokensOut: cc.Usage.CompletionTokens,
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
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(c.Name(), err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("openai response body close error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(c.Name(), resp.StatusCode, raw)
	}
	return raw, nil
}

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
	case status == http.StatusTooManyRequests:
		category = "rate_limited"
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
