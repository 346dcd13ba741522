package llm

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// Classification is the typed result of the classification stage.
type Classification struct {
	DocumentType constants.DocumentType `json:"document_type"`
	Confidence   float64                `json:"confidence"`
	Reasoning    string                 `json:"reasoning,omitempty"`
	Model        string                 `json:"model,omitempty"`
}

// Classifier decides the document type from the first pages of a document.
type Classifier struct {
	caller   *Caller
	maxPages int
	logger   *slog.Logger
}

func NewClassifier(caller *Caller, maxPages int, logger *slog.Logger) *Classifier {
	if maxPages < 1 {
		maxPages = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{caller: caller, maxPages: maxPages, logger: logger}
}

// Classify sends up to the first maxPages pages to a provider and parses the
// declared type. An answer outside the known vocabulary maps to unknown
// rather than failing the run.
func (c *Classifier) Classify(ctx context.Context, pages []PageImage) (Classification, error) {
	if len(pages) == 0 {
		return Classification{}, &common.InputError{Reason: "corrupt", Detail: "no pages to classify"}
	}
	n := len(pages)
	if n > c.maxPages {
		n = c.maxPages
	}

	req := Request{
		System:    systemPrompt,
		Prompt:    classificationPrompt,
		Pages:     pages[:n],
		MaxTokens: 1024,
	}
	resp, err := c.caller.Complete(ctx, req, BuildClassificationSchema())
	if err != nil {
		return Classification{}, err
	}

	var out Classification
	if err := json.Unmarshal([]byte(SanitizeJSONResponse(resp.Text)), &out); err != nil {
		return Classification{}, &common.SchemaError{Detail: "classification response: " + err.Error()}
	}

	parsed, ok := constants.ParseDocumentType(string(out.DocumentType))
	if !ok {
		c.logger.Warn("llm.classify.unknown_type",
			"declared", string(out.DocumentType))
	}
	out.DocumentType = parsed
	out.Model = resp.Model

	c.logger.Info("llm.classify.done",
		"document_type", string(out.DocumentType),
		"confidence", out.Confidence,
		"model", resp.Model)
	return out, nil
}
