package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// Extraction is the typed result of the extraction stage: the schema-valid
// payload plus call accounting.
type Extraction struct {
	DocumentType constants.DocumentType
	Data         map[string]any
	Confidence   float64
	Warnings     []string
	Model        string
	Pages        int
	TokensIn     int
	TokensOut    int
}

// Extractor turns normalized pages into structured data for a known type.
// Documents with more pages than PagesPerCall are chunked and the per-chunk
// results merged.
type Extractor struct {
	caller       *Caller
	pagesPerCall int
	maxTokens    int
	logger       *slog.Logger
}

func NewExtractor(caller *Caller, pagesPerCall, maxTokens int, logger *slog.Logger) *Extractor {
	if pagesPerCall < 1 {
		pagesPerCall = 4
	}
	if maxTokens < 1 {
		maxTokens = 8192
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{caller: caller, pagesPerCall: pagesPerCall, maxTokens: maxTokens, logger: logger}
}

// Extract runs the type-specific prompt over all pages. The document type
// must be extractable; callers route forms and contracts to review instead.
func (e *Extractor) Extract(ctx context.Context, docType constants.DocumentType, pages []PageImage) (Extraction, error) {
	prompt, ok := PromptFor(docType)
	if !ok {
		return Extraction{}, fmt.Errorf("no extraction contract for document type %q", docType)
	}
	schema, _ := SchemaFor(docType)
	if len(pages) == 0 {
		return Extraction{}, &common.InputError{Reason: "corrupt", Detail: "no pages to extract"}
	}

	var chunks []map[string]any
	out := Extraction{DocumentType: docType, Pages: len(pages), Confidence: 1}

	for start := 0; start < len(pages); start += e.pagesPerCall {
		end := start + e.pagesPerCall
		if end > len(pages) {
			end = len(pages)
		}
		chunkPrompt := prompt
		if len(pages) > e.pagesPerCall {
			chunkPrompt = fmt.Sprintf("%s\n\nThese are pages %d-%d of a %d-page document. Extract what is visible on these pages.",
				prompt, start+1, end, len(pages))
		}

		resp, err := e.caller.Complete(ctx, Request{
			System:    systemPrompt,
			Prompt:    chunkPrompt,
			Pages:     pages[start:end],
			MaxTokens: e.maxTokens,
		}, schema)
		if err != nil {
			return Extraction{}, err
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(resp.Text), &data); err != nil {
			return Extraction{}, &common.SchemaError{Detail: "extraction response: " + err.Error()}
		}
		chunks = append(chunks, data)

		out.Model = resp.Model
		out.TokensIn += resp.TokensIn
		out.TokensOut += resp.TokensOut
		if c, ok := data["extraction_confidence"].(float64); ok && c < out.Confidence {
			// A document is only as trustworthy as its weakest chunk.
			out.Confidence = c
		}
		if ws, ok := data["warnings"].([]any); ok {
			for _, w := range ws {
				if s, ok := w.(string); ok {
					out.Warnings = append(out.Warnings, s)
				}
			}
		}
	}

	out.Data = MergeChunks(docType, chunks)
	e.logger.Info("llm.extract.done",
		"document_type", string(docType),
		"pages", len(pages),
		"chunks", len(chunks),
		"confidence", out.Confidence,
		"model", out.Model)
	return out, nil
}
