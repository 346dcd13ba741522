package llm

import (
	"context"
	"testing"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

const invoiceReply = `{"vendor":{"name":"Acme Corp"},` +
	`"line_items":[{"description":"widgets","line_total":100}],` +
	`"total_amount":108,"extraction_confidence":0.9,` +
	`"warnings":["tax line partially obscured"]}`

func pages(n int) []PageImage {
	out := make([]PageImage, n)
	for i := range out {
		out[i] = PageImage{Data: []byte{byte(i)}, MediaType: "image/png"}
	}
	return out
}

func TestExtractorUsesConfiguredMaxTokens(t *testing.T) {
	provider := &fakeProvider{name: "primary", responses: []fakeReply{{text: invoiceReply}}}
	e := NewExtractor(newTestCaller(provider), 4, 2048, nil)

	out, err := e.Extract(context.Background(), constants.TypeInvoice, pages(2))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(provider.reqs) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.reqs))
	}
	if got := provider.reqs[0].MaxTokens; got != 2048 {
		t.Errorf("request MaxTokens = %d, want 2048", got)
	}
	if out.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", out.Confidence)
	}
	if len(out.Warnings) != 1 || out.Warnings[0] != "tax line partially obscured" {
		t.Errorf("warnings = %v", out.Warnings)
	}
}

func TestExtractorChunksLongDocuments(t *testing.T) {
	provider := &fakeProvider{name: "primary", responses: []fakeReply{{text: invoiceReply}}}
	e := NewExtractor(newTestCaller(provider), 2, 0, nil)

	out, err := e.Extract(context.Background(), constants.TypeInvoice, pages(5))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(provider.reqs) != 3 {
		t.Fatalf("provider calls = %d, want 3 chunks of <=2 pages", len(provider.reqs))
	}
	for i, req := range provider.reqs {
		if len(req.Pages) > 2 {
			t.Errorf("chunk %d carries %d pages, want <=2", i, len(req.Pages))
		}
	}
	if out.Pages != 5 {
		t.Errorf("Pages = %d, want 5", out.Pages)
	}
}

func TestClassifierCapsPagesSent(t *testing.T) {
	reply := `{"document_type":"invoice","confidence":0.93,"reasoning":"header says invoice"}`
	provider := &fakeProvider{name: "primary", responses: []fakeReply{{text: reply}}}
	c := NewClassifier(newTestCaller(provider), 3, nil)

	out, err := c.Classify(context.Background(), pages(6))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.DocumentType != constants.TypeInvoice {
		t.Errorf("document type = %s, want invoice", out.DocumentType)
	}
	if got := len(provider.reqs[0].Pages); got != 3 {
		t.Errorf("pages sent = %d, want 3 (the configured cap)", got)
	}
}
