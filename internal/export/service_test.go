package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
)

type fakeLister struct {
	rows []*repository.Extraction
}

func (f *fakeLister) ListCompleted(context.Context, string, int) ([]*repository.Extraction, error) {
	return f.rows, nil
}

func TestExportXLSX(t *testing.T) {
	docID := uuid.New()
	lister := &fakeLister{rows: []*repository.Extraction{{
		ID:           uuid.New(),
		DocumentID:   docID,
		Version:      2,
		DocumentType: constants.TypeInvoice,
		Payload: []byte(`{"invoice_date":"2024-03-15","vendor":{"name":"Acme"},` +
			`"total_amount":108.0,"currency":"USD"}`),
		Confidence: 0.91,
		Level:      constants.ConfidenceHigh,
		Model:      "primary-model",
		CreatedAt:  time.Now(),
	}}}

	svc := NewService(lister, nil)
	out, err := svc.ExportXLSX(context.Background(), "invoice", 100)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Extractions")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[1][0] != docID.String() {
		t.Errorf("document id cell = %q", rows[1][0])
	}
	if rows[1][4] != "Acme" {
		t.Errorf("party cell = %q, want Acme", rows[1][4])
	}
	if rows[1][6] != "USD" {
		t.Errorf("currency cell = %q", rows[1][6])
	}
}
