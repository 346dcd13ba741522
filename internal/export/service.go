// Package export produces XLSX workbooks from completed extractions.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
)

// ExtractionLister is the repository slice the exporter reads from.
type ExtractionLister interface {
	ListCompleted(ctx context.Context, docType string, limit int) ([]*repository.Extraction, error)
}

// Service is a tiny façade over the extraction repository that produces XLSX
// bytes for exports.
type Service struct {
	extractions ExtractionLister
	logger      *slog.Logger
}

func NewService(extractions ExtractionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{extractions: extractions, logger: logger}
}

// ExportXLSX returns a workbook of the latest extraction per completed
// document, one row each, optionally filtered by document type.
func (s *Service) ExportXLSX(ctx context.Context, docType string, limit int) ([]byte, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 10000
	}

	recs, err := s.extractions.ListCompleted(ctx, docType, limit)
	if err != nil {
		return nil, fmt.Errorf("query extractions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIdx, _ := f.GetSheetIndex("Sheet1"); defIdx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Document ID",
		"Type",
		"Version",
		"Date",
		"Party",
		"Total",
		"Currency",
		"Confidence",
		"Confidence Level",
		"Model",
		"Extracted At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, rec := range recs {
		var payload map[string]any
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			s.logger.Warn("export.bad_payload", "extraction_id", rec.ID, "error", err)
			continue
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, rec.DocumentID.String())
		write(2, string(rec.DocumentType))
		write(3, rec.Version)
		write(4, firstString(payload, "invoice_date", "transaction_date"))
		write(5, partyName(payload))
		if total, ok := payload["total_amount"].(float64); ok {
			write(6, total)
		}
		write(7, stringOr(payload, "currency", ""))
		write(8, rec.Confidence)
		write(9, string(rec.Level))
		write(10, rec.Model)
		write(11, rec.CreatedAt.UTC().Format(time.RFC3339))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // document id
	_ = f.SetColWidth(sheet, "B", "C", 10)
	_ = f.SetColWidth(sheet, "D", "D", 12) // date
	_ = f.SetColWidth(sheet, "E", "E", 28) // party
	_ = f.SetColWidth(sheet, "F", "G", 12)
	_ = f.SetColWidth(sheet, "H", "K", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_type", docType,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// partyName pulls the counterparty out of whichever nested object the
// document type carries.
func partyName(payload map[string]any) string {
	for _, field := range []string{"vendor", "merchant", "restaurant"} {
		if obj, ok := payload[field].(map[string]any); ok {
			if name, ok := obj["name"].(string); ok {
				return name
			}
		}
	}
	return ""
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringOr(payload map[string]any, key, fallback string) string {
	if s, ok := payload[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
