package llm

import (
	"testing"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

func TestMergeChunksConcatenatesLineItems(t *testing.T) {
	chunks := []map[string]any{
		{
			"invoice_number": "INV-1",
			"line_items":     []any{map[string]any{"description": "a"}, map[string]any{"description": "b"}},
			"total_amount":   nil,
		},
		{
			"invoice_number": nil,
			"line_items":     []any{map[string]any{"description": "c"}},
			"total_amount":   108.0,
		},
	}
	merged := MergeChunks(constants.TypeInvoice, chunks)

	items, ok := merged["line_items"].([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("line_items = %v, want 3 items in page order", merged["line_items"])
	}
	if first := items[0].(map[string]any)["description"]; first != "a" {
		t.Errorf("first item = %v, want page order preserved", first)
	}
	if merged["invoice_number"] != "INV-1" {
		t.Errorf("invoice_number = %v, want first non-null value", merged["invoice_number"])
	}
	if merged["total_amount"] != 108.0 {
		t.Errorf("total_amount = %v, want value from second chunk", merged["total_amount"])
	}
}

func TestMergeChunksHeaderObjectsFillFieldByField(t *testing.T) {
	chunks := []map[string]any{
		{"vendor": map[string]any{"name": "Acme", "address": nil}, "line_items": []any{}},
		{"vendor": map[string]any{"name": "Acme Corp", "address": "1 Main St"}, "line_items": []any{}},
	}
	merged := MergeChunks(constants.TypeInvoice, chunks)

	vendor := merged["vendor"].(map[string]any)
	if vendor["name"] != "Acme" {
		t.Errorf("vendor.name = %v, want first value kept", vendor["name"])
	}
	if vendor["address"] != "1 Main St" {
		t.Errorf("vendor.address = %v, want filled from later chunk", vendor["address"])
	}
}

func TestMergeChunksMenuUsesItemsField(t *testing.T) {
	chunks := []map[string]any{
		{"items": []any{map[string]any{"name": "soup"}}},
		{"items": []any{map[string]any{"name": "salad"}}},
	}
	merged := MergeChunks(constants.TypeMenu, chunks)
	items := merged["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v, want 2", items)
	}
}

func TestMergeChunksSingleChunkPassesThrough(t *testing.T) {
	chunk := map[string]any{"total_amount": 5.0, "line_items": []any{}}
	merged := MergeChunks(constants.TypeReceipt, []map[string]any{chunk})
	if merged["total_amount"] != 5.0 {
		t.Errorf("total_amount = %v", merged["total_amount"])
	}
}
