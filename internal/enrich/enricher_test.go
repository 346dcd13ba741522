package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

type fakeLookup struct {
	known map[string]string
	err   error
}

func (f *fakeLookup) Canonical(_ context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	c, ok := f.known[name]
	return c, ok, nil
}

func TestEnrichNormalizesCurrencySymbol(t *testing.T) {
	e := NewEnricher(nil, nil)
	out := e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{"currency": "$"})
	if out["currency"] != "USD" {
		t.Errorf("currency = %v, want USD", out["currency"])
	}

	out = e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{"currency": "eur"})
	if out["currency"] != "EUR" {
		t.Errorf("currency = %v, want EUR", out["currency"])
	}
}

func TestEnrichNormalizesDates(t *testing.T) {
	e := NewEnricher(nil, nil)
	cases := map[string]string{
		"03/15/2024":     "2024-03-15",
		"March 15, 2024": "2024-03-15",
		"2024-03-15":     "2024-03-15",
	}
	for in, want := range cases {
		out := e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{"invoice_date": in})
		if out["invoice_date"] != want {
			t.Errorf("invoice_date %q = %v, want %v", in, out["invoice_date"], want)
		}
	}

	out := e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{"invoice_date": "mid-March"})
	if out["invoice_date"] != "mid-March" {
		t.Errorf("unparseable date should pass through, got %v", out["invoice_date"])
	}
}

func TestEnrichCanonicalizesReceiptCategory(t *testing.T) {
	e := NewEnricher(nil, nil)
	out := e.Enrich(context.Background(), constants.TypeReceipt, map[string]any{"category": "Gas Station"})
	if out["category"] != "fuel" {
		t.Errorf("category = %v, want fuel", out["category"])
	}

	out = e.Enrich(context.Background(), constants.TypeReceipt, map[string]any{"category": "llamas"})
	if out["category"] != "other" {
		t.Errorf("unknown category = %v, want other", out["category"])
	}
}

func TestEnrichVendorLookupHitAndMiss(t *testing.T) {
	lookup := &fakeLookup{known: map[string]string{"AMZN Mktp US": "Amazon"}}
	e := NewEnricher(lookup, nil)

	out := e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{
		"vendor": map[string]any{"name": "AMZN Mktp US"},
	})
	if out["vendor"].(map[string]any)["name"] != "Amazon" {
		t.Errorf("vendor = %v, want canonicalized", out["vendor"])
	}

	out = e.Enrich(context.Background(), constants.TypeInvoice, map[string]any{
		"vendor": map[string]any{"name": "Corner Shop"},
	})
	if out["vendor"].(map[string]any)["name"] != "Corner Shop" {
		t.Errorf("miss should leave raw value, got %v", out["vendor"])
	}
}

func TestEnrichVendorLookupErrorDegradesGracefully(t *testing.T) {
	e := NewEnricher(&fakeLookup{err: errors.New("registry down")}, nil)
	out := e.Enrich(context.Background(), constants.TypeReceipt, map[string]any{
		"merchant": map[string]any{"name": "Corner Shop"},
	})
	if out["merchant"].(map[string]any)["name"] != "Corner Shop" {
		t.Errorf("lookup error must not alter the payload, got %v", out["merchant"])
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"currency": "$",
		"merchant": map[string]any{"name": "Shop"},
	}
	e := NewEnricher(nil, nil)
	_ = e.Enrich(context.Background(), constants.TypeReceipt, in)
	if in["currency"] != "$" {
		t.Error("input map was mutated")
	}
}
