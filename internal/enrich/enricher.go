// Package enrich normalizes extracted values into canonical forms. It makes
// no AI calls; the only external collaborator is an optional vendor lookup,
// and a failed lookup leaves the raw value in place.
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// VendorLookup canonicalizes vendor/merchant names against an external
// registry. Implementations return ok=false (not an error) for misses.
type VendorLookup interface {
	Canonical(ctx context.Context, name string) (canonical string, ok bool, err error)
}

type Enricher struct {
	vendors VendorLookup // nil disables lookup
	logger  *slog.Logger
}

func NewEnricher(vendors VendorLookup, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{vendors: vendors, logger: logger}
}

// Enrich returns a normalized copy of the payload. The input map is never
// mutated; downstream consumers may still hold the raw extraction.
func (e *Enricher) Enrich(ctx context.Context, docType constants.DocumentType, data map[string]any) map[string]any {
	out := deepCopy(data)

	normalizeCurrencyField(out, "currency")
	for _, f := range []string{"invoice_date", "due_date", "transaction_date"} {
		normalizeDateField(out, f)
	}

	switch docType {
	case constants.TypeReceipt:
		e.normalizeCategory(out)
		e.canonicalizeParty(ctx, out, "merchant")
	case constants.TypeInvoice:
		e.canonicalizeParty(ctx, out, "vendor")
	case constants.TypeMenu:
		if items, ok := out["items"].([]any); ok {
			for _, it := range items {
				if m, ok := it.(map[string]any); ok {
					normalizeCurrencyField(m, "currency")
				}
			}
		}
	}
	return out
}

func (e *Enricher) normalizeCategory(data map[string]any) {
	raw, ok := data["category"].(string)
	if !ok || raw == "" {
		return
	}
	cat, known := constants.Canonicalize(raw)
	if !known && cat == constants.Other {
		e.logger.Debug("enrich.category.fallback", "raw", raw)
	}
	data["category"] = string(cat)
}

// canonicalizeParty rewrites the name inside a nested party object (vendor,
// merchant) when the lookup recognizes it. Errors and misses leave the raw
// name untouched.
func (e *Enricher) canonicalizeParty(ctx context.Context, data map[string]any, field string) {
	if e.vendors == nil {
		return
	}
	party, ok := data[field].(map[string]any)
	if !ok {
		return
	}
	name, ok := party["name"].(string)
	if !ok || name == "" {
		return
	}
	canonical, found, err := e.vendors.Canonical(ctx, name)
	if err != nil {
		e.logger.Warn("enrich.vendor_lookup.failed", "name", name, "error", err)
		return
	}
	if found && canonical != "" {
		party["name"] = canonical
	}
}

// currencySymbols maps symbols and informal codes onto ISO 4217.
var currencySymbols = map[string]string{
	"$":   "USD",
	"us$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
	"₩":   "KRW",
	"a$":  "AUD",
	"c$":  "CAD",
	"r$":  "BRL",
	"chf": "CHF",
	"kr":  "SEK",
	"zł":  "PLN",
}

func normalizeCurrencyField(data map[string]any, field string) {
	raw, ok := data[field].(string)
	if !ok || raw == "" {
		return
	}
	key := strings.ToLower(strings.TrimSpace(raw))
	if iso, ok := currencySymbols[key]; ok {
		data[field] = iso
		return
	}
	if len(raw) == 3 {
		data[field] = strings.ToUpper(key)
	}
}

// dateLayouts covers the formats models emit when they ignore instructions.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006/01/02",
}

func normalizeDateField(data map[string]any, field string) {
	raw, ok := data[field].(string)
	if !ok || raw == "" {
		return
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			data[field] = d.Format("2006-01-02")
			return
		}
	}
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = copyValue(e)
		}
		return cp
	default:
		return v
	}
}
