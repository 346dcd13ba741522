// Package validation checks extracted payloads against per-type business
// rules. It is pure: same payload and rules in, same report out, no I/O.
package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// Severity orders defects by consequence. Critical fails the run, Major
// downgrades confidence, Minor is recorded only.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Defect is one rule violation found in an extraction payload.
type Defect struct {
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// Tolerance is the allowed slack when reconciling line items against a
// stated subtotal. A difference passes when it is within EITHER bound, so
// the looser of the two wins.
type Tolerance struct {
	Abs float64 // absolute currency units
	Pct float64 // fraction of the stated subtotal, e.g. 0.01 for 1%
}

func DefaultTolerance() Tolerance {
	return Tolerance{Abs: 0.01, Pct: 0.01}
}

func (t Tolerance) within(diff, base float64) bool {
	diff = math.Abs(diff)
	if diff <= t.Abs {
		return true
	}
	return base != 0 && diff <= t.Pct*math.Abs(base)
}

// Report is the outcome of validating one extraction.
type Report struct {
	Defects    []Defect                  `json:"defects"`
	Passed     bool                      `json:"passed"`
	Confidence float64                   `json:"confidence"`
	Level      constants.ConfidenceLevel `json:"confidence_level"`
}

// CountBySeverity returns how many defects carry the given severity.
func (r Report) CountBySeverity(s Severity) int {
	n := 0
	for _, d := range r.Defects {
		if d.Severity == s {
			n++
		}
	}
	return n
}

const (
	majorPenalty = 0.15
	maxNotesLen  = 500
)

// Validator applies the rule set for a document type. Rules are selected by
// a per-type table; unknown types validate trivially with an empty report.
type Validator struct {
	tolerance Tolerance
	now       func() time.Time
}

func NewValidator(tol Tolerance) *Validator {
	if tol.Abs <= 0 && tol.Pct <= 0 {
		tol = DefaultTolerance()
	}
	return &Validator{tolerance: tol, now: time.Now}
}

type ruleFunc func(v *Validator, data map[string]any) []Defect

var rulesByType = map[constants.DocumentType][]ruleFunc{
	constants.TypeInvoice: {
		requireTotal,
		reconcileLineItems("line_items"),
		plausibleDates("invoice_date", "due_date"),
		recognizedCurrency,
		optionalField("invoice_number"),
		optionalField("payment_terms"),
		boundedNotes,
	},
	constants.TypeReceipt: {
		requireTotal,
		reconcileLineItems("line_items"),
		plausibleDates("transaction_date"),
		recognizedCurrency,
		optionalField("receipt_number"),
		optionalField("payment_method"),
	},
	constants.TypeMenu: {
		requireItems,
	},
}

// Validate produces the report for one extraction. extractionConfidence is
// the model's self-reported score; Major defects downgrade it, Critical
// defects zero it and fail the report.
func (v *Validator) Validate(docType constants.DocumentType, data map[string]any, extractionConfidence float64) Report {
	var defects []Defect
	for _, rule := range rulesByType[docType] {
		defects = append(defects, rule(v, data)...)
	}

	confidence := clamp01(extractionConfidence)
	passed := true
	for _, d := range defects {
		switch d.Severity {
		case SeverityCritical:
			passed = false
			confidence = 0
		case SeverityMajor:
			confidence -= majorPenalty
		}
	}
	confidence = clamp01(confidence)

	return Report{
		Defects:    defects,
		Passed:     passed,
		Confidence: confidence,
		Level:      constants.LevelForScore(confidence),
	}
}

func requireTotal(_ *Validator, data map[string]any) []Defect {
	if _, ok := numberField(data, "total_amount"); !ok {
		return []Defect{{
			Field:    "total_amount",
			Rule:     "required",
			Severity: SeverityCritical,
			Detail:   "primary identifying field is absent",
		}}
	}
	return nil
}

func requireItems(_ *Validator, data map[string]any) []Defect {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return []Defect{{
			Field:    "items",
			Rule:     "required",
			Severity: SeverityCritical,
			Detail:   "menu extraction produced no items",
		}}
	}
	return nil
}

// reconcileLineItems checks that line totals sum to the stated subtotal.
// Absent subtotal or absent line totals make the check inapplicable rather
// than a defect; requireTotal guards the fields that must exist.
func reconcileLineItems(field string) ruleFunc {
	return func(v *Validator, data map[string]any) []Defect {
		subtotal, ok := numberField(data, "subtotal")
		if !ok {
			return nil
		}
		items, ok := data[field].([]any)
		if !ok || len(items) == 0 {
			return nil
		}

		var sum float64
		counted := 0
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if lt, ok := numberField(m, "line_total"); ok {
				sum += lt
				counted++
				continue
			}
			q, qok := numberField(m, "quantity")
			up, uok := numberField(m, "unit_price")
			if qok && uok {
				sum += q * up
				counted++
			}
		}
		if counted == 0 {
			return nil
		}

		if diff := sum - subtotal; !v.tolerance.within(diff, subtotal) {
			return []Defect{{
				Field:    "subtotal",
				Rule:     "line_item_reconciliation",
				Severity: SeverityMajor,
				Detail:   fmt.Sprintf("line items sum to %.2f, stated subtotal is %.2f", sum, subtotal),
			}}
		}
		return nil
	}
}

func plausibleDates(fields ...string) ruleFunc {
	return func(v *Validator, data map[string]any) []Defect {
		var defects []Defect
		earliest := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		latest := v.now().AddDate(1, 0, 0)
		for _, f := range fields {
			s, ok := stringField(data, f)
			if !ok {
				continue
			}
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				defects = append(defects, Defect{
					Field: f, Rule: "date_format", Severity: SeverityMajor,
					Detail: fmt.Sprintf("%q is not a YYYY-MM-DD date", s),
				})
				continue
			}
			if d.Before(earliest) || d.After(latest) {
				defects = append(defects, Defect{
					Field: f, Rule: "date_plausibility", Severity: SeverityMajor,
					Detail: fmt.Sprintf("%s is outside the plausible range", s),
				})
			}
		}
		return defects
	}
}

func recognizedCurrency(_ *Validator, data map[string]any) []Defect {
	s, ok := stringField(data, "currency")
	if !ok {
		return nil
	}
	if !knownCurrency(s) {
		return []Defect{{
			Field:    "currency",
			Rule:     "currency_code",
			Severity: SeverityMajor,
			Detail:   fmt.Sprintf("%q is not a recognized ISO 4217 code", s),
		}}
	}
	return nil
}

func optionalField(field string) ruleFunc {
	return func(_ *Validator, data map[string]any) []Defect {
		if _, ok := stringField(data, field); ok {
			return nil
		}
		return []Defect{{
			Field:    field,
			Rule:     "optional_absent",
			Severity: SeverityMinor,
		}}
	}
}

func boundedNotes(_ *Validator, data map[string]any) []Defect {
	s, ok := stringField(data, "notes")
	if !ok || len(s) <= maxNotesLen {
		return nil
	}
	return []Defect{{
		Field:    "notes",
		Rule:     "length",
		Severity: SeverityMinor,
		Detail:   fmt.Sprintf("%d chars exceeds expected %d", len(s), maxNotesLen),
	}}
}

func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
