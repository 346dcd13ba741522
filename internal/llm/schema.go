package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// Schemas are JSON-Schema (draft 2020-12 subset) as generic maps. They gate
// acceptance of model output before anything is persisted.

func BuildClassificationSchema() map[string]any {
	types := make([]any, 0, 6)
	for _, t := range constants.DocumentTypes() {
		types = append(types, string(t))
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"document_type": map[string]any{"type": "string", "enum": types},
			"confidence":    confidenceProp(),
			"reasoning":     map[string]any{"type": "string"},
		},
		"required": []string{"document_type", "confidence"},
	}
}

func BuildInvoiceSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_number":        nullableString(),
			"invoice_date":          nullableDate(),
			"due_date":              nullableDate(),
			"purchase_order_number": nullableString(),
			"vendor": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"address": nullableString(),
					"tax_id":  nullableString(),
					"email":   nullableString(),
					"phone":   nullableString(),
				},
				"required": []string{"name"},
			},
			"customer": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":           nullableString(),
					"address":        nullableString(),
					"account_number": nullableString(),
				},
			},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"line_number":      nullableNumber(),
						"item_code":        nullableString(),
						"description":      map[string]any{"type": "string"},
						"quantity":         nullableNumber(),
						"unit":             nullableString(),
						"unit_price":       nullableNumber(),
						"discount_percent": nullableNumber(),
						"tax_percent":      nullableNumber(),
						"line_total":       nullableNumber(),
					},
					"required": []string{"description"},
				},
			},
			"subtotal":        nullableNumber(),
			"tax_amount":      nullableNumber(),
			"tax_rate":        nullableNumber(),
			"discount_amount": nullableNumber(),
			"shipping_amount": nullableNumber(),
			"total_amount":    nullableNumber(),
			"currency":        nullableCurrency(),
			"payment_terms":   nullableString(),
			"payment_method":  nullableString(),
			"bank_account":    nullableString(),
			"notes":           nullableString(),

			"extraction_confidence": confidenceProp(),
			"warnings":              warningsProp(),
		},
		"required": []string{"vendor", "line_items"},
	}
}

func BuildReceiptSchema() map[string]any {
	cats := make([]any, 0, 9)
	for _, c := range constants.CategoriesAsStrings() {
		cats = append(cats, c)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchant": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"address": nullableString(),
					"phone":   nullableString(),
				},
				"required": []string{"name"},
			},
			"receipt_number":   nullableString(),
			"transaction_date": nullableDate(),
			"transaction_time": map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{2}:\d{2}(:\d{2})?$`},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"quantity":    nullableNumber(),
						"unit_price":  nullableNumber(),
						"line_total":  nullableNumber(),
					},
					"required": []string{"description"},
				},
			},
			"subtotal":       nullableNumber(),
			"tax_amount":     nullableNumber(),
			"tip_amount":     nullableNumber(),
			"total_amount":   nullableNumber(),
			"currency":       nullableCurrency(),
			"payment_method": nullableString(),
			"card_last_four": map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{4}$`},
			"category":       map[string]any{"type": "string", "enum": cats},

			"extraction_confidence": confidenceProp(),
			"warnings":              warningsProp(),
		},
		"required": []string{"merchant", "line_items"},
	}
}

func BuildMenuSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"restaurant": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":         nullableString(),
					"cuisine_type": nullableString(),
					"menu_type":    nullableString(),
				},
			},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"category":       nullableString(),
						"name":           map[string]any{"type": "string"},
						"description":    nullableString(),
						"price":          nullableNumber(),
						"currency":       nullableCurrency(),
						"is_vegetarian":  nullableBool(),
						"is_vegan":       nullableBool(),
						"is_gluten_free": nullableBool(),
						"is_spicy":       nullableBool(),
						"spice_level":    nullableNumber(),
						"allergens":      map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
						"calories":       nullableNumber(),
					},
					"required": []string{"name"},
				},
			},
			"extraction_confidence": confidenceProp(),
			"warnings":              warningsProp(),
		},
		"required": []string{"items"},
	}
}

// SchemaFor returns the response-shape contract for a document type.
func SchemaFor(docType constants.DocumentType) (map[string]any, bool) {
	switch docType {
	case constants.TypeInvoice:
		return BuildInvoiceSchema(), true
	case constants.TypeReceipt:
		return BuildReceiptSchema(), true
	case constants.TypeMenu:
		return BuildMenuSchema(), true
	}
	return nil, false
}

func nullableString() map[string]any {
	return map[string]any{"type": []any{"string", "null"}}
}

func nullableNumber() map[string]any {
	return map[string]any{"type": []any{"number", "null"}}
}

func nullableBool() map[string]any {
	return map[string]any{"type": []any{"boolean", "null"}}
}

func nullableDate() map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{4}-\d{2}-\d{2}$`}
}

func nullableCurrency() map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "minLength": 3, "maxLength": 3}
}

func confidenceProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
}

func warningsProp() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
