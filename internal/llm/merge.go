package llm

import (
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
)

// listFieldFor names the repeating collection per document type. Collections
// concatenate across chunks in page order; every other field takes the first
// non-null value seen.
func listFieldFor(docType constants.DocumentType) string {
	if docType == constants.TypeMenu {
		return "items"
	}
	return "line_items"
}

// MergeChunks combines per-chunk extraction payloads into one document-level
// payload. With a single chunk the payload passes through untouched.
func MergeChunks(docType constants.DocumentType, chunks []map[string]any) map[string]any {
	if len(chunks) == 0 {
		return map[string]any{}
	}
	if len(chunks) == 1 {
		return chunks[0]
	}

	listField := listFieldFor(docType)
	merged := map[string]any{}
	var items []any

	for _, chunk := range chunks {
		for k, v := range chunk {
			if k == listField {
				if vs, ok := v.([]any); ok {
					items = append(items, vs...)
				}
				continue
			}
			if v == nil {
				continue
			}
			if existing, present := merged[k]; !present || existing == nil {
				merged[k] = mergeValue(merged[k], v)
			} else if sub, ok := v.(map[string]any); ok {
				// Nested header objects (vendor, merchant, customer)
				// fill field-by-field across chunks.
				merged[k] = mergeValue(existing, sub)
			}
		}
	}

	merged[listField] = items
	if items == nil {
		merged[listField] = []any{}
	}
	return merged
}

func mergeValue(existing, incoming any) any {
	exMap, exOk := existing.(map[string]any)
	inMap, inOk := incoming.(map[string]any)
	if !exOk || !inOk {
		if existing == nil {
			return incoming
		}
		return existing
	}
	out := map[string]any{}
	for k, v := range exMap {
		out[k] = v
	}
	for k, v := range inMap {
		if v == nil {
			continue
		}
		if cur, present := out[k]; !present || cur == nil {
			out[k] = v
		}
	}
	return out
}
