package constants

import "strings"

// DocumentType is the closed set of document kinds the pipeline understands.
type DocumentType string

const (
	TypeInvoice  DocumentType = "invoice"
	TypeReceipt  DocumentType = "receipt"
	TypeMenu     DocumentType = "menu"
	TypeForm     DocumentType = "form"
	TypeContract DocumentType = "contract"
	TypeUnknown  DocumentType = "unknown"
)

var allDocumentTypes = []DocumentType{
	TypeInvoice,
	TypeReceipt,
	TypeMenu,
	TypeForm,
	TypeContract,
	TypeUnknown,
}

// DocumentTypes returns the stable list of known types.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(allDocumentTypes))
	copy(out, allDocumentTypes)
	return out
}

// ParseDocumentType maps free text onto a DocumentType.
// Unrecognized input yields TypeUnknown and false.
func ParseDocumentType(s string) (DocumentType, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	for _, t := range allDocumentTypes {
		if n == string(t) {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Extractable reports whether the pipeline has a schema contract for t.
// Forms and contracts are classified but not extracted yet.
func (t DocumentType) Extractable() bool {
	switch t {
	case TypeInvoice, TypeReceipt, TypeMenu:
		return true
	}
	return false
}
