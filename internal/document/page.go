// Package document normalizes uploaded files into ordered page images ready
// for AI consumption.
package document

// ProcessedPage is one normalized, orientation-corrected page image plus any
// native text extracted from the source. Pages are 0-indexed and contiguous.
// Downstream stages consume pages read-only.
type ProcessedPage struct {
	Index   int
	Image   []byte
	Format  string // "jpeg" | "png"
	Width   int
	Height  int
	DPI     int
	Text    string // native text, empty for scanned sources
	Scanned bool   // true if rasterized from a non-text source
}

// Result is the format processor's output for one document.
type Result struct {
	Pages    []ProcessedPage
	Metadata map[string]string // source metadata (PDF info dict, EXIF subset)
}

// PageCount is a convenience accessor.
func (r *Result) PageCount() int { return len(r.Pages) }
