package constants

import "strings"

// Format is the processing branch for an input file.
type Format string

const (
	PDF   Format = "PDF"
	IMAGE Format = "IMAGE"
)

// AllowedMIMETypes holds the ingestable content types.
var AllowedMIMETypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/tiff":      {},
}

// MapMIMEToFormat routes a MIME type to a processing branch.
// Returns "" for unsupported types.
func MapMIMEToFormat(mime string) Format {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "application/pdf" {
		return PDF
	}
	if _, ok := AllowedMIMETypes[m]; ok && strings.HasPrefix(m, "image/") {
		return IMAGE
	}
	return ""
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEFromExt guesses a MIME type from a file extension for ingestion.
func MIMEFromExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "tif", "tiff":
		return "image/tiff"
	}
	return ""
}
