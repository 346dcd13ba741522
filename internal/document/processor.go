package document

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// Config holds format-processor knobs. Output is deterministic given the same
// input bytes and the same Config.
type Config struct {
	MaxPages         int
	DPI              int
	MaxDimension     int
	JPEGQuality      int
	ScannedTextChars int // pages with fewer alphanumeric chars count as scanned
	Deskew           bool
	EnhanceContrast  bool
	PdftoppmBin      string
}

// Processor routes a raw upload to the PDF or image branch and produces an
// ordered page sequence.
type Processor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewProcessor(cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 2000
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.ScannedTextChars <= 0 {
		cfg.ScannedTextChars = 100
	}
	if cfg.PdftoppmBin == "" {
		cfg.PdftoppmBin = "pdftoppm"
	}
	return &Processor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner replaces the external-command runner. Tests use this to avoid
// spawning pdftoppm.
func (p *Processor) WithRunner(r Runner) *Processor {
	p.runner = r
	return p
}

// Normalize converts raw bytes into an ordered ProcessedPage sequence.
// Fails with *common.InputError for unsupported/encrypted/corrupt input and
// *common.LimitError when the page limit is exceeded.
func (p *Processor) Normalize(ctx context.Context, raw []byte, mimeType string) (*Result, error) {
	start := time.Now()
	format := constants.MapMIMEToFormat(mimeType)

	var (
		res *Result
		err error
	)
	switch format {
	case constants.PDF:
		res, err = p.processPDF(ctx, raw)
	case constants.IMAGE:
		res, err = p.processImage(ctx, raw, mimeType)
	default:
		return nil, &common.InputError{Reason: "unsupported_format", Detail: fmt.Sprintf("mime type %q", mimeType)}
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("document.normalize.ok",
		"mime_type", mimeType,
		"pages", len(res.Pages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// isScannedText decides the scanned/digital split for a page: a page is
// scanned when its native text carries fewer alphanumeric characters than the
// configured threshold.
func (p *Processor) isScannedText(text string) bool {
	count := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			count++
			if count >= p.cfg.ScannedTextChars {
				return false
			}
		}
	}
	return true
}
