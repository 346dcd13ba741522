package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// processPDF validates the PDF, extracts native text per page, decides the
// scanned/digital split, and rasterizes pages for AI vision calls.
// Encryption and the page limit fail fast before any rendering happens.
func (p *Processor) processPDF(ctx context.Context, raw []byte) (*Result, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(raw), conf)
	if err != nil {
		if isEncryptionErr(err) {
			p.logger.Error("document.pdf.encrypted")
			return nil, &common.InputError{Reason: "encrypted", Detail: "PDF requires a password"}
		}
		p.logger.Error("document.pdf.read_failed", "error", err)
		return nil, &common.InputError{Reason: "corrupt", Detail: err.Error()}
	}

	pageCount := pctx.PageCount
	if pageCount == 0 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "PDF has no pages"}
	}
	if pageCount > p.cfg.MaxPages {
		return nil, &common.LimitError{Resource: "pages", Actual: int64(pageCount), Limit: int64(p.cfg.MaxPages)}
	}

	texts := p.extractPageTexts(raw, pageCount)

	images, err := p.renderPages(ctx, raw, pageCount)
	if err != nil {
		return nil, err
	}
	if len(images) != pageCount {
		return nil, &common.InputError{Reason: "corrupt", Detail: fmt.Sprintf("rendered %d of %d pages", len(images), pageCount)}
	}

	pages := make([]ProcessedPage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		scanned := p.isScannedText(texts[i])
		page, err := p.finishPage(images[i], i, scanned)
		if err != nil {
			return nil, err
		}
		if !scanned {
			page.Text = texts[i]
		}
		pages = append(pages, page)

		p.logger.Debug("document.pdf.page",
			"page", i,
			"scanned", scanned,
			"text_chars", len(texts[i]),
		)
	}

	return &Result{Pages: pages, Metadata: pdfMetadata(pctx)}, nil
}

// extractPageTexts pulls native text per page. Extraction failures degrade to
// empty text, which downstream treats as a scanned page.
func (p *Processor) extractPageTexts(raw []byte, pageCount int) []string {
	texts := make([]string, pageCount)

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		p.logger.Warn("document.pdf.text_reader_failed", "error", err)
		return texts
	}
	n := r.NumPage()
	if n > pageCount {
		n = pageCount
	}
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("document.pdf.text_extract_failed", "page", i-1, "error", err)
			continue
		}
		texts[i-1] = txt
	}
	return texts
}

// renderPages rasterizes all pages via pdftoppm at the configured DPI.
// The raster output is deterministic for a given input and DPI.
func (p *Processor) renderPages(ctx context.Context, raw []byte, pageCount int) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "docintel-pdf-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("document.pdf.tmp_cleanup_failed", "path", tmpDir, "error", err)
		}
	}()

	src := filepath.Join(tmpDir, "source.pdf")
	if err := os.WriteFile(src, raw, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.PdftoppmBin, "-r", fmt.Sprintf("%d", p.cfg.DPI), "-png", src, prefix)
	if err != nil {
		p.logger.Error("document.pdf.render_failed", "error", err, "stderr", truncate(string(errb), 2<<10))
		return nil, &common.InputError{Reason: "corrupt", Detail: "page rendering failed"}
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "no pages rendered"}
	}
	if len(matches) > pageCount {
		matches = matches[:pageCount]
	}

	out := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func pdfMetadata(pctx *model.Context) map[string]string {
	md := map[string]string{}
	if pctx == nil {
		return md
	}
	if pctx.Title != "" {
		md["title"] = pctx.Title
	}
	if pctx.Author != "" {
		md["author"] = pctx.Author
	}
	if pctx.Subject != "" {
		md["subject"] = pctx.Subject
	}
	if pctx.Creator != "" {
		md["creator"] = pctx.Creator
	}
	if pctx.Producer != "" {
		md["producer"] = pctx.Producer
	}
	return md
}

func isEncryptionErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
