package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strconv"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// processImage runs the raster branch: EXIF orientation, flatten, deskew,
// optional contrast stretch, bounded resize, deterministic re-encode.
// Multi-frame TIFFs expand to multiple pages, order preserved.
// Image sources carry no native text, so every page is scanned.
func (p *Processor) processImage(ctx context.Context, raw []byte, mimeType string) (*Result, error) {
	frames, err := p.decodeFrames(raw, mimeType)
	if err != nil {
		return nil, err
	}
	if len(frames) > p.cfg.MaxPages {
		return nil, &common.LimitError{Resource: "pages", Actual: int64(len(frames)), Limit: int64(p.cfg.MaxPages)}
	}

	orientation := exifOrientation(raw)
	md := map[string]string{}
	if orientation > 1 {
		md["exif_orientation"] = strconv.Itoa(orientation)
	}

	pages := make([]ProcessedPage, 0, len(frames))
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img := flatten(applyOrientation(frame, orientation))
		if p.cfg.Deskew {
			if angle := estimateSkew(img); angle != 0 {
				p.logger.Debug("document.image.deskew", "page", i, "angle", angle)
				img = rotate(img, -angle)
			}
		}
		if p.cfg.EnhanceContrast {
			img = stretchContrast(img)
		}

		page, err := p.encodePage(img, i, true)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	p.logger.Debug("document.image.ok", "frames", len(frames), "orientation", orientation)
	return &Result{Pages: pages, Metadata: md}, nil
}

// decodeFrames decodes the input into one or more frames.
func (p *Processor) decodeFrames(raw []byte, mimeType string) ([]image.Image, error) {
	if constants.MapMIMEToFormat(mimeType) != constants.IMAGE {
		return nil, &common.InputError{Reason: "unsupported_format", Detail: mimeType}
	}

	var (
		frames []image.Image
		err    error
	)
	switch mimeType {
	case "image/tiff":
		frames, err = decodeTIFFFrames(raw)
	case "image/webp":
		var img image.Image
		img, err = webp.Decode(bytes.NewReader(raw))
		frames = []image.Image{img}
	case "image/png":
		var img image.Image
		img, err = png.Decode(bytes.NewReader(raw))
		frames = []image.Image{img}
	default: // image/jpeg
		var img image.Image
		img, err = jpeg.Decode(bytes.NewReader(raw))
		frames = []image.Image{img}
	}
	if err != nil {
		p.logger.Error("document.image.decode_failed", "mime_type", mimeType, "error", err)
		return nil, &common.InputError{Reason: "corrupt", Detail: fmt.Sprintf("decode %s: %v", mimeType, err)}
	}
	return frames, nil
}

// finishPage decodes a rendered PNG page (PDF branch) and runs the shared
// resize/encode tail.
func (p *Processor) finishPage(pngBytes []byte, index int, scanned bool) (ProcessedPage, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return ProcessedPage{}, &common.InputError{Reason: "corrupt", Detail: fmt.Sprintf("page %d: %v", index, err)}
	}
	return p.encodePage(img, index, scanned)
}

// encodePage resizes to the configured bound and encodes deterministically:
// JPEG for scanned pages (size), PNG for digital pages (text clarity).
func (p *Processor) encodePage(img image.Image, index int, scanned bool) (ProcessedPage, error) {
	img = p.resizeBounded(img)
	b := img.Bounds()

	var (
		buf    bytes.Buffer
		format string
		err    error
	)
	if scanned {
		format = "jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality})
	} else {
		format = "png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return ProcessedPage{}, fmt.Errorf("encode page %d: %w", index, err)
	}

	return ProcessedPage{
		Index:   index,
		Image:   buf.Bytes(),
		Format:  format,
		Width:   b.Dx(),
		Height:  b.Dy(),
		DPI:     p.cfg.DPI,
		Scanned: scanned,
	}, nil
}

// resizeBounded scales the image down so neither dimension exceeds the
// configured maximum. Catmull-Rom keeps the result deterministic.
func (p *Processor) resizeBounded(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	if maxDim <= p.cfg.MaxDimension {
		return img
	}

	scale := float64(p.cfg.MaxDimension) / float64(maxDim)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// exifOrientation reads the EXIF orientation tag; 1 means no correction.
func exifOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation corrects the common EXIF rotations. Mirrored orientations
// (2, 4, 5, 7) are rare in document photos and are left untouched.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return rotate180(img)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	}
	return img
}

func rotate90CW(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, img.At(x, y))
		}
	}
	return dst
}

func rotate90CCW(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-x, img.At(x, y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return dst
}

// flatten composites transparent pixels onto a white background and returns
// an RGBA image.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// stretchContrast applies a linear min-max luminance stretch.
func stretchContrast(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := gray8(img.RGBAAt(x, y))
			if g < lo {
				lo = g
			}
			if g > hi {
				hi = g
			}
		}
	}
	if hi <= lo {
		return img
	}

	span := int(hi) - int(lo)
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: stretch8(c.R, lo, span),
				G: stretch8(c.G, lo, span),
				B: stretch8(c.B, lo, span),
				A: c.A,
			})
		}
	}
	return dst
}

func stretch8(v, lo uint8, span int) uint8 {
	if v <= lo {
		return 0
	}
	n := (int(v) - int(lo)) * 255 / span
	if n > 255 {
		n = 255
	}
	return uint8(n)
}

func gray8(c color.RGBA) uint8 {
	// Rec. 601 luma
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
}

// decodeTIFFFrames expands a multi-frame TIFF into ordered frames.
func decodeTIFFFrames(raw []byte) ([]image.Image, error) {
	pages, err := splitTIFF(raw)
	if err != nil {
		return nil, err
	}
	frames := make([]image.Image, 0, len(pages))
	for _, pg := range pages {
		img, err := tiff.Decode(bytes.NewReader(pg))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}
