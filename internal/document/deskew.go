package document

import (
	"image"
	"math"
)

const (
	maxSkewDegrees  = 10.0 // larger angles are assumed intentional
	minSkewDegrees  = 0.5  // smaller angles are not worth resampling for
	skewStepDegrees = 0.5
	skewSampleWidth = 600 // downsample bound for angle search
)

// estimateSkew finds the dominant text-line angle in degrees by maximizing
// the variance of sheared row projections over binarized pixels. Returns 0
// when the detected angle is outside the correctable window.
func estimateSkew(img *image.RGBA) float64 {
	pts := samplePoints(img)
	if len(pts) < 64 {
		return 0
	}

	bestAngle, bestScore := 0.0, -1.0
	for a := -maxSkewDegrees; a <= maxSkewDegrees+1e-9; a += skewStepDegrees {
		score := projectionScore(pts, a)
		if score > bestScore {
			bestScore = score
			bestAngle = a
		}
	}

	if math.Abs(bestAngle) < minSkewDegrees || math.Abs(bestAngle) > maxSkewDegrees {
		return 0
	}
	return bestAngle
}

type point struct{ x, y float64 }

// samplePoints binarizes dark pixels on a downsampled grid.
func samplePoints(img *image.RGBA) []point {
	b := img.Bounds()
	step := 1
	if b.Dx() > skewSampleWidth {
		step = b.Dx() / skewSampleWidth
	}

	var pts []point
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			if gray8(img.RGBAAt(x, y)) < 128 {
				pts = append(pts, point{float64(x - b.Min.X), float64(y - b.Min.Y)})
			}
		}
	}
	return pts
}

// projectionScore shears the points by the candidate angle and measures how
// sharply they concentrate into rows.
func projectionScore(pts []point, degrees float64) float64 {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	hist := map[int]int{}
	for _, p := range pts {
		row := int(math.Round(p.y*cos - p.x*sin))
		hist[row]++
	}

	var score float64
	for _, n := range hist {
		score += float64(n) * float64(n)
	}
	return score
}

// rotate resamples the image rotated by the given angle (degrees, positive =
// counter-clockwise) around its center, replicating border pixels.
func rotate(img *image.RGBA, degrees float64) *image.RGBA {
	if degrees == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)/2, float64(h)/2

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// inverse mapping into the source
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(math.Round(cx + dx*cos + dy*sin))
			sy := int(math.Round(cy - dx*sin + dy*cos))
			if sx < 0 {
				sx = 0
			} else if sx >= w {
				sx = w - 1
			}
			if sy < 0 {
				sy = 0
			} else if sy >= h {
				sy = h - 1
			}
			dst.SetRGBA(x, y, img.RGBAAt(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}
