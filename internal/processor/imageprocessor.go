// imageprocessor.go - Image preprocessing for page images sent to the LLM or OCR

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// PreprocessMode defines the level of image preprocessing
type PreprocessMode int

const (
	// BalancedMode resizes and lightly cleans up; used for LLM vision input
	BalancedMode PreprocessMode = iota
	// HighQualityMode picks an enhancement level from measured quality; used before OCR
	HighQualityMode
)

// PreprocessOptions controls PreprocessImage
type PreprocessOptions struct {
	Mode         PreprocessMode
	MaxDimension int
}

// DefaultPreprocessOptions matches the LLM input budget
var DefaultPreprocessOptions = PreprocessOptions{Mode: BalancedMode, MaxDimension: 2000}

// PreprocessImage decodes, resizes and enhances an image. PNG input stays
// PNG; everything else is re-encoded as JPEG. Formats the decoder does not
// know (HEIC, WebP) return an error and callers keep the original bytes.
func PreprocessImage(data []byte, opts PreprocessOptions) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	img = resizeToFit(img, opts.MaxDimension)

	quality := 90
	switch opts.Mode {
	case HighQualityMode:
		img = cleanupFor(qualityScore(img)).apply(img)
		img = imaging.Sharpen(img, 1.0)
		quality = 98
	default:
		img = imaging.Sharpen(img, 1.5)
		img = imaging.AdjustContrast(img, 20)
	}

	var buf bytes.Buffer
	mimeType := "image/jpeg"
	if format == "png" {
		err = png.Encode(&buf, img)
		mimeType = "image/png"
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), mimeType, nil
}

func resizeToFit(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

// qualityScore rates a page photo 0-100 from sampled luma: 40% for mean
// brightness near mid-grey, 60% for the spread between darkest and lightest.
func qualityScore(img image.Image) float64 {
	b := img.Bounds()
	stride := max(1, min(b.Dx(), b.Dy())/100)

	var sum float64
	lo, hi := 255.0, 0.0
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			l := float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			sum += l
			lo = math.Min(lo, l)
			hi = math.Max(hi, l)
			n++
		}
	}
	if n == 0 {
		return 0
	}

	brightness := 100 - math.Abs(sum/float64(n)-128)/1.28
	spread := math.Min((hi-lo)/2, 100)
	return 0.4*brightness + 0.6*spread
}

// enhancement is one cleanup profile for a scanned lease page
type enhancement struct {
	sharpen, contrast, brightness, gamma float64
	// despeckle adds a blur/sharpen pass for noisy scans
	despeckle bool
}

var (
	lightCleanup      = enhancement{sharpen: 2, contrast: 20, gamma: 1.05}
	standardCleanup   = enhancement{sharpen: 3, contrast: 35, brightness: 15, gamma: 1.15}
	aggressiveCleanup = enhancement{sharpen: 4, contrast: 55, brightness: 25, gamma: 1.3, despeckle: true}
)

func cleanupFor(score float64) enhancement {
	switch {
	case score < 50:
		return aggressiveCleanup
	case score < 75:
		return standardCleanup
	default:
		return lightCleanup
	}
}

func (e enhancement) apply(img image.Image) *image.NRGBA {
	out := imaging.Sharpen(img, e.sharpen)
	if e.brightness != 0 {
		out = imaging.AdjustBrightness(out, e.brightness)
	}
	out = imaging.Grayscale(out)
	out = imaging.AdjustContrast(out, e.contrast)
	out = imaging.AdjustGamma(out, e.gamma)
	if e.despeckle {
		out = imaging.Sharpen(imaging.Blur(out, 0.5), 2.5)
	}
	return out
}
