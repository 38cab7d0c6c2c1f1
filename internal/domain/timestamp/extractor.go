// Package timestamp recovers wall-clock values burned into video frames and
// aligns two videos by matching them.
package timestamp

import (
	"context"
	"image"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"

	"github.com/valign/valign/internal/ports"
)

// Minimum region-of-interest size for the overlay crop, scaled up with the
// frame so the glyphs stay legible after downsampled captures.
const (
	minROIWidth  = 400
	minROIHeight = 60

	fixedThreshold = 150
)

// Extraction is the outcome of one OCR attempt on one frame. BestAttempt
// carries the last non-empty recognized string even when no grammar matched,
// so callers can log what the engine actually saw.
type Extraction struct {
	Seconds     float64
	OK          bool
	BestAttempt string
}

// Extractor recovers a burned-in timestamp from a decoded frame.
type Extractor struct {
	ocr ports.OCR
}

func NewExtractor(ocr ports.OCR) *Extractor {
	return &Extractor{ocr: ocr}
}

// Extract crops the overlay region, preprocesses it into six variants and
// OCRs each until one parses. Failure is reported, never fatal.
func (e *Extractor) Extract(ctx context.Context, frame image.Image) Extraction {
	roi := cropOverlayRegion(frame)

	// 2x upscale before binarization: tesseract wants glyphs >20px tall.
	up := resize.Resize(uint(roi.Bounds().Dx()*2), uint(roi.Bounds().Dy()*2), roi, resize.Lanczos3)

	gray := toGray(up)
	enhanced := stretchContrast(gray)

	variants := []*image.Gray{
		threshold(enhanced, fixedThreshold),
		threshold(enhanced, otsuThreshold(enhanced)),
		adaptiveThreshold(enhanced, 15, 10),
		threshold(boxBlur(enhanced, 1), otsuThreshold(enhanced)),
		gray,
		enhanced,
	}

	var best string
	for _, v := range variants {
		text, err := e.ocr.Recognize(ctx, v)
		if err != nil {
			log.Debug().Err(err).Msg("ocr invocation failed")
			continue
		}
		if t := trimGarbage(text); t != "" {
			best = t
		}
		if sec, ok := Parse(text); ok {
			return Extraction{Seconds: sec, OK: true, BestAttempt: best}
		}
	}

	log.Debug().Str("best_attempt", best).Msg("no timestamp found in frame")
	return Extraction{BestAttempt: best}
}

// cropOverlayRegion cuts the expected overlay location: anchored near the
// top-left, at least 400x60 and growing with the frame.
func cropOverlayRegion(frame image.Image) image.Image {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := float64(h) / 1080.0
	if scale < 1 {
		scale = 1
	}

	roiW := int(float64(minROIWidth) * scale)
	roiH := int(float64(minROIHeight) * scale)
	x0 := int(10 * scale)
	y0 := int(40 * scale)

	if x0+roiW > w {
		roiW = w - x0
	}
	if y0+roiH > h {
		y0 = 0
		if roiH > h {
			roiH = h
		}
	}
	if roiW <= 0 || roiH <= 0 {
		return frame
	}

	r := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x0+roiW, b.Min.Y+y0+roiH)
	if sub, ok := frame.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}

	out := image.NewRGBA(image.Rect(0, 0, roiW, roiH))
	for y := 0; y < roiH; y++ {
		for x := 0; x < roiW; x++ {
			out.Set(x, y, frame.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out
}
