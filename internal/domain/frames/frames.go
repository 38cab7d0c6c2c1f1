// Package frames provides grayscale frame buffers and the pixel-domain
// similarity metrics the offset searches score with.
package frames

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// Gray is a luminance frame with values normalized to [0,1].
type Gray struct {
	W, H int
	Pix  []float64
}

// FromImage converts an image to a normalized grayscale buffer. When
// targetHeight > 0 the image is first downscaled to that height, preserving
// aspect ratio.
func FromImage(img image.Image, targetHeight int) *Gray {
	if targetHeight > 0 && img.Bounds().Dy() > targetHeight {
		b := img.Bounds()
		w := uint(float64(b.Dx()) * float64(targetHeight) / float64(b.Dy()))
		img = resize.Resize(w, uint(targetHeight), img, resize.Bilinear)
	}

	bounds := img.Bounds()
	g := &Gray{W: bounds.Dx(), H: bounds.Dy()}
	g.Pix = make([]float64, g.W*g.H)

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b)
			g.Pix[idx] = lum / 65535.0
			idx++
		}
	}
	return g
}

// At returns the pixel at (x, y) without bounds checking.
func (g *Gray) At(x, y int) float64 { return g.Pix[y*g.W+x] }

// SameShape reports whether two frames have identical dimensions.
func (g *Gray) SameShape(o *Gray) bool { return g.W == o.W && g.H == o.H }

func (g *Gray) meanStd() (mean, std float64) {
	n := float64(len(g.Pix))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range g.Pix {
		sum += v
	}
	mean = sum / n
	var sq float64
	for _, v := range g.Pix {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

// NCC computes normalized cross-correlation between two frames of the same
// shape. Returns a value in [-1,1]; 1 means identical up to brightness/
// contrast. Mismatched shapes score 0.
func NCC(a, b *Gray) float64 {
	if !a.SameShape(b) || len(a.Pix) == 0 {
		return 0
	}

	n := float64(len(a.Pix))
	meanA, stdA := a.meanStd()
	meanB, stdB := b.meanStd()

	// Two constant frames are identical; one constant frame matches nothing.
	if stdA < 1e-10 && stdB < 1e-10 {
		return 1.0
	}
	if stdA < 1e-10 || stdB < 1e-10 {
		return 0
	}

	var sum float64
	for i := range a.Pix {
		sum += (a.Pix[i] - meanA) * (b.Pix[i] - meanB)
	}
	return sum / (n * stdA * stdB)
}

// SSIM constants for pixel values in [0,1].
const (
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03
)

// SSIM computes a global structural similarity index between two frames of
// the same shape. Costlier and more discriminative than NCC; used for the
// refinement pass. Mismatched shapes score 0.
func SSIM(a, b *Gray) float64 {
	if !a.SameShape(b) || len(a.Pix) == 0 {
		return 0
	}

	n := float64(len(a.Pix))
	meanA, stdA := a.meanStd()
	meanB, stdB := b.meanStd()

	var cov float64
	for i := range a.Pix {
		cov += (a.Pix[i] - meanA) * (b.Pix[i] - meanB)
	}
	cov /= n

	num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
	den := (meanA*meanA + meanB*meanB + ssimC1) * (stdA*stdA + stdB*stdB + ssimC2)
	return num / den
}
