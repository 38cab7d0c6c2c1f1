package search

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/valign/valign/internal/domain/frames"
)

// fft2 computes the 2-D discrete Fourier transform of a grayscale frame by
// transforming rows, then columns.
func fft2(g *frames.Gray) [][]complex128 {
	h, w := g.H, g.W
	out := make([][]complex128, h)

	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			row[x] = complex(g.Pix[y*w+x], 0)
		}
		out[y] = rowFFT.Coefficients(nil, row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = out[y][x]
		}
		coeff := colFFT.Coefficients(nil, col)
		for y := 0; y < h; y++ {
			out[y][x] = coeff[y]
		}
	}
	return out
}

// ifft2 is the inverse 2-D transform. Gonum's Sequence is unnormalized, so
// the result is divided by the element count.
func ifft2(f [][]complex128) [][]complex128 {
	h := len(f)
	if h == 0 {
		return nil
	}
	w := len(f[0])

	out := make([][]complex128, h)
	rowFFT := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		out[y] = rowFFT.Sequence(nil, f[y])
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	norm := complex(float64(w*h), 0)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = out[y][x]
		}
		seq := colFFT.Sequence(nil, col)
		for y := 0; y < h; y++ {
			out[y][x] = seq[y] / norm
		}
	}
	return out
}
