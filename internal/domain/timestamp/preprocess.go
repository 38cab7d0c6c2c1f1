package timestamp

import (
	"image"
	"image/color"
	"strings"
)

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// stretchContrast remaps the luminance range of the image to span the full
// 0-255 scale. Cheap stand-in for local histogram equalization; enough to
// separate white overlay glyphs from their box on washed-out captures.
func stretchContrast(g *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, p := range g.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	out := image.NewGray(g.Bounds())
	if hi <= lo {
		copy(out.Pix, g.Pix)
		return out
	}
	span := float64(hi - lo)
	for i, p := range g.Pix {
		out.Pix[i] = uint8(float64(p-lo) / span * 255)
	}
	return out
}

func threshold(g *image.Gray, t int) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if int(p) >= t {
			out.Pix[i] = 255
		}
	}
	return out
}

// otsuThreshold picks the global threshold that maximizes between-class
// variance of the luminance histogram.
func otsuThreshold(g *image.Gray) int {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return fixedThreshold
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, wB float64
	bestT, bestVar := fixedThreshold, -1.0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > bestVar {
			bestVar = v
			bestT = t
		}
	}
	return bestT
}

// adaptiveThreshold binarizes against the mean of a (2*radius+1)-wide local
// window minus a constant bias, tracking uneven overlay backgrounds.
func adaptiveThreshold(g *image.Gray, radius, bias int) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(g.Bounds())

	// Summed-area table for O(1) window means.
	sat := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			row += int(g.Pix[y*g.Stride+x])
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + row
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-radius), min(h-1, y+radius)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-radius), min(w-1, x+radius)
			area := (y1 - y0 + 1) * (x1 - x0 + 1)
			s := sat[(y1+1)*(w+1)+x1+1] - sat[y0*(w+1)+x1+1] - sat[(y1+1)*(w+1)+x0] + sat[y0*(w+1)+x0]
			if int(g.Pix[y*g.Stride+x])*area >= s-bias*area {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// boxBlur applies a mean filter with the given radius.
func boxBlur(g *image.Gray, radius int) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(g.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					yy, xx := y+dy, x+dx
					if yy < 0 || yy >= h || xx < 0 || xx >= w {
						continue
					}
					sum += int(g.Pix[yy*g.Stride+xx])
					n++
				}
			}
			out.Pix[y*out.Stride+x] = uint8(sum / n)
		}
	}
	return out
}

// trimGarbage strips whitespace and anything outside the OCR whitelist.
func trimGarbage(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if (r >= '0' && r <= '9') || r == ':' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
