package search

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/valign/valign/internal/domain/frames"
)

// noiseFrame fills a frame with deterministic pseudo-random values so that
// different seeds produce decorrelated content.
func noiseFrame(seed uint64, w, h int) *frames.Gray {
	g := &frames.Gray{W: w, H: h, Pix: make([]float64, w*h)}
	x := seed*2862933555777941757 + 3037000493
	for i := range g.Pix {
		x = x*2862933555777941757 + 3037000493
		g.Pix[i] = float64(x>>40) / float64(1<<24)
	}
	return g
}

func TestFFT2Roundtrip(t *testing.T) {
	t.Parallel()

	g := noiseFrame(1, 8, 6)
	back := ifft2(fft2(g))

	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			want := g.At(x, y)
			got := back[y][x]
			if cmplx.Abs(got-complex(want, 0)) > 1e-9 {
				t.Fatalf("roundtrip mismatch at (%d,%d): %v vs %v", x, y, got, want)
			}
		}
	}
}

func TestCorrelationPeak(t *testing.T) {
	t.Parallel()

	a := noiseFrame(1, 32, 24)
	b := noiseFrame(2, 32, 24)

	self := correlationPeak(a, a)
	if self < 0.9 {
		t.Fatalf("self correlation peak = %v, want near 1", self)
	}
	other := correlationPeak(a, b)
	if other >= self {
		t.Fatalf("unrelated frames peak %v >= self peak %v", other, self)
	}
	if other > 0.5 {
		t.Fatalf("unrelated frames peak = %v, want well below 1", other)
	}
}

func TestPhaseScore_RecoversSampleOffset(t *testing.T) {
	t.Parallel()

	// Captured samples carry the reference content two sample slots later.
	var ref, cap []*frames.Gray
	for i := 0; i < 10; i++ {
		ref = append(ref, noiseFrame(uint64(10+i), 32, 24))
	}
	cap = append(cap, noiseFrame(100, 32, 24), noiseFrame(101, 32, 24))
	for i := 0; i < 8; i++ {
		cap = append(cap, noiseFrame(uint64(10+i), 32, 24))
	}

	p := &Phase{ref: ref, cap: cap, interval: 3}
	if p.Interval() != 3 {
		t.Fatalf("interval = %d", p.Interval())
	}

	atTwo, ok := p.Score(context.Background(), 2, false)
	if !ok {
		t.Fatalf("expected valid score at true offset")
	}
	if atTwo < 0.9 {
		t.Fatalf("score at true offset = %v, want near 1", atTwo)
	}

	atZero, ok := p.Score(context.Background(), 0, false)
	if !ok {
		t.Fatalf("expected valid score at zero offset")
	}
	if atZero >= atTwo {
		t.Fatalf("zero offset score %v >= true offset score %v", atZero, atTwo)
	}

	if _, ok := p.Score(context.Background(), 10, false); ok {
		t.Fatalf("expected invalid score when no pairs are in range")
	}
}

func TestPhaseScore_SkipsShapeMismatch(t *testing.T) {
	t.Parallel()

	p := &Phase{
		ref:      []*frames.Gray{noiseFrame(1, 32, 24)},
		cap:      []*frames.Gray{noiseFrame(1, 16, 12)},
		interval: 1,
	}
	if _, ok := p.Score(context.Background(), 0, false); ok {
		t.Fatalf("expected invalid score for mismatched shapes")
	}
}
