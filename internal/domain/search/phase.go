package search

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/valign/valign/internal/domain/frames"
	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

const (
	phaseSampleCount = 10

	// Guards the cross-power normalization against zero spectra.
	phaseEpsilon = 1e-10
)

// Phase scores candidate offsets by phase correlation of sample-frame pairs.
// Both videos are sampled at the same frame interval, so the scorer works in
// sample-index units; multiply a winning offset by Interval to get frames.
type Phase struct {
	ref, cap []*frames.Gray
	interval int
}

var _ Scorer = (*Phase)(nil)

// NewPhase decodes up to phaseSampleCount frames from each video at a shared
// interval derived from the reference length.
func NewPhase(ctx context.Context, media ports.MediaTool, ref, cap types.VideoInfo) (*Phase, error) {
	if ref.FrameCount <= 0 || cap.FrameCount <= 0 {
		return nil, fmt.Errorf("phase correlation needs frame counts for both videos")
	}

	interval := ref.FrameCount / phaseSampleCount
	if interval < 1 {
		interval = 1
	}

	r, err := sampleGrays(ctx, media, ref, interval)
	if err != nil {
		return nil, fmt.Errorf("sample reference: %w", err)
	}
	c, err := sampleGrays(ctx, media, cap, interval)
	if err != nil {
		return nil, fmt.Errorf("sample captured: %w", err)
	}
	if len(r) == 0 || len(c) == 0 {
		return nil, fmt.Errorf("no frames sampled for phase correlation")
	}
	return &Phase{ref: r, cap: c, interval: interval}, nil
}

func (p *Phase) Method() types.Method { return types.MethodPhase }

// Interval is the frame spacing between consecutive samples.
func (p *Phase) Interval() int { return p.interval }

// Score averages the correlation peak over sample pairs (i, i+offset).
// Offset is in sample-index units.
func (p *Phase) Score(ctx context.Context, offset int, detailed bool) (float64, bool) {
	var sum float64
	var n int
	for i, rf := range p.ref {
		j := i + offset
		if j < 0 || j >= len(p.cap) {
			continue
		}
		cf := p.cap[j]
		if !rf.SameShape(cf) {
			continue
		}
		sum += correlationPeak(rf, cf)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sampleGrays(ctx context.Context, media ports.MediaTool, info types.VideoInfo, interval int) ([]*frames.Gray, error) {
	var positions []int
	for idx := 0; idx < info.FrameCount && len(positions) < phaseSampleCount; idx += interval {
		positions = append(positions, idx)
	}

	imgs, err := media.ExtractFrames(ctx, info.Path, positions)
	if err != nil {
		return nil, err
	}

	out := make([]*frames.Gray, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, frames.FromImage(img, visualWorkingHeight))
	}
	return out, nil
}

// correlationPeak computes the normalized cross-power spectrum of the two
// frames and returns the magnitude of the tallest peak in its inverse
// transform. Identical frames peak at 1, unrelated ones near 0.
func correlationPeak(a, b *frames.Gray) float64 {
	fa := fft2(a)
	fb := fft2(b)

	h, w := a.H, a.W
	cross := make([][]complex128, h)
	for y := 0; y < h; y++ {
		cross[y] = make([]complex128, w)
		for x := 0; x < w; x++ {
			num := fa[y][x] * cmplx.Conj(fb[y][x])
			den := cmplx.Abs(fa[y][x])*cmplx.Abs(fb[y][x]) + phaseEpsilon
			cross[y][x] = num / complex(den, 0)
		}
	}

	corr := ifft2(cross)

	peak := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m := cmplx.Abs(corr[y][x]); m > peak {
				peak = m
			}
		}
	}
	return peak
}
