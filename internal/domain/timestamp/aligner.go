package timestamp

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

const (
	sampleCount = 15

	// Confidence starts here and is penalized per mismatched anchor.
	baseConfidence = 0.8

	// Anchor matches further apart than this (seconds) are penalized.
	anchorTolerance = 1.0
)

// Trims is the aligner's output: how much to cut from each end of each
// stream, in seconds. Only the captured stream is trimmed by this strategy.
type Trims struct {
	RefStart, RefEnd float64
	CapStart, CapEnd float64
	Confidence       float64
	OK               bool
}

// Aligner matches burned-in timestamps between a reference and a captured
// video and derives trim offsets.
type Aligner struct {
	media ports.MediaTool
	ex    *Extractor
}

func NewAligner(media ports.MediaTool, ex *Extractor) *Aligner {
	return &Aligner{media: media, ex: ex}
}

// DetectOverlay decodes one frame and reports whether a timestamp can be
// read from it. Cheap gate before committing to the full strategy.
func (a *Aligner) DetectOverlay(ctx context.Context, info types.VideoInfo) bool {
	idx := info.FrameCount / 2
	imgs, err := a.media.ExtractFrames(ctx, info.Path, []int{idx})
	if err != nil || len(imgs) == 0 {
		return false
	}
	return a.ex.Extract(ctx, imgs[0]).OK
}

// Align samples both videos, OCRs the overlay on each sample and matches the
// reference's first/last decoded timestamps to the closest captured ones.
func (a *Aligner) Align(ctx context.Context, ref, cap types.VideoInfo) (Trims, error) {
	refSamples, err := a.sample(ctx, ref)
	if err != nil {
		return Trims{}, fmt.Errorf("sample reference: %w", err)
	}
	capSamples, err := a.sample(ctx, cap)
	if err != nil {
		return Trims{}, fmt.Errorf("sample captured: %w", err)
	}

	refDecoded := decodedOnly(refSamples)
	capDecoded := decodedOnly(capSamples)
	if len(refDecoded) == 0 || len(capDecoded) == 0 {
		log.Warn().
			Int("ref_decoded", len(refDecoded)).
			Int("cap_decoded", len(capDecoded)).
			Msg("timestamp alignment has no usable anchors")
		return Trims{}, nil
	}

	startAnchor := *refDecoded[0].Decoded
	endAnchor := *refDecoded[len(refDecoded)-1].Decoded

	matchStart := closestByDecoded(capDecoded, startAnchor)
	matchEnd := closestByDecoded(capDecoded, endAnchor)

	t := Trims{
		CapStart:   matchStart.VideoTime,
		CapEnd:     cap.Duration - matchEnd.VideoTime,
		Confidence: baseConfidence,
		OK:         true,
	}
	if t.CapEnd < 0 {
		t.CapEnd = 0
	}

	if diff := math.Abs(*matchStart.Decoded - startAnchor); diff > anchorTolerance {
		t.Confidence *= 1 / (diff + 1)
	}
	if diff := math.Abs(*matchEnd.Decoded - endAnchor); diff > anchorTolerance {
		t.Confidence *= 1 / (diff + 1)
	}

	log.Info().
		Float64("cap_start_trim", t.CapStart).
		Float64("cap_end_trim", t.CapEnd).
		Float64("confidence", t.Confidence).
		Msg("timestamp alignment computed")
	return t, nil
}

func (a *Aligner) sample(ctx context.Context, info types.VideoInfo) ([]types.TimestampSample, error) {
	if info.FrameCount <= 0 || info.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid stream parameters for %s", info.Path)
	}

	positions := SamplePositions(info.FrameCount, sampleCount)
	imgs, err := a.media.ExtractFrames(ctx, info.Path, positions)
	if err != nil {
		return nil, err
	}

	samples := make([]types.TimestampSample, 0, len(imgs))
	for i, img := range imgs {
		if i >= len(positions) {
			break
		}
		s := types.TimestampSample{
			FrameIndex: positions[i],
			VideoTime:  float64(positions[i]) / info.FrameRate,
		}
		if ex := a.ex.Extract(ctx, img); ex.OK {
			v := ex.Seconds
			s.Decoded = &v
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// SamplePositions returns n frame indices evenly distributed over the video,
// always including the first and last frame, deduplicated and sorted.
func SamplePositions(frameCount, n int) []int {
	if frameCount <= 0 {
		return nil
	}
	if n < 2 {
		n = 2
	}

	seen := make(map[int]bool)
	var out []int
	add := func(p int) {
		if p < 0 {
			p = 0
		}
		if p > frameCount-1 {
			p = frameCount - 1
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(0)
	for i := 1; i < n-1; i++ {
		add(int(float64(i) / float64(n-1) * float64(frameCount)))
	}
	add(frameCount - 1)
	return out
}

func decodedOnly(samples []types.TimestampSample) []types.TimestampSample {
	var out []types.TimestampSample
	for _, s := range samples {
		if s.Decoded != nil {
			out = append(out, s)
		}
	}
	return out
}

func closestByDecoded(samples []types.TimestampSample, target float64) types.TimestampSample {
	best := samples[0]
	bestDiff := math.Abs(*best.Decoded - target)
	for _, s := range samples[1:] {
		if d := math.Abs(*s.Decoded - target); d < bestDiff {
			bestDiff = d
			best = s
		}
	}
	return best
}
