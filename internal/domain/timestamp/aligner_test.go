package timestamp

import (
	"context"
	"fmt"
	"image"
	"sort"
	"testing"

	"github.com/valign/valign/internal/types"
)

// fakeMedia serves synthetic frames; only ExtractFrames matters here.
type fakeMedia struct{}

func (fakeMedia) Probe(_ context.Context, path string) (types.VideoInfo, error) {
	return types.VideoInfo{Path: path}, nil
}

func (fakeMedia) ExtractFrames(_ context.Context, _ string, indices []int) ([]image.Image, error) {
	imgs := make([]image.Image, len(indices))
	for i := range indices {
		imgs[i] = image.NewRGBA(image.Rect(0, 0, 640, 360))
	}
	return imgs, nil
}

func (fakeMedia) TrimFrames(_ context.Context, _, _ string, _, _ int, _ float64) error {
	return nil
}

func (fakeMedia) ForceFrameCount(_ context.Context, _, _ string, _ int, _ float64) error {
	return nil
}

func (fakeMedia) Normalize(_ context.Context, _, _ string, _ float64, _, _ int) error {
	return nil
}

func (fakeMedia) TrimSeconds(_ context.Context, _, _ string, _, _ float64) error {
	return nil
}

func (fakeMedia) BurnTimestamps(_ context.Context, _, _ string) error {
	return nil
}

// scriptedOCR returns one script entry per frame. Unparseable entries are
// served for all six preprocessing variants before advancing.
type scriptedOCR struct {
	scripts []string
	frame   int
	served  int
}

func (s *scriptedOCR) Recognize(_ context.Context, _ image.Image) (string, error) {
	if s.frame >= len(s.scripts) {
		return "", nil
	}
	text := s.scripts[s.frame]
	s.served++
	if _, ok := Parse(text); ok || s.served == 6 {
		s.frame++
		s.served = 0
	}
	return text, nil
}

func fmtSec(v float64) string { return fmt.Sprintf("%.6f", v) }

func TestAlign_MatchesAnchors(t *testing.T) {
	t.Parallel()

	ref := types.VideoInfo{Path: "ref.mp4", Duration: 5, FrameRate: 30, FrameCount: 150}
	cap := types.VideoInfo{Path: "cap.mp4", Duration: 10, FrameRate: 30, FrameCount: 300}

	// The captured video contains the reference content starting at 2s;
	// frames before that carry no readable overlay.
	var scripts []string
	for _, p := range SamplePositions(ref.FrameCount, sampleCount) {
		scripts = append(scripts, fmtSec(float64(p)/ref.FrameRate))
	}
	for _, p := range SamplePositions(cap.FrameCount, sampleCount) {
		vt := float64(p) / cap.FrameRate
		if vt < 2 {
			scripts = append(scripts, "junk")
		} else {
			scripts = append(scripts, fmtSec(vt-2))
		}
	}

	a := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{scripts: scripts}))
	got, err := a.Align(context.Background(), ref, cap)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if !got.OK {
		t.Fatalf("expected alignment, got %+v", got)
	}
	if got.RefStart != 0 || got.RefEnd != 0 {
		t.Fatalf("reference must not be trimmed: %+v", got)
	}
	if got.CapStart < 2.0 || got.CapStart > 2.3 {
		t.Fatalf("unexpected start trim: %v", got.CapStart)
	}
	if got.CapEnd < 2.5 || got.CapEnd > 3.1 {
		t.Fatalf("unexpected end trim: %v", got.CapEnd)
	}
	if got.Confidence != baseConfidence {
		t.Fatalf("unexpected confidence: %v", got.Confidence)
	}
}

func TestAlign_NoAnchors(t *testing.T) {
	t.Parallel()

	a := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{}))
	got, err := a.Align(context.Background(),
		types.VideoInfo{Path: "ref.mp4", Duration: 5, FrameRate: 30, FrameCount: 150},
		types.VideoInfo{Path: "cap.mp4", Duration: 5, FrameRate: 30, FrameCount: 150},
	)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if got.OK {
		t.Fatalf("expected no alignment, got %+v", got)
	}
}

func TestAlign_PenalizesDistantAnchors(t *testing.T) {
	t.Parallel()

	ref := types.VideoInfo{Path: "ref.mp4", Duration: 5, FrameRate: 30, FrameCount: 150}
	cap := types.VideoInfo{Path: "cap.mp4", Duration: 5, FrameRate: 30, FrameCount: 150}

	// Captured overlay is 50s off everywhere; both anchors get penalized.
	var scripts []string
	for _, p := range SamplePositions(ref.FrameCount, sampleCount) {
		scripts = append(scripts, fmtSec(float64(p)/ref.FrameRate))
	}
	for _, p := range SamplePositions(cap.FrameCount, sampleCount) {
		scripts = append(scripts, fmtSec(float64(p)/cap.FrameRate+50))
	}

	a := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{scripts: scripts}))
	got, err := a.Align(context.Background(), ref, cap)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if !got.OK {
		t.Fatalf("expected a result, got %+v", got)
	}
	if got.Confidence >= 0.2 {
		t.Fatalf("expected heavy confidence penalty, got %v", got.Confidence)
	}
}

func TestAlign_InvalidStream(t *testing.T) {
	t.Parallel()

	a := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{}))
	_, err := a.Align(context.Background(),
		types.VideoInfo{Path: "ref.mp4"},
		types.VideoInfo{Path: "cap.mp4", Duration: 5, FrameRate: 30, FrameCount: 150},
	)
	if err == nil {
		t.Fatalf("expected error for missing stream parameters")
	}
}

func TestSamplePositions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		frameCount, n int
	}{
		{frameCount: 150, n: 15},
		{frameCount: 10, n: 15},
		{frameCount: 2, n: 15},
		{frameCount: 1, n: 15},
		{frameCount: 1000, n: 2},
	}
	for _, tc := range cases {
		got := SamplePositions(tc.frameCount, tc.n)
		if len(got) == 0 {
			t.Fatalf("SamplePositions(%d,%d) empty", tc.frameCount, tc.n)
		}
		if !sort.IntsAreSorted(got) {
			t.Fatalf("SamplePositions(%d,%d) not sorted: %v", tc.frameCount, tc.n, got)
		}
		if got[0] != 0 {
			t.Fatalf("SamplePositions(%d,%d) missing first frame: %v", tc.frameCount, tc.n, got)
		}
		if got[len(got)-1] != tc.frameCount-1 && tc.frameCount > 1 {
			t.Fatalf("SamplePositions(%d,%d) missing last frame: %v", tc.frameCount, tc.n, got)
		}
		seen := map[int]bool{}
		for _, p := range got {
			if p < 0 || p >= tc.frameCount {
				t.Fatalf("position out of range: %v", got)
			}
			if seen[p] {
				t.Fatalf("duplicate position: %v", got)
			}
			seen[p] = true
		}
	}
}

func TestDetectOverlay(t *testing.T) {
	t.Parallel()

	a := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{scripts: []string{"00:00:01.000000"}}))
	if !a.DetectOverlay(context.Background(), types.VideoInfo{Path: "ref.mp4", FrameCount: 100}) {
		t.Fatalf("expected overlay detection")
	}

	b := NewAligner(fakeMedia{}, NewExtractor(&scriptedOCR{}))
	if b.DetectOverlay(context.Background(), types.VideoInfo{Path: "ref.mp4", FrameCount: 100}) {
		t.Fatalf("expected no overlay detection")
	}
}
