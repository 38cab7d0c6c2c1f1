package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/valign/valign/internal/domain/frames"
	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

const (
	// Frames are downscaled to this height before comparison.
	visualWorkingHeight = 240

	visualSampleCount = 12

	// Videos above this frame count scanned over windows above this many
	// offsets get a coarse pre-pass.
	coarseFrameThreshold  = 1000
	coarseWindowThreshold = 100
)

type refSample struct {
	index int
	gray  *frames.Gray
}

// Visual compares downscaled reference sample frames against captured frames
// at candidate offsets. The cheap metric is NCC, the detailed one SSIM.
// Captured frames are decoded lazily and cached, so only frames actually
// touched by the scan are ever extracted.
type Visual struct {
	media     ports.MediaTool
	capPath   string
	capFrames int

	ref   []refSample
	cache map[int]*frames.Gray
}

var _ Scorer = (*Visual)(nil)

// NewVisual decodes the reference sample frames up front. Samples are biased
// toward the start of the video, where capture lead-in differences live.
func NewVisual(ctx context.Context, media ports.MediaTool, ref, cap types.VideoInfo) (*Visual, error) {
	if ref.FrameCount <= 0 || cap.FrameCount <= 0 {
		return nil, fmt.Errorf("visual search needs frame counts for both videos")
	}

	positions := WeightedSamplePositions(ref.FrameCount, visualSampleCount)
	imgs, err := media.ExtractFrames(ctx, ref.Path, positions)
	if err != nil {
		return nil, fmt.Errorf("extract reference samples: %w", err)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no reference samples decoded from %s", ref.Path)
	}

	v := &Visual{
		media:     media,
		capPath:   cap.Path,
		capFrames: cap.FrameCount,
		cache:     make(map[int]*frames.Gray),
	}
	for i, img := range imgs {
		if i >= len(positions) {
			break
		}
		v.ref = append(v.ref, refSample{
			index: positions[i],
			gray:  frames.FromImage(img, visualWorkingHeight),
		})
	}
	return v, nil
}

func (v *Visual) Method() types.Method { return types.MethodSSIM }

// CoarseStep returns the stride for the coarse pass, or 1 when the scan is
// small enough to run the detailed metric everywhere.
func (v *Visual) CoarseStep(window int) int {
	if v.capFrames > coarseFrameThreshold && window > coarseWindowThreshold {
		return max(2, window/50)
	}
	return 1
}

// Score averages the frame metric over every reference sample whose
// counterpart at index+offset exists in the captured video.
func (v *Visual) Score(ctx context.Context, offset int, detailed bool) (float64, bool) {
	var need []int
	for _, s := range v.ref {
		idx := s.index + offset
		if idx < 0 || idx >= v.capFrames {
			continue
		}
		if _, ok := v.cache[idx]; !ok {
			need = append(need, idx)
		}
	}
	if err := v.fetch(ctx, need); err != nil {
		log.Warn().Err(err).Int("offset", offset).Msg("captured frame fetch failed")
		return 0, false
	}

	var sum float64
	var n int
	for _, s := range v.ref {
		cf, ok := v.cache[s.index+offset]
		if !ok || !s.gray.SameShape(cf) {
			continue
		}
		if detailed {
			sum += frames.SSIM(s.gray, cf)
		} else {
			sum += frames.NCC(s.gray, cf)
		}
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (v *Visual) fetch(ctx context.Context, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	imgs, err := v.media.ExtractFrames(ctx, v.capPath, indices)
	if err != nil {
		return err
	}
	for i, img := range imgs {
		if i >= len(indices) {
			break
		}
		v.cache[indices[i]] = frames.FromImage(img, visualWorkingHeight)
	}
	return nil
}

// WeightedSamplePositions picks n frame indices with half of them packed into
// the first quarter of the video and the rest spread over the remainder.
func WeightedSamplePositions(frameCount, n int) []int {
	if frameCount <= 0 {
		return nil
	}
	if n < 2 {
		n = 2
	}

	quarter := frameCount / 4
	if quarter < 1 {
		quarter = 1
	}
	front := n / 2
	rest := n - front

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

	for i := 0; i < front; i++ {
		add(i * quarter / front)
	}
	for i := 0; i < rest; i++ {
		add(quarter + i*(frameCount-quarter)/rest)
	}
	return out
}
