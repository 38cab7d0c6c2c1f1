package search

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"

	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

const (
	featureSampleCount = 15

	// Frames are normalized to this size before descriptor extraction.
	featureWorkingWidth  = 640
	featureWorkingHeight = 360

	// Descriptors are difference hashes of a grid of patches.
	patchGridCols = 4
	patchGridRows = 4

	// Hamming distance below which two patch hashes count as a match.
	matchMaxDistance = 10

	// A reference sample only scores against a captured sample whose frame
	// index lands within this many frames of the shifted position.
	matchIndexGap = 5
)

// FrameDescriptors holds the patch-hash signature of one sampled frame.
type FrameDescriptors struct {
	Index  int
	Hashes []*goimagehash.ImageHash
}

// Feature scores candidate offsets by matching patch descriptors between
// reference and captured sample frames. The score for an offset is the mean
// fraction of cross-checked good matches over comparable sample pairs, in
// [0,1] so it is comparable with the phase correlation peak.
type Feature struct {
	ref, cap []FrameDescriptors
}

var _ Scorer = (*Feature)(nil)

// NewFeature extracts sample-frame descriptors from both videos.
func NewFeature(ctx context.Context, media ports.MediaTool, ref, cap types.VideoInfo) (*Feature, error) {
	r, err := ExtractDescriptors(ctx, media, ref)
	if err != nil {
		return nil, fmt.Errorf("describe reference: %w", err)
	}
	c, err := ExtractDescriptors(ctx, media, cap)
	if err != nil {
		return nil, fmt.Errorf("describe captured: %w", err)
	}
	if len(r) == 0 || len(c) == 0 {
		return nil, fmt.Errorf("no descriptors extracted")
	}
	return &Feature{ref: r, cap: c}, nil
}

func (f *Feature) Method() types.Method { return types.MethodFeature }

func (f *Feature) Score(ctx context.Context, offset int, detailed bool) (float64, bool) {
	var total, valid int
	for _, r := range f.ref {
		c, gap := closestDescriptors(f.cap, r.Index+offset)
		if gap > matchIndexGap {
			continue
		}
		total += countGoodMatches(r.Hashes, c.Hashes)
		valid++
	}
	if valid == 0 {
		return 0, false
	}
	return float64(total) / float64(valid*patchGridRows*patchGridCols), true
}

// ExtractDescriptors samples up to featureSampleCount frames evenly across
// the video and computes patch descriptors for each.
func ExtractDescriptors(ctx context.Context, media ports.MediaTool, info types.VideoInfo) ([]FrameDescriptors, error) {
	if info.FrameCount <= 0 {
		return nil, fmt.Errorf("no frame count for %s", info.Path)
	}

	interval := info.FrameCount / featureSampleCount
	if interval < 1 {
		interval = 1
	}
	var positions []int
	for idx := 0; idx < info.FrameCount && len(positions) < featureSampleCount; idx += interval {
		positions = append(positions, idx)
	}

	imgs, err := media.ExtractFrames(ctx, info.Path, positions)
	if err != nil {
		return nil, err
	}

	var out []FrameDescriptors
	for i, img := range imgs {
		if i >= len(positions) {
			break
		}
		hashes, err := describeFrame(img)
		if err != nil {
			return nil, fmt.Errorf("hash frame %d: %w", positions[i], err)
		}
		out = append(out, FrameDescriptors{Index: positions[i], Hashes: hashes})
	}
	return out, nil
}

// describeFrame downscales a frame and difference-hashes each grid patch.
func describeFrame(img image.Image) ([]*goimagehash.ImageHash, error) {
	small := resize.Resize(featureWorkingWidth, featureWorkingHeight, img, resize.Bilinear)

	rgba := image.NewRGBA(image.Rect(0, 0, featureWorkingWidth, featureWorkingHeight))
	draw.Draw(rgba, rgba.Bounds(), small, small.Bounds().Min, draw.Src)

	pw := featureWorkingWidth / patchGridCols
	ph := featureWorkingHeight / patchGridRows

	hashes := make([]*goimagehash.ImageHash, 0, patchGridCols*patchGridRows)
	for row := 0; row < patchGridRows; row++ {
		for col := 0; col < patchGridCols; col++ {
			patch := rgba.SubImage(image.Rect(col*pw, row*ph, (col+1)*pw, (row+1)*ph))
			h, err := goimagehash.DifferenceHash(patch)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

// countGoodMatches is nearest-neighbor matching with a cross check: a pair
// only counts when each hash is the other's closest and the distance clears
// the threshold.
func countGoodMatches(a, b []*goimagehash.ImageHash) int {
	good := 0
	for i := range a {
		j, d := nearest(a[i], b)
		if j < 0 || d >= matchMaxDistance {
			continue
		}
		if back, _ := nearest(b[j], a); back == i {
			good++
		}
	}
	return good
}

func nearest(h *goimagehash.ImageHash, pool []*goimagehash.ImageHash) (int, int) {
	bestIdx, bestDist := -1, 0
	for i, p := range pool {
		d, err := h.Distance(p)
		if err != nil {
			continue
		}
		if bestIdx < 0 || d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	return bestIdx, bestDist
}

func closestDescriptors(pool []FrameDescriptors, want int) (FrameDescriptors, int) {
	best := pool[0]
	bestGap := abs(best.Index - want)
	for _, d := range pool[1:] {
		if g := abs(d.Index - want); g < bestGap {
			best, bestGap = d, g
		}
	}
	return best, bestGap
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
