package ports

import (
	"context"
	"image"

	"github.com/valign/valign/internal/types"
)

// MediaTool wraps the external probe/decode/encode binary. Implementations
// must never require callers to parse tool-specific text output.
type MediaTool interface {
	Probe(ctx context.Context, path string) (types.VideoInfo, error)

	// ExtractFrames decodes exactly the frames at the given indices,
	// returned in ascending index order. Indices out of range are skipped.
	ExtractFrames(ctx context.Context, path string, indices []int) ([]image.Image, error)

	// TrimFrames re-encodes [startFrame, startFrame+frameCount) with
	// frame-accurate boundaries.
	TrimFrames(ctx context.Context, inPath, outPath string, startFrame, frameCount int, frameRate float64) error

	// ForceFrameCount re-encodes with an explicit output frame-count cap
	// and forced frame rate, correcting timebase-rounding drift.
	ForceFrameCount(ctx context.Context, inPath, outPath string, frames int, frameRate float64) error

	// Normalize re-encodes to the target rate/resolution/pixel format.
	Normalize(ctx context.Context, inPath, outPath string, frameRate float64, width, height int) error

	// TrimSeconds re-encodes starting at startSec for duration seconds
	// (duration <= 0 keeps the rest of the stream).
	TrimSeconds(ctx context.Context, inPath, outPath string, startSec, duration float64) error

	// BurnTimestamps draws a presentation-timestamp overlay onto every
	// frame. Used to prepare synthetic test content.
	BurnTimestamps(ctx context.Context, inPath, outPath string) error
}

// OCR recognizes a single line of text from a preprocessed image,
// constrained to digits, colon and period. Garbage output is a normal,
// expected outcome and must be returned, not treated as an error.
type OCR interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}
