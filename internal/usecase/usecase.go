// Package usecase orchestrates the alignment run: probe, normalize, pick a
// strategy, trim, verify.
package usecase

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/valign/valign/internal/domain/search"
	"github.com/valign/valign/internal/domain/timestamp"
	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

const (
	// Default scan window when the caller gives no limit, in seconds.
	defaultMaxOffsetSeconds = 25

	// Assumed frame rate when the probed rate is degenerate.
	fallbackFrameRate = 25

	// Minimum timestamp-alignment confidence worth acting on.
	minTimestampConfidence = 0.2

	// The feature result wins unless its score trails the down-weighted
	// phase correlation score.
	phaseWeight = 0.8
)

type Deps struct {
	Media ports.MediaTool
	OCR   ports.OCR
}

type Usecase struct {
	d       Deps
	aligner *timestamp.Aligner
}

func New(d Deps) Usecase {
	return Usecase{
		d:       d,
		aligner: timestamp.NewAligner(d.Media, timestamp.NewExtractor(d.OCR)),
	}
}

type Input struct {
	ReferencePath string
	CapturedPath  string
	OutDir        string

	// MaxOffsetSeconds bounds the offset search window. <= 0 uses the default.
	MaxOffsetSeconds float64

	// DurationSeconds caps the aligned output length. <= 0 keeps everything.
	DurationSeconds float64

	// FrameExact switches to the descriptor/phase strategies instead of the
	// timestamp-then-visual cascade.
	FrameExact bool

	Progress types.ProgressFunc
	Status   types.StatusFunc
}

type Result struct {
	Alignment types.AlignmentResult
}

// Run aligns the captured video to the reference and writes the trimmed pair
// into the output directory.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	status := in.Status
	if status == nil {
		status = func(string) {}
	}

	status("probing inputs")
	ref, err := u.d.Media.Probe(ctx, in.ReferencePath)
	if err != nil {
		return Result{}, fmt.Errorf("probe reference: %w", err)
	}
	cap, err := u.d.Media.Probe(ctx, in.CapturedPath)
	if err != nil {
		return Result{}, fmt.Errorf("probe captured: %w", err)
	}

	if ref.FrameRate <= 0 {
		log.Warn().Str("input", ref.Path).Msg("invalid reference frame rate, assuming fallback")
		ref.FrameRate = fallbackFrameRate
	}
	if cap.FrameRate <= 0 {
		log.Warn().Str("input", cap.Path).Msg("invalid captured frame rate, assuming fallback")
		cap.FrameRate = fallbackFrameRate
	}

	ref, cap = u.normalizePair(ctx, in.OutDir, ref, cap, status)

	if in.FrameExact {
		return u.runFrameExact(ctx, in, ref, cap, status)
	}

	if u.d.OCR != nil {
		status("checking for a timestamp overlay")
		// Gate on the reference alone; an unreadable capture shows up as
		// missing anchors in the aligner, not as a reason to skip it.
		if u.aligner.DetectOverlay(ctx, ref) {
			status("aligning by burned-in timestamps")
			res, ok := u.tryTimestamp(ctx, in, ref, cap)
			if ok {
				return res, nil
			}
			log.Info().Msg("timestamp alignment inconclusive, falling back to visual search")
		}
	}

	status("searching for visual offset")
	return u.runVisual(ctx, in, ref, cap)
}

// normalizePair re-encodes both inputs to the reference's rate and
// resolution when the captured stream differs. Failures keep the originals;
// alignment can still proceed, just less reliably.
func (u Usecase) normalizePair(ctx context.Context, outDir string, ref, cap types.VideoInfo, status types.StatusFunc) (types.VideoInfo, types.VideoInfo) {
	sameShape := ref.Width == cap.Width && ref.Height == cap.Height
	sameRate := math.Abs(ref.FrameRate-cap.FrameRate) < 0.01
	if sameShape && sameRate && ref.PixFmt == cap.PixFmt {
		return ref, cap
	}

	status("normalizing inputs")
	rate, width, height := ref.FrameRate, ref.Width, ref.Height
	jobs := []struct {
		info *types.VideoInfo
		out  string
	}{
		{&ref, filepath.Join(outDir, "normalized_reference.mp4")},
		{&cap, filepath.Join(outDir, "normalized_captured.mp4")},
	}

	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(info *types.VideoInfo, out string) {
			defer wg.Done()
			if err := u.d.Media.Normalize(ctx, info.Path, out, rate, width, height); err != nil {
				log.Warn().Err(err).Str("input", info.Path).Msg("normalization failed, using original")
				return
			}
			probed, err := u.d.Media.Probe(ctx, out)
			if err != nil {
				log.Warn().Err(err).Str("output", out).Msg("probe of normalized output failed, using original")
				return
			}
			*info = probed
		}(jobs[i].info, jobs[i].out)
	}
	wg.Wait()
	return ref, cap
}

// tryTimestamp runs the OCR strategy. It only claims success when confidence
// clears the floor and it actually found something to trim.
func (u Usecase) tryTimestamp(ctx context.Context, in Input, ref, cap types.VideoInfo) (Result, bool) {
	trims, err := u.aligner.Align(ctx, ref, cap)
	if err != nil {
		log.Warn().Err(err).Msg("timestamp alignment failed")
		return Result{}, false
	}
	if !trims.OK || trims.Confidence < minTimestampConfidence {
		return Result{}, false
	}
	if trims.CapStart <= 0 && trims.CapEnd <= 0 {
		return Result{}, false
	}

	alignedDur := cap.Duration - trims.CapStart - trims.CapEnd
	if in.DurationSeconds > 0 && in.DurationSeconds < alignedDur {
		alignedDur = in.DurationSeconds
	}
	if alignedDur <= 0 {
		log.Warn().Float64("duration", alignedDur).Msg("timestamp trims leave no overlap")
		return Result{}, false
	}

	refOut := filepath.Join(in.OutDir, "aligned_reference.mp4")
	capOut := filepath.Join(in.OutDir, "aligned_captured.mp4")
	if err := u.d.Media.TrimSeconds(ctx, ref.Path, refOut, 0, alignedDur); err != nil {
		log.Warn().Err(err).Msg("reference trim failed")
		return Result{}, false
	}
	if err := u.d.Media.TrimSeconds(ctx, cap.Path, capOut, trims.CapStart, alignedDur); err != nil {
		log.Warn().Err(err).Msg("captured trim failed")
		return Result{}, false
	}

	frames, err := u.reconcileFrameCounts(ctx, refOut, capOut, ref.FrameRate)
	if err != nil {
		log.Warn().Err(err).Msg("frame count reconciliation failed")
		return Result{}, false
	}

	return Result{Alignment: types.AlignmentResult{
		Method:           types.MethodTimestamp,
		OffsetFrames:     int(trims.CapStart*ref.FrameRate + 0.5),
		OffsetSeconds:    trims.CapStart,
		Confidence:       trims.Confidence,
		AlignedReference: refOut,
		AlignedCaptured:  capOut,
		FrameCount:       frames,
	}}, true
}

func (u Usecase) runVisual(ctx context.Context, in Input, ref, cap types.VideoInfo) (Result, error) {
	maxOffSec := in.MaxOffsetSeconds
	if maxOffSec <= 0 {
		maxOffSec = defaultMaxOffsetSeconds
	}
	maxOff := int(maxOffSec*ref.FrameRate + 0.5)
	if maxOff < 1 {
		maxOff = 1
	}

	vis, err := search.NewVisual(ctx, u.d.Media, ref, cap)
	if err != nil {
		return Result{}, fmt.Errorf("visual search setup: %w", err)
	}

	window := search.Window{Min: -maxOff, Max: maxOff}
	cand, ok := search.Scan(ctx, vis, window, search.Options{
		CoarseStep: vis.CoarseStep(2 * maxOff),
		Progress:   in.Progress,
	})
	if !ok {
		return Result{}, fmt.Errorf("visual search found no comparable offsets within %d frames", maxOff)
	}

	log.Info().
		Int("offset_frames", cand.Offset).
		Float64("score", cand.Score).
		Msg("visual search selected offset")
	return u.finalizeFrames(ctx, in, ref, cap, cand.Offset, types.MethodSSIM, clamp01(cand.Score), false)
}

// runFrameExact races the descriptor and phase strategies and picks the
// stronger result. A panicking or failing strategy drops out with zero
// confidence instead of killing the run.
func (u Usecase) runFrameExact(ctx context.Context, in Input, ref, cap types.VideoInfo, status types.StatusFunc) (Result, error) {
	maxOffSec := in.MaxOffsetSeconds
	if maxOffSec <= 0 {
		maxOffSec = defaultMaxOffsetSeconds
	}
	maxOff := int(maxOffSec*ref.FrameRate + 0.5)
	if maxOff < 1 {
		maxOff = 1
	}

	status("matching frame descriptors")
	featCand, featOK := u.runStrategy("feature", func() (types.OffsetCandidate, bool) {
		f, err := search.NewFeature(ctx, u.d.Media, ref, cap)
		if err != nil {
			log.Warn().Err(err).Msg("feature strategy setup failed")
			return types.OffsetCandidate{}, false
		}
		return search.Scan(ctx, f, search.Window{Min: -maxOff, Max: maxOff}, search.Options{Progress: in.Progress})
	})

	status("running phase correlation")
	phaseCand, phaseOK := u.runStrategy("phase", func() (types.OffsetCandidate, bool) {
		p, err := search.NewPhase(ctx, u.d.Media, ref, cap)
		if err != nil {
			log.Warn().Err(err).Msg("phase strategy setup failed")
			return types.OffsetCandidate{}, false
		}
		sampleWin := maxOff / p.Interval()
		if sampleWin < 1 {
			sampleWin = 1
		}
		cand, ok := search.Scan(ctx, p, search.Window{Min: -sampleWin, Max: sampleWin}, search.Options{Progress: in.Progress})
		cand.Offset *= p.Interval()
		return cand, ok
	})

	var chosen types.OffsetCandidate
	switch {
	case featOK && phaseOK:
		if featCand.Score > phaseWeight*phaseCand.Score {
			chosen = featCand
		} else {
			chosen = phaseCand
		}
	case featOK:
		chosen = featCand
	case phaseOK:
		chosen = phaseCand
	default:
		return Result{}, fmt.Errorf("no frame-exact strategy produced a result")
	}

	log.Info().
		Str("method", string(chosen.Method)).
		Int("offset_frames", chosen.Offset).
		Float64("score", chosen.Score).
		Msg("frame-exact strategy selected")
	return u.finalizeFrames(ctx, in, ref, cap, chosen.Offset, chosen.Method, clamp01(chosen.Score), true)
}

// runStrategy shields the caller from a misbehaving strategy.
func (u Usecase) runStrategy(name string, fn func() (types.OffsetCandidate, bool)) (cand types.OffsetCandidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("strategy", name).Msg("strategy panicked")
			cand, ok = types.OffsetCandidate{}, false
		}
	}()
	return fn()
}

// finalizeFrames applies a frame offset: a positive offset means the
// captured video starts early, so its head is trimmed; a negative one trims
// the reference instead. Both outputs get the same frame count. Exact frame
// parity is a hard contract only when strict is set; otherwise a residual
// mismatch is logged and the outputs are returned best-effort.
func (u Usecase) finalizeFrames(ctx context.Context, in Input, ref, cap types.VideoInfo, offset int, method types.Method, confidence float64, strict bool) (Result, error) {
	refStart, capStart := 0, 0
	if offset > 0 {
		capStart = offset
	} else {
		refStart = -offset
	}

	frames := min(ref.FrameCount-refStart, cap.FrameCount-capStart)
	if in.DurationSeconds > 0 {
		if limit := int(in.DurationSeconds*ref.FrameRate + 0.5); limit < frames {
			frames = limit
		}
	}
	if frames <= 0 {
		return Result{}, fmt.Errorf("offset %d leaves no overlapping frames", offset)
	}

	refOut := filepath.Join(in.OutDir, "aligned_reference.mp4")
	capOut := filepath.Join(in.OutDir, "aligned_captured.mp4")
	if err := u.d.Media.TrimFrames(ctx, ref.Path, refOut, refStart, frames, ref.FrameRate); err != nil {
		return Result{}, fmt.Errorf("trim reference: %w", err)
	}
	if err := u.d.Media.TrimFrames(ctx, cap.Path, capOut, capStart, frames, ref.FrameRate); err != nil {
		return Result{}, fmt.Errorf("trim captured: %w", err)
	}

	got, err := u.reconcileFrameCounts(ctx, refOut, capOut, ref.FrameRate)
	if err != nil {
		if strict {
			return Result{}, err
		}
		log.Warn().Err(err).Msg("frame counts left unequal, returning outputs as-is")
		got = frames
	}

	return Result{Alignment: types.AlignmentResult{
		Method:           method,
		OffsetFrames:     offset,
		OffsetSeconds:    float64(offset) / ref.FrameRate,
		Confidence:       confidence,
		AlignedReference: refOut,
		AlignedCaptured:  capOut,
		FrameCount:       got,
	}}, nil
}

// reconcileFrameCounts verifies both outputs carry the same frame count and
// force-reencodes the longer one when rounding left them unequal.
func (u Usecase) reconcileFrameCounts(ctx context.Context, refPath, capPath string, frameRate float64) (int, error) {
	refInfo, err := u.d.Media.Probe(ctx, refPath)
	if err != nil {
		return 0, fmt.Errorf("probe trimmed reference: %w", err)
	}
	capInfo, err := u.d.Media.Probe(ctx, capPath)
	if err != nil {
		return 0, fmt.Errorf("probe trimmed captured: %w", err)
	}
	if refInfo.FrameCount == capInfo.FrameCount {
		return refInfo.FrameCount, nil
	}

	target := min(refInfo.FrameCount, capInfo.FrameCount)
	log.Info().
		Int("reference_frames", refInfo.FrameCount).
		Int("captured_frames", capInfo.FrameCount).
		Int("target", target).
		Msg("forcing equal frame counts")

	type forcedOut struct {
		tmp, final string
		count      int
	}
	outs := make([]forcedOut, 0, 2)
	for _, p := range []string{refPath, capPath} {
		tmp := forcedPath(p)
		if err := u.d.Media.ForceFrameCount(ctx, p, tmp, target, frameRate); err != nil {
			return 0, fmt.Errorf("force frame count for %s: %w", p, err)
		}
		info, err := u.d.Media.Probe(ctx, tmp)
		if err != nil {
			return 0, fmt.Errorf("probe forced output: %w", err)
		}
		outs = append(outs, forcedOut{tmp: tmp, final: p, count: info.FrameCount})
	}

	// Replace the originals only once both passes have succeeded, so a
	// failure leaves the trimmed pair untouched.
	for _, o := range outs {
		if err := replaceFile(o.tmp, o.final); err != nil {
			return 0, err
		}
	}
	if outs[0].count != outs[1].count {
		return 0, fmt.Errorf("frame counts still differ after forcing: %d vs %d", outs[0].count, outs[1].count)
	}
	return outs[0].count, nil
}

func forcedPath(p string) string {
	ext := filepath.Ext(p)
	return p[:len(p)-len(ext)] + ".forced" + ext
}

func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
