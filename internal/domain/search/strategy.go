// Package search implements the brute-force offset scan shared by the
// visual, descriptor and phase-correlation alignment strategies.
package search

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/valign/valign/internal/types"
)

// Scorer rates a single candidate offset. The boolean result is validity:
// offsets with no comparable sample pairs are skipped, not scored as zero,
// so they cannot bias the scan. The detailed flag selects the expensive
// metric during refinement; scorers with a single metric may ignore it.
type Scorer interface {
	Method() types.Method
	Score(ctx context.Context, offset int, detailed bool) (float64, bool)
}

// Window is the inclusive candidate offset range to scan.
type Window struct {
	Min, Max int
}

// Options tunes the scan loop. A CoarseStep above 1 enables the two-pass
// coarse/refine discipline; Progress may be nil.
type Options struct {
	CoarseStep int
	Progress   types.ProgressFunc
}

// Scan evaluates every candidate offset in w and returns the best-scoring
// one. With a coarse step it first scans at that stride using the cheap
// metric, then rescans every offset within one stride of the coarse best
// using the detailed metric. Progress is reported 0-50 during the coarse
// pass, 50-90 during refinement and 100 on completion.
func Scan(ctx context.Context, sc Scorer, w Window, opts Options) (types.OffsetCandidate, bool) {
	step := opts.CoarseStep
	if step < 1 {
		step = 1
	}
	report := func(p int) {
		if opts.Progress != nil {
			opts.Progress(p)
		}
	}

	if step == 1 {
		best, ok := scanRange(ctx, sc, w.Min, w.Max, 1, true, 0, 90, report)
		report(100)
		return best, ok
	}

	coarse, ok := scanRange(ctx, sc, w.Min, w.Max, step, false, 0, 50, report)
	if !ok {
		report(100)
		return types.OffsetCandidate{}, false
	}

	lo := coarse.Offset - step
	hi := coarse.Offset + step
	if lo < w.Min {
		lo = w.Min
	}
	if hi > w.Max {
		hi = w.Max
	}

	best, ok := scanRange(ctx, sc, lo, hi, 1, true, 50, 90, report)
	report(100)
	if !ok {
		// Refinement found nothing comparable; keep the coarse result.
		return coarse, true
	}
	return best, true
}

func scanRange(
	ctx context.Context,
	sc Scorer,
	lo, hi, step int,
	detailed bool,
	progressFrom, progressTo int,
	report func(int),
) (types.OffsetCandidate, bool) {
	best := types.OffsetCandidate{Method: sc.Method()}
	found := false

	total := (hi-lo)/step + 1
	if total < 1 {
		total = 1
	}
	for i, off := 0, lo; off <= hi; i, off = i+1, off+step {
		report(progressFrom + (progressTo-progressFrom)*i/total)

		score, valid := sc.Score(ctx, off, detailed)
		if !valid {
			continue
		}
		if !found || score > best.Score {
			best.Offset = off
			best.Score = score
			found = true
		}
	}

	if !found {
		log.Debug().
			Str("method", string(sc.Method())).
			Int("lo", lo).Int("hi", hi).
			Msg("no scorable offsets in range")
	}
	return best, found
}
