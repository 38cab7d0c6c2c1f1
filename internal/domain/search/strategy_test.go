package search

import (
	"context"
	"testing"

	"github.com/valign/valign/internal/types"
)

type fakeScorer struct {
	score    func(offset int, detailed bool) (float64, bool)
	detailed []int
	coarse   []int
}

func (f *fakeScorer) Method() types.Method { return types.MethodSSIM }

func (f *fakeScorer) Score(_ context.Context, offset int, detailed bool) (float64, bool) {
	if detailed {
		f.detailed = append(f.detailed, offset)
	} else {
		f.coarse = append(f.coarse, offset)
	}
	return f.score(offset, detailed)
}

func TestScan_SinglePass(t *testing.T) {
	t.Parallel()

	sc := &fakeScorer{score: func(offset int, _ bool) (float64, bool) {
		return 1 - float64(abs(offset-3))/20, true
	}}

	got, ok := Scan(context.Background(), sc, Window{Min: -10, Max: 10}, Options{})
	if !ok {
		t.Fatalf("expected a result")
	}
	if got.Offset != 3 {
		t.Fatalf("offset = %d, want 3", got.Offset)
	}
	if got.Method != types.MethodSSIM {
		t.Fatalf("method = %s", got.Method)
	}
	if len(sc.coarse) != 0 {
		t.Fatalf("single pass must use the detailed metric only")
	}
	if len(sc.detailed) != 21 {
		t.Fatalf("expected 21 detailed evaluations, got %d", len(sc.detailed))
	}
}

func TestScan_CoarseThenRefine(t *testing.T) {
	t.Parallel()

	sc := &fakeScorer{score: func(offset int, _ bool) (float64, bool) {
		return 1 - float64(abs(offset-3))/20, true
	}}

	got, ok := Scan(context.Background(), sc, Window{Min: -10, Max: 10}, Options{CoarseStep: 4})
	if !ok {
		t.Fatalf("expected a result")
	}
	if got.Offset != 3 {
		t.Fatalf("offset = %d, want 3", got.Offset)
	}
	// Coarse grid -10,-6,-2,2,6,10; refinement within one stride of 2.
	if len(sc.coarse) != 6 {
		t.Fatalf("coarse evaluations = %v", sc.coarse)
	}
	for _, off := range sc.detailed {
		if off < -2 || off > 6 {
			t.Fatalf("refinement left the stride window: %v", sc.detailed)
		}
	}
}

func TestScan_SkipsInvalidOffsets(t *testing.T) {
	t.Parallel()

	// The only valid offset scores poorly; invalid ones would win if they
	// were scored instead of skipped.
	sc := &fakeScorer{score: func(offset int, _ bool) (float64, bool) {
		if offset != -4 {
			return 99, false
		}
		return 0.1, true
	}}

	got, ok := Scan(context.Background(), sc, Window{Min: -5, Max: 5}, Options{})
	if !ok {
		t.Fatalf("expected a result")
	}
	if got.Offset != -4 || got.Score != 0.1 {
		t.Fatalf("got %+v, want offset -4 score 0.1", got)
	}
}

func TestScan_AllInvalid(t *testing.T) {
	t.Parallel()

	sc := &fakeScorer{score: func(int, bool) (float64, bool) { return 0, false }}
	if _, ok := Scan(context.Background(), sc, Window{Min: -5, Max: 5}, Options{}); ok {
		t.Fatalf("expected no result")
	}
}

func TestScan_ProgressMonotonic(t *testing.T) {
	t.Parallel()

	var seen []int
	sc := &fakeScorer{score: func(int, bool) (float64, bool) { return 0.5, true }}
	Scan(context.Background(), sc, Window{Min: -50, Max: 50}, Options{
		CoarseStep: 5,
		Progress:   func(p int) { seen = append(seen, p) },
	})

	if len(seen) == 0 {
		t.Fatalf("no progress reported")
	}
	prev := -1
	for _, p := range seen {
		if p < 0 || p > 100 {
			t.Fatalf("progress out of range: %v", seen)
		}
		if p < prev {
			t.Fatalf("progress went backwards: %v", seen)
		}
		prev = p
	}
	if seen[len(seen)-1] != 100 {
		t.Fatalf("final progress = %d, want 100", seen[len(seen)-1])
	}
}
