package search

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// progressLogInterval throttles the periodic progress lines of long searches.
const progressLogInterval = 5 * time.Second

// Grid evaluates every integer vector inside the bounds, one tunable amount
// per dimension. The cost is Width()^dimensions evaluations.
type Grid struct {
	Bounds        Bounds
	Workers       int
	MaxCandidates int // 0 means no limit
	Trace         trace.TraceConfig
}

func (g *Grid) Name() string { return StrategyGrid }

// Candidates is the grid size for the given number of dimensions.
func (g *Grid) Candidates(dims int) (int, error) {
	width := g.Bounds.Width()
	total := 1
	for i := 0; i < dims; i++ {
		if total > math.MaxInt/width {
			return 0, fmt.Errorf("grid of %d^%d candidates overflows", width, dims)
		}
		total *= width
	}
	if g.MaxCandidates > 0 && total > g.MaxCandidates {
		return 0, fmt.Errorf("grid of %d candidates exceeds max_candidates %d", total, g.MaxCandidates)
	}
	return total, nil
}

// candidate decodes a grid index; the first dimension (basal) varies slowest,
// so index order is lexicographic order of the vectors.
func (g *Grid) candidate(index, dims int) sim.DosageVector {
	width := g.Bounds.Width()
	values := make([]float64, dims)
	for d := dims - 1; d >= 0; d-- {
		values[d] = float64(g.Bounds.Min + index%width)
		index /= width
	}
	return sim.DosageFromValues(values)
}

// Search evaluates the whole grid in parallel and returns the global minimum.
// Equal scores resolve to the lowest candidate index, so the answer does not
// depend on goroutine scheduling; such a swap is recorded as a zero-gain
// improvement. The first failed evaluation aborts the search.
func (g *Grid) Search(e *Evaluator, progress ProgressFunc) (*Result, error) {
	if err := g.Bounds.Validate(); err != nil {
		return nil, err
	}
	dims := e.Dimensions()
	total, err := g.Candidates(dims)
	if err != nil {
		return nil, err
	}
	workers := max(g.Workers, 1)
	logrus.Infof("[grid] %d candidates over %d dimensions in [%d, %d], %d workers",
		total, dims, g.Bounds.Min, g.Bounds.Max, workers)

	var (
		mu      sync.Mutex
		bestIdx = -1
		done    atomic.Int64
		logger  = rate.Sometimes{Interval: progressLogInterval}
	)
	t := &tracker{strategy: g.Name(), progress: progress, trace: trace.NewSearchTrace(g.Trace)}

	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(workers)
	for idx := 0; idx < total; idx++ {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			v := g.candidate(idx, dims)
			score, err := e.Evaluate(v)
			if err != nil {
				return err
			}
			n := done.Add(1)

			mu.Lock()
			switch {
			case !t.found || score < t.score:
				t.offer(v, score, idx, e.Evaluations())
				bestIdx = idx
			case score == t.score && idx < bestIdx:
				t.replace(v, idx, e.Evaluations())
				bestIdx = idx
			}
			best := t.score
			mu.Unlock()

			logger.Do(func() {
				logrus.Infof("[grid] %d/%d candidates, best %.6f", n, total, best)
			})
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("grid search: %w", err)
	}

	res, err := t.result(e)
	if err != nil {
		return nil, err
	}
	res.Iterations = total
	res.Reason = StopExhausted
	logrus.Infof("[grid] done: best %.6f at %s", res.BestScore, t.best)
	return res, nil
}
