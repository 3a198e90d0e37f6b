package search

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// LocalSearch is a greedy random walk. Every step moves each amount by a random
// integer in [-MaxDelta, MaxDelta], clamped to the bounds, and keeps the proposal
// only if it scores strictly better than the current vector. It never accepts a
// worse move, so it stops at the first local minimum it cannot step out of.
// It runs on the calling goroutine.
type LocalSearch struct {
	Bounds Bounds
	Config LocalConfig
	RNG    *rand.Rand
	Trace  trace.TraceConfig
}

func (l *LocalSearch) Name() string { return StrategyLocal }

// propose perturbs every amount of current.
func (l *LocalSearch) propose(current sim.DosageVector) sim.DosageVector {
	values := current.Values()
	for i := range values {
		delta := l.RNG.Intn(2*l.Config.MaxDelta+1) - l.Config.MaxDelta
		values[i] = l.Bounds.Clamp(values[i] + float64(delta))
	}
	return sim.DosageFromValues(values)
}

// Search walks from the base schedule's amounts, clamped to the bounds, for
// Config.Steps steps. Result.History holds the current score after each step,
// starting with the initial score.
func (l *LocalSearch) Search(e *Evaluator, progress ProgressFunc) (*Result, error) {
	if err := l.Bounds.Validate(); err != nil {
		return nil, err
	}
	if l.RNG == nil {
		return nil, fmt.Errorf("local search: random source is required")
	}
	if l.Config.MaxDelta < 1 {
		return nil, fmt.Errorf("local search: max_delta must be >= 1, got %d", l.Config.MaxDelta)
	}

	t := &tracker{strategy: l.Name(), progress: progress, trace: trace.NewSearchTrace(l.Trace)}
	current := l.Bounds.ClampVector(e.Base().Dosage())
	currentScore, err := e.Evaluate(current)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}
	t.offer(current, currentScore, 0, e.Evaluations())
	history := make([]float64, 0, l.Config.Steps+1)
	history = append(history, currentScore)
	logrus.Infof("[local] start %s score %.6f, %d steps", current, currentScore, l.Config.Steps)

	for step := 1; step <= l.Config.Steps; step++ {
		proposal := l.propose(current)
		score, err := e.Evaluate(proposal)
		if err != nil {
			return nil, fmt.Errorf("local search step %d: %w", step, err)
		}
		if score < currentScore {
			current, currentScore = proposal, score
			t.offer(current, currentScore, step, e.Evaluations())
			logrus.Debugf("[local] step %d improved to %.6f at %s", step, currentScore, current)
		}
		history = append(history, currentScore)
	}

	res, err := t.result(e)
	if err != nil {
		return nil, err
	}
	res.Iterations = l.Config.Steps
	res.Reason = StopBudget
	res.History = history
	logrus.Infof("[local] done: best %.6f at %s (%d cache hits)", res.BestScore, current, res.CacheHits)
	return res, nil
}
