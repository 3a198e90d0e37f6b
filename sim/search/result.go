package search

import (
	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// StopReason says why a strategy finished.
type StopReason string

const (
	// StopExhausted means every grid candidate was evaluated.
	StopExhausted StopReason = "exhausted"
	// StopBudget means the local search step budget ran out.
	StopBudget StopReason = "budget"
	// StopStagnation means the best score stopped improving for the configured
	// number of generations.
	StopStagnation StopReason = "stagnation"
	// StopMaxGenerations means the generation cap was reached first.
	StopMaxGenerations StopReason = "max-generations"
)

// Result is the outcome of one search run.
type Result struct {
	Strategy    string
	Best        sim.DosingSchedule
	BestScore   float64
	Evaluations int // Evaluate calls, cache hits included
	CacheHits   int
	Iterations  int // candidates, steps or generations
	Reason      StopReason
	Trace       *trace.SearchTrace
	// History is the tracked score per iteration: the current score after each
	// local search step, the best-ever score after each generation. Grid search
	// leaves it empty.
	History []float64
}

// Improvement is reported to a ProgressFunc whenever a strategy's best score
// strictly improves.
type Improvement struct {
	Strategy    string
	Iteration   int
	Evaluations int
	Score       float64
	Previous    float64
	Dosage      sim.DosageVector
}

// ProgressFunc receives improvements. Strategies call it synchronously, never
// concurrently, from the goroutine that holds their best state; it should
// return quickly. A nil ProgressFunc is ignored.
type ProgressFunc func(Improvement)

// Strategy is one of the interchangeable optimizers.
type Strategy interface {
	Name() string
	Search(e *Evaluator, progress ProgressFunc) (*Result, error)
}

// tracker holds a strategy's best-so-far and reports improvements.
// Callers serialize access.
type tracker struct {
	strategy string
	progress ProgressFunc
	trace    *trace.SearchTrace

	found bool
	score float64
	best  sim.DosageVector
}

// offer records v as the new best if it strictly improves the score.
func (t *tracker) offer(v sim.DosageVector, score float64, iteration, evaluations int) bool {
	if t.found && score >= t.score {
		return false
	}
	previous := t.score
	if !t.found {
		previous = inf
	}
	t.found = true
	t.record(v, score, previous, iteration, evaluations)
	return true
}

// replace swaps in a vector scoring the same as the current best. It is
// recorded and reported like an improvement with zero gain, so the trace and
// the progress log end on the vector the result returns.
func (t *tracker) replace(v sim.DosageVector, iteration, evaluations int) {
	t.record(v, t.score, t.score, iteration, evaluations)
}

func (t *tracker) record(v sim.DosageVector, score, previous float64, iteration, evaluations int) {
	t.score = score
	t.best = v
	t.trace.RecordImprovement(trace.ImprovementRecord{
		Iteration:  iteration,
		Evaluation: evaluations,
		Score:      score,
		Previous:   previous,
		Dosage:     v.Values(),
	})
	if t.progress != nil {
		t.progress(Improvement{
			Strategy:    t.strategy,
			Iteration:   iteration,
			Evaluations: evaluations,
			Score:       score,
			Previous:    previous,
			Dosage:      v,
		})
	}
}

// result assembles the Result for the tracked best.
func (t *tracker) result(e *Evaluator) (*Result, error) {
	best, err := e.Schedule(t.best)
	if err != nil {
		return nil, err
	}
	return &Result{
		Strategy:    t.strategy,
		Best:        best,
		BestScore:   t.score,
		Evaluations: e.Evaluations(),
		CacheHits:   e.CacheHits(),
		Trace:       t.trace,
	}, nil
}
