package search

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/cache"
)

// ScoreFunc scores a complete schedule; lower is better. objective.Objective.Score
// has this shape.
type ScoreFunc func(schedule sim.DosingSchedule) (float64, error)

// Bounds are the inclusive integer limits of every tunable amount.
type Bounds struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Validate checks 0 <= Min <= Max.
func (b Bounds) Validate() error {
	if b.Min < 0 {
		return fmt.Errorf("bounds.min must be >= 0, got %d", b.Min)
	}
	if b.Max < b.Min {
		return fmt.Errorf("bounds.max (%d) must be >= bounds.min (%d)", b.Max, b.Min)
	}
	return nil
}

// Clamp limits x to [Min, Max].
func (b Bounds) Clamp(x float64) float64 {
	return math.Min(math.Max(x, float64(b.Min)), float64(b.Max))
}

// Width is the number of integer values in the range.
func (b Bounds) Width() int { return b.Max - b.Min + 1 }

// ClampVector clamps every amount of v.
func (b Bounds) ClampVector(v sim.DosageVector) sim.DosageVector {
	values := v.Values()
	for i := range values {
		values[i] = b.Clamp(values[i])
	}
	return sim.DosageFromValues(values)
}

// Evaluator scores dosage vectors by applying them to a base schedule. Scores
// go through the cache, so a vector is simulated at most once per cache.
// It is safe for concurrent use when the score function is.
type Evaluator struct {
	base  sim.DosingSchedule
	score ScoreFunc
	cache *cache.Cache

	evaluations atomic.Int64
	hits        atomic.Int64
}

// NewEvaluator creates an evaluator. A nil cache gets a fresh one.
func NewEvaluator(base sim.DosingSchedule, score ScoreFunc, c *cache.Cache) *Evaluator {
	if c == nil {
		c = cache.New()
	}
	return &Evaluator{base: base, score: score, cache: c}
}

// Base is the schedule whose timings every candidate shares.
func (e *Evaluator) Base() sim.DosingSchedule { return e.base }

// Dimensions is the length of the dosage vectors the evaluator accepts.
func (e *Evaluator) Dimensions() int { return e.base.Dosage().Len() }

// Schedule applies v to the base schedule.
func (e *Evaluator) Schedule(v sim.DosageVector) (sim.DosingSchedule, error) {
	return e.base.WithDosage(v)
}

// Evaluate returns the score of v.
func (e *Evaluator) Evaluate(v sim.DosageVector) (float64, error) {
	e.evaluations.Add(1)
	schedule, err := e.Schedule(v)
	if err != nil {
		return 0, err
	}
	score, hit, err := e.cache.GetOrCompute(v, func() (float64, error) {
		return e.score(schedule)
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate %s: %w", v, err)
	}
	if hit {
		e.hits.Add(1)
	}
	return score, nil
}

// Evaluations is the number of Evaluate calls so far, cache hits included.
func (e *Evaluator) Evaluations() int { return int(e.evaluations.Load()) }

// CacheHits is the number of Evaluate calls answered by the cache.
func (e *Evaluator) CacheHits() int { return int(e.hits.Load()) }
