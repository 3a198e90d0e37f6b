// Package objective scores simulated glucose traces. Lower scores are better.
//
// The score is a convex combination of normalized sub-metrics computed over the
// final simulated day (the steady-state window):
//
//	hypo      fraction of minutes with blood glucose below the hypo threshold
//	hyper     fraction of minutes at or above the hyper threshold
//	amplitude max-min glucose, clamped to the ceiling and divided by it
//	dose      total insulin / (MaxAmount * (1 + number of boluses))
//
// score = Σ wᵢ·mᵢ / Σ wᵢ. With a positive WarmupFactor the hypo and hyper
// fractions of the earlier days join the sum with weights scaled by the factor.
package objective

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mdi-sim/mdi-sim/sim"
)

// ErrShortTrace is returned when a trace does not cover one full day.
var ErrShortTrace = errors.New("trace shorter than one day")

// Config holds the objective's tuning parameters.
type Config struct {
	Weights          Weights `yaml:"weights"`
	HypoThreshold    float64 `yaml:"hypo_threshold"`    // mmol/l, below is hypoglycemia
	HyperThreshold   float64 `yaml:"hyper_threshold"`   // mmol/l, at or above is hyperglycemia
	AmplitudeCeiling float64 `yaml:"amplitude_ceiling"` // mmol/l, amplitude saturates here
	WarmupFactor     float64 `yaml:"warmup_factor"`     // 0 disables warm-up terms
	// MaxAmount normalizes the dose load; it is the upper dosage bound of the experiment.
	MaxAmount float64 `yaml:"-"`
}

// DefaultConfig returns the reference configuration for the given dosage bound.
func DefaultConfig(maxAmount float64) Config {
	return Config{
		Weights:          DefaultWeights(),
		HypoThreshold:    4,
		HyperThreshold:   10,
		AmplitudeCeiling: 6,
		MaxAmount:        maxAmount,
	}
}

// Validate checks thresholds, weights and the dose normalization.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if !(c.HypoThreshold < c.HyperThreshold) {
		return fmt.Errorf("hypo_threshold (%v) must be below hyper_threshold (%v)", c.HypoThreshold, c.HyperThreshold)
	}
	if c.AmplitudeCeiling <= 0 {
		return fmt.Errorf("amplitude_ceiling must be > 0, got %v", c.AmplitudeCeiling)
	}
	if c.WarmupFactor < 0 || math.IsNaN(c.WarmupFactor) {
		return fmt.Errorf("warmup_factor must be >= 0, got %v", c.WarmupFactor)
	}
	if c.Weights.Dose > 0 && c.MaxAmount <= 0 {
		return fmt.Errorf("dose weight needs a positive max amount, got %v", c.MaxAmount)
	}
	return nil
}

// Metrics is the breakdown of one evaluation.
type Metrics struct {
	HypoFraction        float64
	HyperFraction       float64
	Amplitude           float64 // raw max-min over the window, mmol/l
	AmplitudeNormalized float64
	DoseLoad            float64

	// Warm-up days, zero when the trace covers a single day.
	WarmupHypoFraction  float64
	WarmupHyperFraction float64

	TimeInRange float64 // fraction within [hypo, hyper)
	Mean        float64
	StdDev      float64

	Score float64
}

// Evaluate computes the metrics of a trace produced by schedule.
func Evaluate(trace sim.OutputTrace, schedule sim.DosingSchedule, cfg Config) (Metrics, error) {
	if len(trace) < sim.MinutesPerDay {
		return Metrics{}, fmt.Errorf("%w: %d samples", ErrShortTrace, len(trace))
	}
	split := len(trace) - sim.MinutesPerDay
	window := trace[split:].BloodGlucose()

	var m Metrics
	m.HypoFraction, m.HyperFraction, m.TimeInRange = bands(window, cfg)
	m.Amplitude = floats.Max(window) - floats.Min(window)
	m.AmplitudeNormalized = math.Min(math.Max(m.Amplitude, 0), cfg.AmplitudeCeiling) / cfg.AmplitudeCeiling
	m.Mean, m.StdDev = stat.MeanStdDev(window, nil)
	if cfg.MaxAmount > 0 {
		maxDose := cfg.MaxAmount * float64(1+len(schedule.Boluses()))
		m.DoseLoad = math.Min(schedule.TotalInsulin()/maxDose, 1)
	}

	w := cfg.Weights
	num := w.Hypo*m.HypoFraction + w.Hyper*m.HyperFraction + w.Amplitude*m.AmplitudeNormalized + w.Dose*m.DoseLoad
	den := w.Hypo + w.Hyper + w.Amplitude + w.Dose

	if split > 0 {
		m.WarmupHypoFraction, m.WarmupHyperFraction, _ = bands(trace[:split].BloodGlucose(), cfg)
		if cfg.WarmupFactor > 0 {
			num += cfg.WarmupFactor * (w.Hypo*m.WarmupHypoFraction + w.Hyper*m.WarmupHyperFraction)
			den += cfg.WarmupFactor * (w.Hypo + w.Hyper)
		}
	}
	m.Score = num / den
	return m, nil
}

// bands returns the hypo, hyper and in-range fractions of bg.
func bands(bg []float64, cfg Config) (hypo, hyper, inRange float64) {
	var nHypo, nHyper int
	for _, v := range bg {
		switch {
		case v < cfg.HypoThreshold:
			nHypo++
		case v >= cfg.HyperThreshold:
			nHyper++
		}
	}
	n := float64(len(bg))
	return float64(nHypo) / n, float64(nHyper) / n, float64(len(bg)-nHypo-nHyper) / n
}

// Simulator produces traces; *sim.Simulator satisfies it.
type Simulator interface {
	Simulate(schedule sim.DosingSchedule, days int) (sim.OutputTrace, error)
}

// Objective simulates a schedule for a fixed number of days and scores it.
// It holds no mutable state and is safe for concurrent use when the
// simulator is.
type Objective struct {
	simulator Simulator
	days      int
	cfg       Config
}

// New validates the configuration and builds an objective.
func New(simulator Simulator, days int, cfg Config) (*Objective, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w, got %d", sim.ErrInvalidDays, days)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("objective config: %w", err)
	}
	return &Objective{simulator: simulator, days: days, cfg: cfg}, nil
}

// Days is the number of simulated days per evaluation.
func (o *Objective) Days() int { return o.days }

// Config returns the objective's configuration.
func (o *Objective) Config() Config { return o.cfg }

// Evaluate simulates the schedule and returns its metrics together with the trace.
func (o *Objective) Evaluate(schedule sim.DosingSchedule) (Metrics, sim.OutputTrace, error) {
	trace, err := o.simulator.Simulate(schedule, o.days)
	if err != nil {
		return Metrics{}, nil, err
	}
	m, err := Evaluate(trace, schedule, o.cfg)
	if err != nil {
		return Metrics{}, nil, err
	}
	return m, trace, nil
}

// Score simulates the schedule and returns its scalar score.
func (o *Objective) Score(schedule sim.DosingSchedule) (float64, error) {
	m, _, err := o.Evaluate(schedule)
	if err != nil {
		return 0, err
	}
	return m.Score, nil
}
