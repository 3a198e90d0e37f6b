package objective_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/internal/testutil"
	"github.com/mdi-sim/mdi-sim/sim/objective"
)

// flatTrace builds one sample per minute with the day's constant glucose.
func flatTrace(perDay ...float64) sim.OutputTrace {
	trace := make(sim.OutputTrace, 0, len(perDay)*sim.MinutesPerDay)
	for d, bg := range perDay {
		for m := 0; m < sim.MinutesPerDay; m++ {
			trace = append(trace, sim.OutputSample{Minute: d*sim.MinutesPerDay + m, BloodGlucose: bg})
		}
	}
	return trace
}

func TestScore_ExampleScheduleOnLinearRamp(t *testing.T) {
	// GIVEN the example schedule and a model returning 5 + 0.01*minute
	simulator := sim.NewSimulator(testutil.NewLinearModel(), sim.SubjectConfig{}, "")
	obj, err := objective.New(simulator, 1, objective.DefaultConfig(40))
	require.NoError(t, err)

	// WHEN the schedule is evaluated over one day
	m, trace, err := obj.Evaluate(sim.ExampleSchedule())
	require.NoError(t, err)

	// THEN the trace spans minutes 0..1439
	require.Len(t, trace, sim.MinutesPerDay)
	assert.Equal(t, 0, trace[0].Minute)
	assert.Equal(t, 1439, trace[len(trace)-1].Minute)

	// AND glucose never drops below 4, and reaches 10 at minute 500
	assert.Equal(t, 0.0, m.HypoFraction)
	assert.InDelta(t, 940.0/1440.0, m.HyperFraction, 1e-12)
	// amplitude 14.39 saturates
	assert.InDelta(t, 14.39, m.Amplitude, 1e-9)
	assert.Equal(t, 1.0, m.AmplitudeNormalized)
	// 32 + 18 + 22 + 21 = 93 U against 40 * (1 + 3)
	assert.InDelta(t, 93.0/160.0, m.DoseLoad, 1e-12)

	want := (0.8*940.0/1440.0 + 0.5*1 + 0.3*93.0/160.0) / 2.6
	assert.InDelta(t, want, m.Score, 1e-12)
}

func TestScore_Deterministic(t *testing.T) {
	simulator := sim.NewSimulator(testutil.NewLinearModel(), sim.SubjectConfig{}, "")
	obj, err := objective.New(simulator, 2, objective.DefaultConfig(40))
	require.NoError(t, err)

	first, err := obj.Score(sim.ExampleSchedule())
	require.NoError(t, err)
	second, err := obj.Score(sim.ExampleSchedule())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEvaluate_OnlyFinalDayCountsWithoutWarmup(t *testing.T) {
	// GIVEN a hypoglycemic first day and an in-range second day
	trace := flatTrace(3, 6)
	cfg := objective.DefaultConfig(40)
	cfg.Weights = objective.Weights{Hypo: 1}

	// WHEN warm-up is disabled
	m, err := objective.Evaluate(trace, sim.ExampleSchedule(), cfg)
	require.NoError(t, err)

	// THEN the first day is reported but not scored
	assert.Equal(t, 0.0, m.HypoFraction)
	assert.Equal(t, 1.0, m.WarmupHypoFraction)
	assert.Equal(t, 1.0, m.TimeInRange)
	assert.Equal(t, 0.0, m.Score)
}

func TestEvaluate_WarmupFactorAddsEarlierDays(t *testing.T) {
	trace := flatTrace(3, 6)
	cfg := objective.DefaultConfig(40)
	cfg.Weights = objective.Weights{Hypo: 1}
	cfg.WarmupFactor = 0.5

	m, err := objective.Evaluate(trace, sim.ExampleSchedule(), cfg)
	require.NoError(t, err)

	// (1*0 + 0.5*1*1) / (1 + 0.5)
	assert.InDelta(t, 1.0/3.0, m.Score, 1e-12)
}

func TestEvaluate_ScoreWithinUnitInterval(t *testing.T) {
	cfg := objective.DefaultConfig(40)
	tests := []struct {
		name  string
		trace sim.OutputTrace
	}{
		{"all hypo", flatTrace(2)},
		{"all hyper", flatTrace(15)},
		{"in range", flatTrace(6)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := objective.Evaluate(tc.trace, sim.ExampleSchedule(), cfg)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, m.Score, 0.0)
			assert.LessOrEqual(t, m.Score, 1.0)
			assert.Equal(t, 0.0, m.Amplitude)
			assert.InDelta(t, 1.0, m.HypoFraction+m.HyperFraction+m.TimeInRange, 1e-12)
		})
	}
}

func TestEvaluate_ThresholdBoundaries(t *testing.T) {
	cfg := objective.DefaultConfig(40)

	// exactly 4 is not hypo, exactly 10 is hyper
	atHypo, err := objective.Evaluate(flatTrace(4), sim.ExampleSchedule(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.0, atHypo.HypoFraction)

	atHyper, err := objective.Evaluate(flatTrace(10), sim.ExampleSchedule(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, atHyper.HyperFraction)
}

func TestEvaluate_ShortTrace(t *testing.T) {
	_, err := objective.Evaluate(flatTrace(6)[:100], sim.ExampleSchedule(), objective.DefaultConfig(40))
	assert.True(t, errors.Is(err, objective.ErrShortTrace))
}

func TestObjective_PropagatesSimulationErrors(t *testing.T) {
	// GIVEN a model that fails on its tenth step
	simulator := sim.NewSimulator(&testutil.FailingModel{FailAtStep: 9}, sim.SubjectConfig{}, "")
	obj, err := objective.New(simulator, 1, objective.DefaultConfig(40))
	require.NoError(t, err)

	// WHEN scoring
	_, err = obj.Score(sim.ExampleSchedule())

	// THEN the step error surfaces, no default score is substituted
	var stepErr *sim.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 9, stepErr.Minute)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	simulator := sim.NewSimulator(testutil.NewLinearModel(), sim.SubjectConfig{}, "")

	_, err := objective.New(simulator, 0, objective.DefaultConfig(40))
	assert.ErrorIs(t, err, sim.ErrInvalidDays)

	cfg := objective.DefaultConfig(0)
	_, err = objective.New(simulator, 1, cfg)
	assert.Error(t, err, "dose weight without max amount")

	cfg = objective.DefaultConfig(40)
	cfg.HypoThreshold = 12
	_, err = objective.New(simulator, 1, cfg)
	assert.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	tests := []struct {
		in      string
		want    objective.Weights
		wantErr bool
	}{
		{in: "hypo:1,hyper:0.8", want: objective.Weights{Hypo: 1, Hyper: 0.8}},
		{in: " dose : 2 ", want: objective.Weights{Dose: 2}},
		{in: "hypo:1,hyper:0.8,amplitude:0.5,dose:0.3", want: objective.DefaultWeights()},
		{in: "", wantErr: true},
		{in: "hypo", wantErr: true},
		{in: "glucose:1", wantErr: true},
		{in: "hypo:1,hypo:2", wantErr: true},
		{in: "hypo:-1", wantErr: true},
		{in: "hypo:0", wantErr: true},
		{in: "hypo:abc", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := objective.ParseWeights(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWeights_StringRoundTrips(t *testing.T) {
	w := objective.DefaultWeights()
	parsed, err := objective.ParseWeights(w.String())
	require.NoError(t, err)
	assert.Equal(t, w, parsed)
}
