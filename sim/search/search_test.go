package search_test

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/internal/testutil"
	"github.com/mdi-sim/mdi-sim/sim/objective"
	"github.com/mdi-sim/mdi-sim/sim/search"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// schedule builds a base schedule with the given amounts; boluses one hour apart from 08:00.
func schedule(t *testing.T, basal float64, boluses ...float64) sim.DosingSchedule {
	t.Helper()
	events := make([]sim.IntakeEvent, len(boluses))
	for i, b := range boluses {
		events[i] = sim.IntakeEvent{Kind: sim.BolusInsulin, Minute: 480 + 60*i, Amount: b}
	}
	s, err := sim.NewDosingSchedule(sim.IntakeEvent{Kind: sim.BasalInsulin, Minute: 1320, Amount: basal}, events, nil)
	require.NoError(t, err)
	return s
}

// distanceTo scores a schedule by its squared distance to target; the minimum is 0 at target.
func distanceTo(target ...float64) search.ScoreFunc {
	return func(s sim.DosingSchedule) (float64, error) {
		total := 0.0
		for i, v := range s.Dosage().Values() {
			d := v - target[i]
			total += d * d
		}
		return total, nil
	}
}

func TestGrid_SingleDimensionFindsMinimum(t *testing.T) {
	// GIVEN one tunable amount in [0, 2] with its minimum at 1
	e := search.NewEvaluator(schedule(t, 0), distanceTo(1), nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 2}, Workers: 2}

	// WHEN the grid is searched
	res, err := g.Search(e, nil)
	require.NoError(t, err)

	// THEN the provably-minimal vector is returned after evaluating all three candidates
	assert.Equal(t, 1.0, res.Best.Basal().Amount)
	assert.Equal(t, 0.0, res.BestScore)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, res.Evaluations)
	assert.Equal(t, search.StopExhausted, res.Reason)
}

func TestGrid_ConcurrentWorkersFindGlobalMinimum(t *testing.T) {
	// GIVEN three dimensions and many workers
	e := search.NewEvaluator(schedule(t, 0, 0, 0), distanceTo(2, 4, 1), nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 4}, Workers: 16}

	// WHEN searched
	res, err := g.Search(e, nil)
	require.NoError(t, err)

	// THEN the winner is the global minimum, not a clobbered update
	assert.Equal(t, []float64{2, 4, 1}, res.Best.Dosage().Values())
	assert.Equal(t, 125, res.Iterations)
}

func TestGrid_TiesResolveToFirstCandidate(t *testing.T) {
	flat := func(sim.DosingSchedule) (float64, error) { return 0.5, nil }
	for run := 0; run < 5; run++ {
		e := search.NewEvaluator(schedule(t, 3, 3), flat, nil)
		g := &search.Grid{Bounds: search.Bounds{Min: 1, Max: 3}, Workers: 8}

		res, err := g.Search(e, nil)
		require.NoError(t, err)

		assert.Equal(t, []float64{1, 1}, res.Best.Dosage().Values())
	}
}

func TestGrid_TieSwapIsRecordedAndReported(t *testing.T) {
	// GIVEN a flat score where the first candidate finishes last
	flat := func(s sim.DosingSchedule) (float64, error) {
		if s.Basal().Amount == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		return 0.5, nil
	}
	e := search.NewEvaluator(schedule(t, 1), flat, nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 2}, Workers: 3, Trace: trace.TraceConfig{Level: trace.TraceLevelImprovements}}

	// WHEN the grid is searched with a progress callback
	var mu sync.Mutex
	var reported []sim.DosageVector
	res, err := g.Search(e, func(imp search.Improvement) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, imp.Dosage)
	})
	require.NoError(t, err)

	// THEN the result, the last trace record and the last report agree on the lowest index
	assert.Equal(t, []float64{0}, res.Best.Dosage().Values())
	require.NotEmpty(t, res.Trace.Improvements)
	last := res.Trace.Improvements[len(res.Trace.Improvements)-1]
	assert.Equal(t, []float64{0}, last.Dosage)
	assert.Equal(t, 0.0, last.Gain())
	require.NotEmpty(t, reported)
	assert.Equal(t, []float64{0}, reported[len(reported)-1].Values())
}

func TestGrid_ProgressIsMonotonic(t *testing.T) {
	e := search.NewEvaluator(schedule(t, 0, 0), distanceTo(3, 2), nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 5}, Workers: 4, Trace: trace.TraceConfig{Level: trace.TraceLevelImprovements}}

	var mu sync.Mutex
	var scores []float64
	res, err := g.Search(e, func(imp search.Improvement) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, search.StrategyGrid, imp.Strategy)
		scores = append(scores, imp.Score)
	})
	require.NoError(t, err)

	require.NotEmpty(t, scores)
	// equal scores only appear when a lower-index tie replaces the best
	for i := 1; i < len(scores); i++ {
		assert.LessOrEqual(t, scores[i], scores[i-1])
	}
	assert.Equal(t, res.BestScore, scores[len(scores)-1])
	assert.Len(t, res.Trace.Improvements, len(scores))
}

func TestGrid_FailedEvaluationAbortsSearch(t *testing.T) {
	// GIVEN a score function that fails for one candidate
	boom := errors.New("model crashed")
	score := func(s sim.DosingSchedule) (float64, error) {
		if s.Basal().Amount == 2 {
			return 0, boom
		}
		return s.Basal().Amount, nil
	}
	e := search.NewEvaluator(schedule(t, 0), score, nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 4}, Workers: 1}

	// WHEN searched
	res, err := g.Search(e, nil)

	// THEN the error surfaces and no result is returned
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestGrid_Candidates(t *testing.T) {
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 40}}
	n, err := g.Candidates(4)
	require.NoError(t, err)
	assert.Equal(t, 41*41*41*41, n)

	_, err = g.Candidates(64)
	assert.Error(t, err, "overflow")

	g.MaxCandidates = 1000
	_, err = g.Candidates(4)
	assert.Error(t, err)
}

func TestGrid_EndToEndWithObjective(t *testing.T) {
	// GIVEN the example schedule on a model whose glucose ignores insulin
	simulator := sim.NewSimulator(testutil.NewLinearModel(), sim.SubjectConfig{}, "")
	obj, err := objective.New(simulator, 1, objective.DefaultConfig(1))
	require.NoError(t, err)
	e := search.NewEvaluator(sim.ExampleSchedule(), obj.Score, nil)
	g := &search.Grid{Bounds: search.Bounds{Min: 0, Max: 1}, Workers: 4}

	// WHEN the 2^4 grid is searched
	res, err := g.Search(e, nil)
	require.NoError(t, err)

	// THEN only the dose term differs, so the smallest dose wins
	assert.Equal(t, []float64{0, 0, 0, 0}, res.Best.Dosage().Values())
	assert.Equal(t, 16, res.Evaluations)
	// AND the winning schedule keeps the original timings and meals
	assert.Equal(t, sim.ExampleSchedule().Carbs(), res.Best.Carbs())
	assert.Equal(t, 1320, res.Best.Basal().Minute)
}

func newLocal(seed int64, steps int) *search.LocalSearch {
	return &search.LocalSearch{
		Bounds: search.Bounds{Min: 0, Max: 20},
		Config: search.LocalConfig{Steps: steps, MaxDelta: 2},
		RNG:    rand.New(rand.NewSource(seed)),
		Trace:  trace.TraceConfig{Level: trace.TraceLevelImprovements},
	}
}

func TestLocalSearch_CurrentScoreNeverWorsens(t *testing.T) {
	// GIVEN a start far from the target
	e := search.NewEvaluator(schedule(t, 20, 0, 20), distanceTo(7, 12, 3), nil)

	// WHEN walking 300 steps
	res, err := newLocal(1, 300).Search(e, nil)
	require.NoError(t, err)

	// THEN the tracked current score is monotonically non-increasing
	require.Len(t, res.History, 301)
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i], res.History[i-1], "step %d", i)
	}
	assert.Equal(t, res.BestScore, res.History[len(res.History)-1])
	assert.Less(t, res.BestScore, res.History[0])
	assert.Equal(t, 300, res.Iterations)
	assert.Equal(t, 301, res.Evaluations)
	assert.Equal(t, search.StopBudget, res.Reason)
}

func TestLocalSearch_StaysWithinBounds(t *testing.T) {
	e := search.NewEvaluator(schedule(t, 30, -0), distanceTo(100, -100), nil)
	res, err := newLocal(3, 100).Search(e, nil)
	require.NoError(t, err)

	// the start is clamped and the walk presses against the bounds
	assert.Equal(t, []float64{20, 0}, res.Best.Dosage().Values())
}

func TestLocalSearch_ReproducibleWithSameSeed(t *testing.T) {
	run := func() *search.Result {
		e := search.NewEvaluator(schedule(t, 10, 10, 10), distanceTo(4, 15, 8), nil)
		res, err := newLocal(99, 200).Search(e, nil)
		require.NoError(t, err)
		return res
	}
	first, second := run(), run()
	assert.Equal(t, first.History, second.History)
	assert.Equal(t, first.Best.Dosage(), second.Best.Dosage())
}

func TestLocalSearch_ReportsEveryAcceptedMove(t *testing.T) {
	e := search.NewEvaluator(schedule(t, 0, 0), distanceTo(9, 9), nil)
	var improvements []search.Improvement
	res, err := newLocal(5, 150).Search(e, func(imp search.Improvement) {
		improvements = append(improvements, imp)
	})
	require.NoError(t, err)

	// the starting point counts as the first improvement
	require.NotEmpty(t, improvements)
	assert.Equal(t, 0, improvements[0].Iteration)
	assert.True(t, math.IsInf(improvements[0].Previous, 1))
	assert.Len(t, res.Trace.Improvements, len(improvements))
	assert.Equal(t, res.BestScore, improvements[len(improvements)-1].Score)
}

func TestLocalSearch_RevisitsHitTheCache(t *testing.T) {
	// GIVEN a flat objective so no move is ever accepted
	calls := 0
	flat := func(sim.DosingSchedule) (float64, error) { calls++; return 1, nil }
	e := search.NewEvaluator(schedule(t, 5), flat, nil)

	// WHEN walking many steps in one dimension
	res, err := newLocal(8, 200).Search(e, nil)
	require.NoError(t, err)

	// THEN at most the five reachable amounts are simulated
	assert.LessOrEqual(t, calls, 5)
	assert.Equal(t, res.Evaluations-calls, res.CacheHits)
}

func newEvolution(seed int64, cfg search.EvolutionConfig) *search.Evolution {
	return &search.Evolution{
		Bounds:  search.Bounds{Min: 0, Max: 20},
		Config:  cfg,
		Workers: 4,
		RNG:     sim.NewPartitionedRNG(sim.NewRunKey(seed)),
		Trace:   trace.TraceConfig{Level: trace.TraceLevelGenerations},
	}
}

func evolutionConfig() search.EvolutionConfig {
	cfg := search.DefaultConfig().Evolution
	cfg.PopulationSize = 20
	cfg.Stagnation = 10
	cfg.EliteCount = 3
	return cfg
}

func TestEvolution_NeverWorseThanInitialPopulation(t *testing.T) {
	// GIVEN a four-dimensional problem
	e := search.NewEvaluator(schedule(t, 20, 20, 20, 20), distanceTo(6, 11, 2, 17), nil)

	// WHEN evolved
	res, err := newEvolution(7, evolutionConfig()).Search(e, nil)
	require.NoError(t, err)

	// THEN the result is at least as good as generation 0's best
	require.NotEmpty(t, res.Trace.Generations)
	assert.LessOrEqual(t, res.BestScore, res.Trace.Generations[0].BestScore)
	// AND the best-ever history never worsens
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i], res.History[i-1])
	}
	assert.Equal(t, len(res.History), res.Iterations)
	assert.Len(t, res.Trace.Generations, res.Iterations)
}

func TestEvolution_ReproducibleWithSameSeed(t *testing.T) {
	run := func() *search.Result {
		e := search.NewEvaluator(schedule(t, 10, 10, 10), distanceTo(3, 14, 9), nil)
		res, err := newEvolution(21, evolutionConfig()).Search(e, nil)
		require.NoError(t, err)
		return res
	}
	first, second := run(), run()
	assert.Equal(t, first.Best.Dosage(), second.Best.Dosage())
	assert.Equal(t, first.History, second.History)
	assert.Equal(t, first.Iterations, second.Iterations)
}

func TestEvolution_StopsOnStagnation(t *testing.T) {
	// GIVEN a flat objective, so only generation 0 improves
	flat := func(sim.DosingSchedule) (float64, error) { return 0.5, nil }
	e := search.NewEvaluator(schedule(t, 5, 5), flat, nil)
	cfg := evolutionConfig()
	cfg.Stagnation = 4

	// WHEN evolved
	res, err := newEvolution(1, cfg).Search(e, nil)
	require.NoError(t, err)

	// THEN it stops after generation 0 plus four stagnant generations
	assert.Equal(t, search.StopStagnation, res.Reason)
	assert.Equal(t, 5, res.Iterations)
	// AND elites re-entering the population are answered by the cache
	assert.Greater(t, res.CacheHits, 0)
}

func TestEvolution_MaxGenerationsCap(t *testing.T) {
	e := search.NewEvaluator(schedule(t, 0, 0), distanceTo(13, 4), nil)
	cfg := evolutionConfig()
	cfg.Stagnation = 1000
	cfg.MaxGenerations = 3

	res, err := newEvolution(2, cfg).Search(e, nil)
	require.NoError(t, err)

	assert.Equal(t, search.StopMaxGenerations, res.Reason)
	assert.Equal(t, 3, res.Iterations)
}

func TestEvolution_EliteSelectionAndDecimals(t *testing.T) {
	e := search.NewEvaluator(schedule(t, 0, 0), distanceTo(4.25, 8.5), nil)
	cfg := evolutionConfig()
	cfg.Selection = "elite"
	cfg.Decimals = 1

	res, err := newEvolution(3, cfg).Search(e, nil)
	require.NoError(t, err)

	for _, v := range res.Best.Dosage().Values() {
		assert.InDelta(t, math.Round(v*10)/10, v, 1e-9, "genes are rounded to one decimal")
	}
}

func TestEvolution_FailedEvaluationAborts(t *testing.T) {
	boom := errors.New("step failed")
	e := search.NewEvaluator(schedule(t, 1), func(sim.DosingSchedule) (float64, error) { return 0, boom }, nil)

	_, err := newEvolution(1, evolutionConfig()).Search(e, nil)

	assert.ErrorIs(t, err, boom)
}

func TestEvolution_FailedEvaluationStopsQueuedWork(t *testing.T) {
	// GIVEN a single worker and a score function that always fails
	boom := errors.New("step failed")
	var calls atomic.Int64
	e := search.NewEvaluator(schedule(t, 1), func(sim.DosingSchedule) (float64, error) {
		calls.Add(1)
		return 0, boom
	}, nil)
	ev := newEvolution(1, evolutionConfig())
	ev.Workers = 1

	// WHEN the first generation is scored
	_, err := ev.Search(e, nil)

	// THEN the first failure cancels the rest of the population
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), calls.Load())
}

func TestNewStrategy(t *testing.T) {
	cfg := search.DefaultConfig()
	for _, name := range search.ValidStrategyNames() {
		s, err := search.NewStrategy(name, cfg)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := search.NewStrategy("annealing", cfg)
	assert.Error(t, err)

	cfg.Evolution.Selection = "roulette"
	_, err = search.NewStrategy(search.StrategyEvolution, cfg)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*search.Config)
	}{
		{"inverted bounds", func(c *search.Config) { c.Bounds = search.Bounds{Min: 5, Max: 1} }},
		{"negative min", func(c *search.Config) { c.Bounds.Min = -1 }},
		{"zero max delta", func(c *search.Config) { c.Local.MaxDelta = 0 }},
		{"tiny population", func(c *search.Config) { c.Evolution.PopulationSize = 1 }},
		{"elite fills population", func(c *search.Config) { c.Evolution.EliteCount = c.Evolution.PopulationSize }},
		{"mutation rate above one", func(c *search.Config) { c.Evolution.MutationRate = 1.5 }},
		{"min workers above max", func(c *search.Config) { c.Parallelism = search.ParallelismConfig{MinWorkers: 8, MaxWorkers: 2} }},
		{"unknown trace level", func(c *search.Config) { c.TraceLevel = "verbose" }},
	}
	require.NoError(t, search.DefaultConfig().Validate())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := search.DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParallelism_Workers(t *testing.T) {
	assert.Equal(t, 1, search.ParallelismConfig{MaxWorkers: 1}.Workers())
	assert.Equal(t, 64, search.ParallelismConfig{MinWorkers: 64, MaxWorkers: 64}.Workers())
	assert.GreaterOrEqual(t, search.ParallelismConfig{}.Workers(), 1)
}

func TestBounds_ClampVector(t *testing.T) {
	b := search.Bounds{Min: 2, Max: 10}
	got := b.ClampVector(sim.DosageVector{Basal: 12, Boluses: []float64{1, 5}})
	assert.Equal(t, []float64{10, 2, 5}, got.Values())
}
