package search

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// Evolution is a generational genetic algorithm over dosage vectors. Each
// generation is scored in parallel and fully collected before selection. The
// EliteCount fittest individuals survive unchanged; the rest of the next
// generation are children of selected parents via uniform crossover and
// bounded gaussian mutation. The search stops when the best score has not
// improved for Config.Stagnation generations, or at Config.MaxGenerations.
type Evolution struct {
	Bounds  Bounds
	Config  EvolutionConfig
	Workers int
	RNG     *sim.PartitionedRNG
	Trace   trace.TraceConfig
}

func (ev *Evolution) Name() string { return StrategyEvolution }

// round limits a gene to Config.Decimals places so re-created vectors hit the cache.
func (ev *Evolution) round(x float64) float64 {
	scale := math.Pow(10, float64(ev.Config.Decimals))
	return ev.Bounds.Clamp(math.Round(x*scale) / scale)
}

// initialPopulation seeds the base schedule's amounts plus uniform random vectors.
func (ev *Evolution) initialPopulation(base sim.DosageVector, rng *rand.Rand) [][]float64 {
	population := make([][]float64, 0, ev.Config.PopulationSize)
	seed := base.Values()
	for i := range seed {
		seed[i] = ev.round(seed[i])
	}
	population = append(population, seed)
	width := float64(ev.Bounds.Max - ev.Bounds.Min)
	for len(population) < ev.Config.PopulationSize {
		genes := make([]float64, len(seed))
		for i := range genes {
			genes[i] = ev.round(float64(ev.Bounds.Min) + rng.Float64()*width)
		}
		population = append(population, genes)
	}
	return population
}

// evaluate scores one generation with a bounded worker pool and waits for all
// of it. The returned slice is in population order. The first failed
// evaluation cancels the individuals not yet started.
func (ev *Evolution) evaluate(e *Evaluator, population [][]float64) ([]scored, error) {
	out := make([]scored, len(population))
	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(min(max(ev.Workers, 1), len(population)))
	for i, genes := range population {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			score, err := e.Evaluate(sim.DosageFromValues(genes))
			if err != nil {
				return err
			}
			out[i] = scored{genes: genes, fitness: -score}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// breed builds the next generation from a ranked population.
func (ev *Evolution) breed(ranked []scored, selector Selector, rng *rand.Rand) ([][]float64, error) {
	next := make([][]float64, 0, ev.Config.PopulationSize)
	for i := 0; i < ev.Config.EliteCount; i++ {
		next = append(next, append([]float64(nil), ranked[i].genes...))
	}
	sigma := ev.Config.MutationSigma * float64(ev.Bounds.Max-ev.Bounds.Min)
	for len(next) < ev.Config.PopulationSize {
		first, err := selector.PickParent(rng, ranked, ev.Config.EliteCount)
		if err != nil {
			return nil, err
		}
		child := append([]float64(nil), first...)
		if rng.Float64() < ev.Config.CrossoverRate {
			second, err := selector.PickParent(rng, ranked, ev.Config.EliteCount)
			if err != nil {
				return nil, err
			}
			for i := range child {
				if rng.Intn(2) == 1 {
					child[i] = second[i]
				}
			}
		}
		for i := range child {
			if rng.Float64() < ev.Config.MutationRate {
				child[i] = ev.round(child[i] + rng.NormFloat64()*sigma)
			}
		}
		next = append(next, child)
	}
	return next, nil
}

// Search runs generations until stagnation. Result.History holds the best-ever
// score after each generation.
func (ev *Evolution) Search(e *Evaluator, progress ProgressFunc) (*Result, error) {
	if err := ev.Bounds.Validate(); err != nil {
		return nil, err
	}
	if err := ev.Config.validate(); err != nil {
		return nil, err
	}
	if ev.RNG == nil {
		return nil, fmt.Errorf("evolution: random source is required")
	}

	selector := newSelector(ev.Config)
	rng := ev.RNG.ForSubsystem(sim.SubsystemEvolution)
	population := ev.initialPopulation(e.Base().Dosage(), ev.RNG.ForSubsystem(sim.SubsystemPopulation))
	t := &tracker{strategy: ev.Name(), progress: progress, trace: trace.NewSearchTrace(ev.Trace)}
	history := make([]float64, 0)
	logrus.Infof("[evolution] population %d, %s selection, stagnation %d", ev.Config.PopulationSize, selector.Name(), ev.Config.Stagnation)

	stagnation := 0
	reason := StopStagnation
	generation := 0
	for ; ; generation++ {
		ranked, err := ev.evaluate(e, population)
		if err != nil {
			return nil, fmt.Errorf("evolution generation %d: %w", generation, err)
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].fitness > ranked[j].fitness })

		if t.offer(sim.DosageFromValues(ranked[0].genes), -ranked[0].fitness, generation, e.Evaluations()) {
			stagnation = 0
			logrus.Debugf("[evolution] generation %d improved to %.6f", generation, t.score)
		} else {
			stagnation++
		}
		history = append(history, t.score)
		t.trace.RecordGeneration(summarizeGeneration(ranked, generation, stagnation))

		if stagnation >= ev.Config.Stagnation {
			break
		}
		if ev.Config.MaxGenerations > 0 && generation+1 >= ev.Config.MaxGenerations {
			reason = StopMaxGenerations
			break
		}
		population, err = ev.breed(ranked, selector, rng)
		if err != nil {
			return nil, fmt.Errorf("evolution generation %d: %w", generation, err)
		}
	}

	res, err := t.result(e)
	if err != nil {
		return nil, err
	}
	res.Iterations = generation + 1
	res.Reason = reason
	res.History = history
	logrus.Infof("[evolution] done after %d generations (%s): best %.6f at %s", res.Iterations, reason, res.BestScore, t.best)
	return res, nil
}

func summarizeGeneration(ranked []scored, generation, stagnation int) trace.GenerationRecord {
	total := 0.0
	distinct := make(map[string]struct{}, len(ranked))
	for _, s := range ranked {
		total += -s.fitness
		distinct[sim.DosageFromValues(s.genes).Key()] = struct{}{}
	}
	return trace.GenerationRecord{
		Generation: generation,
		BestScore:  -ranked[0].fitness,
		MeanScore:  total / float64(len(ranked)),
		WorstScore: -ranked[len(ranked)-1].fitness,
		Distinct:   len(distinct),
		Stagnation: stagnation,
	}
}
