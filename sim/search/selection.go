package search

import (
	"fmt"
	"math/rand"
)

// scored is one evaluated individual. Fitness is the negated score, so higher
// is better inside the evolutionary search.
type scored struct {
	genes   []float64
	fitness float64
}

// Selector chooses parents from a population ranked by descending fitness.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []scored, eliteCount int) ([]float64, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string { return "elite" }

func (EliteSelector) PickParent(rng *rand.Rand, ranked []scored, eliteCount int) ([]float64, error) {
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].genes, nil
}

// TournamentSelector samples TournamentSize individuals from the top PoolSize
// and returns the fittest.
type TournamentSelector struct {
	PoolSize       int // 0 means twice the elite count
	TournamentSize int // 0 means 3
}

func (TournamentSelector) Name() string { return "tournament" }

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []scored, eliteCount int) ([]float64, error) {
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	poolSize = min(max(poolSize, eliteCount), len(ranked))

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	tournamentSize = min(tournamentSize, poolSize)

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return best.genes, nil
}

func newSelector(cfg EvolutionConfig) Selector {
	if cfg.Selection == "elite" {
		return EliteSelector{}
	}
	return TournamentSelector{TournamentSize: cfg.TournamentSize}
}
