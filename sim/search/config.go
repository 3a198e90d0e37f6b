package search

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

var inf = math.Inf(1)

// Strategy names.
const (
	StrategyGrid      = "grid"
	StrategyLocal     = "local"
	StrategyEvolution = "evolution"
)

// ValidStrategies is the set of recognized strategy names.
var ValidStrategies = map[string]bool{StrategyGrid: true, StrategyLocal: true, StrategyEvolution: true}

// ValidSelections is the set of recognized parent selection schemes.
var ValidSelections = map[string]bool{"": true, "tournament": true, "elite": true}

// ValidStrategyNames returns the strategy names, sorted.
func ValidStrategyNames() []string {
	names := make([]string, 0, len(ValidStrategies))
	for name := range ValidStrategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GridConfig configures exhaustive search.
type GridConfig struct {
	// MaxCandidates refuses grids larger than this; 0 means no limit.
	MaxCandidates int `yaml:"max_candidates"`
}

// LocalConfig configures stochastic local search.
type LocalConfig struct {
	Steps    int `yaml:"steps"`
	MaxDelta int `yaml:"max_delta"` // proposals move every amount by an integer in [-MaxDelta, MaxDelta]
}

// EvolutionConfig configures evolutionary search.
type EvolutionConfig struct {
	PopulationSize int     `yaml:"population_size"`
	Stagnation     int     `yaml:"stagnation"`      // generations without improvement before stopping
	MaxGenerations int     `yaml:"max_generations"` // 0 means no cap
	EliteCount     int     `yaml:"elite_count"`     // carried over unchanged and used as the selection pool
	Selection      string  `yaml:"selection"`       // "tournament" (default) or "elite"
	TournamentSize int     `yaml:"tournament_size"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`  // per gene
	MutationSigma  float64 `yaml:"mutation_sigma"` // as a fraction of the bounds width
	Decimals       int     `yaml:"decimals"`       // genes are rounded to this many decimal places
}

// ParallelismConfig bounds the worker count of the parallel strategies.
type ParallelismConfig struct {
	MinWorkers int `yaml:"min_workers"`
	MaxWorkers int `yaml:"max_workers"` // 0 means no upper limit
}

// Workers clamps runtime.NumCPU() into [MinWorkers, MaxWorkers].
func (p ParallelismConfig) Workers() int {
	return p.clamp(runtime.NumCPU())
}

func (p ParallelismConfig) clamp(n int) int {
	if p.MaxWorkers > 0 && n > p.MaxWorkers {
		n = p.MaxWorkers
	}
	if n < p.MinWorkers {
		n = p.MinWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Config gathers everything the strategies need.
type Config struct {
	Bounds      Bounds            `yaml:"bounds"`
	Grid        GridConfig        `yaml:"grid"`
	Local       LocalConfig       `yaml:"local"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
	Seed        int64             `yaml:"seed"`
	TraceLevel  string            `yaml:"trace_level"`
}

// DefaultConfig returns the reference search configuration.
func DefaultConfig() Config {
	return Config{
		Bounds: Bounds{Min: 0, Max: 40},
		Local:  LocalConfig{Steps: 1000, MaxDelta: 2},
		Evolution: EvolutionConfig{
			PopulationSize: 50,
			Stagnation:     100,
			EliteCount:     5,
			Selection:      "tournament",
			TournamentSize: 3,
			CrossoverRate:  0.7,
			MutationRate:   0.2,
			MutationSigma:  0.1,
		},
		Parallelism: ParallelismConfig{MinWorkers: 1},
		Seed:        42,
		TraceLevel:  string(trace.TraceLevelImprovements),
	}
}

// Validate checks ranges and named options.
func (c Config) Validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if c.Grid.MaxCandidates < 0 {
		return fmt.Errorf("grid.max_candidates must be >= 0, got %d", c.Grid.MaxCandidates)
	}
	if c.Local.Steps < 0 {
		return fmt.Errorf("local.steps must be >= 0, got %d", c.Local.Steps)
	}
	if c.Local.MaxDelta < 1 {
		return fmt.Errorf("local.max_delta must be >= 1, got %d", c.Local.MaxDelta)
	}
	if err := c.Evolution.validate(); err != nil {
		return err
	}
	if c.Parallelism.MinWorkers < 0 || c.Parallelism.MaxWorkers < 0 {
		return fmt.Errorf("parallelism limits must be >= 0")
	}
	if c.Parallelism.MaxWorkers > 0 && c.Parallelism.MinWorkers > c.Parallelism.MaxWorkers {
		return fmt.Errorf("parallelism.min_workers (%d) exceeds max_workers (%d)", c.Parallelism.MinWorkers, c.Parallelism.MaxWorkers)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace level %q", c.TraceLevel)
	}
	return nil
}

func (c EvolutionConfig) validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("evolution.population_size must be >= 2, got %d", c.PopulationSize)
	}
	if c.Stagnation < 1 {
		return fmt.Errorf("evolution.stagnation must be >= 1, got %d", c.Stagnation)
	}
	if c.MaxGenerations < 0 {
		return fmt.Errorf("evolution.max_generations must be >= 0, got %d", c.MaxGenerations)
	}
	if c.EliteCount < 1 || c.EliteCount >= c.PopulationSize {
		return fmt.Errorf("evolution.elite_count must be in [1, population_size), got %d", c.EliteCount)
	}
	if !ValidSelections[c.Selection] {
		return fmt.Errorf("unknown selection %q", c.Selection)
	}
	if c.TournamentSize < 0 {
		return fmt.Errorf("evolution.tournament_size must be >= 0, got %d", c.TournamentSize)
	}
	for name, rate := range map[string]float64{"crossover_rate": c.CrossoverRate, "mutation_rate": c.MutationRate} {
		if rate < 0 || rate > 1 || math.IsNaN(rate) {
			return fmt.Errorf("evolution.%s must be in [0, 1], got %v", name, rate)
		}
	}
	if c.MutationSigma < 0 || math.IsNaN(c.MutationSigma) {
		return fmt.Errorf("evolution.mutation_sigma must be >= 0, got %v", c.MutationSigma)
	}
	if c.Decimals < 0 || c.Decimals > 6 {
		return fmt.Errorf("evolution.decimals must be in [0, 6], got %d", c.Decimals)
	}
	return nil
}

// NewStrategy builds the named strategy from the configuration.
func NewStrategy(name string, cfg Config) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	traceCfg := trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)}
	rng := sim.NewPartitionedRNG(sim.NewRunKey(cfg.Seed))
	switch name {
	case StrategyGrid:
		return &Grid{Bounds: cfg.Bounds, Workers: cfg.Parallelism.Workers(), MaxCandidates: cfg.Grid.MaxCandidates, Trace: traceCfg}, nil
	case StrategyLocal:
		return &LocalSearch{Bounds: cfg.Bounds, Config: cfg.Local, RNG: rng.ForSubsystem(sim.SubsystemLocalSearch), Trace: traceCfg}, nil
	case StrategyEvolution:
		return &Evolution{Bounds: cfg.Bounds, Config: cfg.Evolution, Workers: cfg.Parallelism.Workers(), RNG: rng, Trace: traceCfg}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q; valid: %v", name, ValidStrategyNames())
	}
}
