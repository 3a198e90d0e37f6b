// Package experiment loads the YAML experiment file: which model and subject
// to simulate, the base schedule, the objective's parameters, the search
// configuration and where finished runs are archived.
//
// Fields missing from the file keep the values of DefaultExperiment, so a file
// only needs to list what it changes. Unknown keys are rejected.
package experiment

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mdi-sim/mdi-sim/sim"
	_ "github.com/mdi-sim/mdi-sim/sim/glucose" // registers the reference model
	"github.com/mdi-sim/mdi-sim/sim/objective"
	"github.com/mdi-sim/mdi-sim/sim/search"
	"github.com/mdi-sim/mdi-sim/sim/store"
)

// Experiment is the full experiment configuration.
// All top-level sections must be listed here to satisfy KnownFields(true).
type Experiment struct {
	Model     sim.ModelConfig   `yaml:"model"`
	Schedule  *sim.ScheduleSpec `yaml:"schedule"` // nil uses sim.ExampleSchedule
	Days      int               `yaml:"days"`
	Objective objective.Config  `yaml:"objective"`
	Search    search.Config     `yaml:"search"`
	Store     StoreConfig       `yaml:"store"`
}

// StoreConfig selects the run archive.
type StoreConfig struct {
	Kind string `yaml:"kind"` // "memory" (default) or "sqlite"
	Path string `yaml:"path"`
}

// DefaultExperiment is the reference configuration: the example schedule on
// the reference model for three days, amounts in [0, 40].
func DefaultExperiment() *Experiment {
	cfg := search.DefaultConfig()
	return &Experiment{
		Model:     sim.ModelConfig{Name: "reference"},
		Days:      3,
		Objective: objective.DefaultConfig(float64(cfg.Bounds.Max)),
		Search:    cfg,
		Store:     StoreConfig{Kind: store.KindMemory},
	}
}

// LoadExperiment reads a YAML experiment file over DefaultExperiment and validates it.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment: %w", err)
	}
	exp, err := ParseExperiment(data)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", path, err)
	}
	return exp, nil
}

// ParseExperiment decodes YAML over DefaultExperiment and validates the result.
func ParseExperiment(data []byte) (*Experiment, error) {
	exp := DefaultExperiment()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(exp); err != nil {
		return nil, fmt.Errorf("parsing experiment: %w", err)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Validate checks every section.
func (e *Experiment) Validate() error {
	if err := e.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if _, err := e.BaseSchedule(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if e.Days < 1 {
		return fmt.Errorf("%w, got %d", sim.ErrInvalidDays, e.Days)
	}
	if err := e.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := e.ObjectiveConfig().Validate(); err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	if !store.ValidStoreKinds[e.Store.Kind] {
		return fmt.Errorf("store: unknown kind %q", e.Store.Kind)
	}
	if e.Store.Kind == store.KindSQLite && e.Store.Path == "" {
		return fmt.Errorf("store: sqlite needs a path")
	}
	return nil
}

// BaseSchedule is the configured schedule, or the example schedule when none is given.
func (e *Experiment) BaseSchedule() (sim.DosingSchedule, error) {
	if e.Schedule == nil {
		return sim.ExampleSchedule(), nil
	}
	return e.Schedule.ToSchedule()
}

// ObjectiveConfig normalizes the dose load by the search's upper bound.
func (e *Experiment) ObjectiveConfig() objective.Config {
	cfg := e.Objective
	cfg.MaxAmount = float64(e.Search.Bounds.Max)
	return cfg
}

// NewObjective builds the configured model, simulator and objective.
func (e *Experiment) NewObjective() (*objective.Objective, error) {
	simulator, err := e.Model.NewSimulator()
	if err != nil {
		return nil, err
	}
	return objective.New(simulator, e.Days, e.ObjectiveConfig())
}

// OpenStore opens the configured run archive.
func (e *Experiment) OpenStore() (store.Store, error) {
	return store.NewStore(e.Store.Kind, e.Store.Path)
}
