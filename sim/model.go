package sim

import (
	"fmt"
	"sort"
	"sync"
)

// SignalKind identifies an input signal understood by the glucose model.
type SignalKind int

const (
	// SignalBasalRate requests a basal insulin rate in U/hr. It persists until replaced.
	SignalBasalRate SignalKind = iota
	// SignalBolus requests an insulin bolus in U.
	SignalBolus
	// SignalCarbIntake is a regular meal in g.
	SignalCarbIntake
	// SignalRescueCarbs is a fast-acting rescue intake in g.
	SignalRescueCarbs
	// SignalPhysicalActivity sets the activity intensity (0.1 light, 0.25 medium, 0.4 intensive).
	// It persists until set to 0.
	SignalPhysicalActivity
)

func (k SignalKind) String() string {
	switch k {
	case SignalBasalRate:
		return "basal_rate"
	case SignalBolus:
		return "bolus"
	case SignalCarbIntake:
		return "carb_intake"
	case SignalRescueCarbs:
		return "rescue_carbs"
	case SignalPhysicalActivity:
		return "physical_activity"
	default:
		return fmt.Sprintf("SignalKind(%d)", int(k))
	}
}

// Signal is one input delivered with the next step.
type Signal struct {
	Kind  SignalKind
	Level float64
	// RelativeTime is the delivery point inside the step as a fraction of the step length, [0, 1).
	RelativeTime float64
}

// Reading is the model state observed after a step.
type Reading struct {
	BloodGlucose        float64 // mmol/l
	InterstitialGlucose float64 // mmol/l
	InsulinOnBoard      float64 // U
	CarbsOnBoard        float64 // g
}

// SubjectConfig selects the simulated subject inside the model.
type SubjectConfig struct {
	Class uint16
	ID    uint16
}

// SessionConfig parameterizes one model session.
type SessionConfig struct {
	Subject SubjectConfig
	StepMs  uint32
	// LogTarget is the session's log file; empty disables logging. Concurrent
	// sessions must never share a target.
	LogTarget string
}

// GlucoseModel creates independent sessions. Implementations must be safe for
// concurrent Create calls; a single Session is used by one goroutine only.
type GlucoseModel interface {
	Name() string
	Create(cfg SessionConfig) (Session, error)
}

// Session is one simulated subject. Step advances simulated time by one step,
// consuming the given signals. Terminate must be called exactly once and may block.
type Session interface {
	Step(signals []Signal) (Reading, error)
	Terminate() error
}

// ModelFactory builds a model from free-form numeric parameters.
type ModelFactory func(params map[string]float64) (GlucoseModel, error)

var (
	modelRegistryMu sync.RWMutex
	modelRegistry   = map[string]ModelFactory{}
)

// RegisterModel makes a model available to NewModel. Model packages call it
// from init(); registering the same name twice panics.
func RegisterModel(name string, factory ModelFactory) {
	modelRegistryMu.Lock()
	defer modelRegistryMu.Unlock()
	if _, dup := modelRegistry[name]; dup {
		panic("sim: model registered twice: " + name)
	}
	modelRegistry[name] = factory
}

// NewModel builds the registered model with the given name.
func NewModel(name string, params map[string]float64) (GlucoseModel, error) {
	modelRegistryMu.RLock()
	factory, ok := modelRegistry[name]
	modelRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown glucose model %q (registered: %v)", name, RegisteredModels())
	}
	return factory(params)
}

// RegisteredModels lists the registered model names, sorted.
func RegisteredModels() []string {
	modelRegistryMu.RLock()
	defer modelRegistryMu.RUnlock()
	names := make([]string, 0, len(modelRegistry))
	for name := range modelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
