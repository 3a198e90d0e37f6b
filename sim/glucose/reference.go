// Package glucose provides the built-in reference glucose model.
//
// The model is a small deterministic compartment model: subcutaneous insulin
// and gut carbohydrate are each absorbed through two first-order compartments,
// absorbed insulin lowers blood glucose, absorbed carbohydrate raises it, and a
// first-order recovery term pulls glucose toward an insulin-free equilibrium.
// Interstitial glucose follows blood glucose with a first-order lag.
//
// It is good enough to exercise the simulator and the search strategies end to
// end; it is not a validated physiological simulator.
package glucose

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mdi-sim/mdi-sim/sim"
)

// ModelName is the registry name of the reference model.
const ModelName = "reference"

// Euler integration never takes steps longer than this many minutes.
const maxSubstepMinutes = 1.0

// rescueTmaxFraction shortens gut absorption for rescue carbohydrate.
const rescueTmaxFraction = 0.35

// Model is the reference GlucoseModel. It is stateless; every session owns its state.
type Model struct {
	params Params
}

// NewModel validates the parameters and builds a model.
func NewModel(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("reference model: %w", err)
	}
	return &Model{params: params}, nil
}

// Name implements sim.GlucoseModel.
func (m *Model) Name() string { return ModelName }

// Params returns the model's base parameters.
func (m *Model) Params() Params { return m.params }

// Create implements sim.GlucoseModel.
func (m *Model) Create(cfg sim.SessionConfig) (sim.Session, error) {
	if cfg.StepMs == 0 {
		return nil, fmt.Errorf("step length must be > 0")
	}
	p, err := m.params.forSubject(cfg.Subject.Class, cfg.Subject.ID)
	if err != nil {
		return nil, err
	}
	s := &session{
		params:  p,
		stepMin: float64(cfg.StepMs) / 60000,
		bg:      p.InitialGlucose,
		ig:      p.InitialGlucose,
	}
	if cfg.LogTarget != "" {
		if err := s.openLog(cfg.LogTarget); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{
			"subject_class": cohorts[cfg.Subject.Class].name,
			"subject_id":    cfg.Subject.ID,
			"step_ms":       cfg.StepMs,
		}).Info("session created")
	}
	return s, nil
}

// session holds the compartment state of one subject.
type session struct {
	params  Params
	stepMin float64

	insulin1, insulin2 float64 // subcutaneous depots, U
	gut1, gut2         float64 // gut compartments, g
	rescue             float64 // fast gut compartment, g
	basalRate          float64 // U/min, persists until replaced
	activity           float64 // persists until set to 0

	bg, ig float64
	minute int

	logFile *os.File
	log     *logrus.Logger
	closed  bool
}

func (s *session) openLog(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create session log dir: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create session log: %w", err)
	}
	s.logFile = f
	s.log = logrus.New()
	s.log.SetOutput(f)
	s.log.SetFormatter(&logrus.JSONFormatter{})
	return nil
}

// Step implements sim.Session.
func (s *session) Step(signals []sim.Signal) (sim.Reading, error) {
	if s.closed {
		return sim.Reading{}, fmt.Errorf("step on terminated session")
	}
	for _, sig := range signals {
		if err := s.apply(sig); err != nil {
			return sim.Reading{}, err
		}
	}

	substeps := int(math.Ceil(s.stepMin / maxSubstepMinutes))
	dt := s.stepMin / float64(substeps)
	for i := 0; i < substeps; i++ {
		s.integrate(dt)
	}
	s.minute++

	if math.IsNaN(s.bg) || math.IsInf(s.bg, 0) {
		return sim.Reading{}, fmt.Errorf("blood glucose diverged at step %d", s.minute)
	}
	return s.reading(), nil
}

func (s *session) apply(sig sim.Signal) error {
	if sig.Level < 0 || math.IsNaN(sig.Level) || math.IsInf(sig.Level, 0) {
		return fmt.Errorf("%s level %v must be finite and >= 0", sig.Kind, sig.Level)
	}
	if sig.RelativeTime < 0 || sig.RelativeTime >= 1 {
		return fmt.Errorf("%s relative time %v outside [0, 1)", sig.Kind, sig.RelativeTime)
	}
	switch sig.Kind {
	case sim.SignalBasalRate:
		s.basalRate = sig.Level / 60
	case sim.SignalBolus:
		s.insulin1 += sig.Level
	case sim.SignalCarbIntake:
		s.gut1 += sig.Level
	case sim.SignalRescueCarbs:
		s.rescue += sig.Level
	case sim.SignalPhysicalActivity:
		s.activity = sig.Level
	default:
		return fmt.Errorf("unsupported signal %s", sig.Kind)
	}
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"minute": s.minute, "signal": sig.Kind.String(), "level": sig.Level}).Info("signal")
	}
	return nil
}

// integrate advances the state by dt minutes with one explicit Euler step.
func (s *session) integrate(dt float64) {
	p := s.params
	insulinAppearance := s.insulin2 / p.InsulinTmax
	carbAppearance := s.gut2/p.CarbTmax + s.rescue/(p.CarbTmax*rescueTmaxFraction)

	dInsulin1 := s.basalRate - s.insulin1/p.InsulinTmax
	dInsulin2 := (s.insulin1 - s.insulin2) / p.InsulinTmax
	dGut1 := -s.gut1 / p.CarbTmax
	dGut2 := (s.gut1 - s.gut2) / p.CarbTmax
	dRescue := -s.rescue / (p.CarbTmax * rescueTmaxFraction)

	sensitivity := p.InsulinSensitivity * (1 + p.ActivityGain*s.activity)
	dBG := p.GlucoseRecovery*(p.EquilibriumGlucose-s.bg) -
		sensitivity*insulinAppearance +
		p.CarbFactor*carbAppearance
	dIG := (s.bg - s.ig) / p.InterstitialDelay

	s.insulin1 += dt * dInsulin1
	s.insulin2 += dt * dInsulin2
	s.gut1 += dt * dGut1
	s.gut2 += dt * dGut2
	s.rescue += dt * dRescue
	s.bg = math.Max(0, s.bg+dt*dBG)
	s.ig = math.Max(0, s.ig+dt*dIG)
}

func (s *session) reading() sim.Reading {
	return sim.Reading{
		BloodGlucose:        s.bg,
		InterstitialGlucose: s.ig,
		InsulinOnBoard:      s.insulin1 + s.insulin2,
		CarbsOnBoard:        s.gut1 + s.gut2 + s.rescue,
	}
}

// Terminate implements sim.Session.
func (s *session) Terminate() error {
	if s.closed {
		return fmt.Errorf("session terminated twice")
	}
	s.closed = true
	if s.logFile == nil {
		return nil
	}
	s.log.WithFields(logrus.Fields{"minutes": s.minute, "blood_glucose": s.bg}).Info("session terminated")
	return s.logFile.Close()
}
