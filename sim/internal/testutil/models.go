// Package testutil provides deterministic glucose model stubs and assertion
// helpers shared by the sim test packages.
package testutil

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mdi-sim/mdi-sim/sim"
)

// LinearModel returns blood glucose Base + step/StepsPerUnit, where step counts
// the session's steps from 0. Interstitial glucose mirrors blood glucose.
// Dividing instead of multiplying by a fractional slope keeps the threshold
// crossings exact.
type LinearModel struct {
	Base         float64
	StepsPerUnit float64

	created    atomic.Int64
	terminated atomic.Int64

	mu         sync.Mutex
	logTargets []string
}

// NewLinearModel returns the ramp 5 + 0.01*minute mmol/l.
func NewLinearModel() *LinearModel {
	return &LinearModel{Base: 5, StepsPerUnit: 100}
}

func (m *LinearModel) Name() string { return "linear" }

func (m *LinearModel) Create(cfg sim.SessionConfig) (sim.Session, error) {
	m.created.Add(1)
	m.mu.Lock()
	m.logTargets = append(m.logTargets, cfg.LogTarget)
	m.mu.Unlock()
	return &linearSession{model: m}, nil
}

// Created is the number of sessions created so far.
func (m *LinearModel) Created() int64 { return m.created.Load() }

// Terminated is the number of sessions terminated so far.
func (m *LinearModel) Terminated() int64 { return m.terminated.Load() }

// LogTargets returns the log targets of all created sessions.
func (m *LinearModel) LogTargets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.logTargets...)
}

type linearSession struct {
	model *LinearModel
	step  int
}

func (s *linearSession) Step([]sim.Signal) (sim.Reading, error) {
	bg := s.model.Base + float64(s.step)/s.model.StepsPerUnit
	s.step++
	return sim.Reading{BloodGlucose: bg, InterstitialGlucose: bg}, nil
}

func (s *linearSession) Terminate() error {
	s.model.terminated.Add(1)
	return nil
}

// RecordingModel returns a constant glucose and records, per step index, the
// signals delivered to its most recent session.
type RecordingModel struct {
	Glucose float64

	mu      sync.Mutex
	signals map[int][]sim.Signal
	steps   int
}

func (m *RecordingModel) Name() string { return "recording" }

func (m *RecordingModel) Create(sim.SessionConfig) (sim.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = make(map[int][]sim.Signal)
	m.steps = 0
	return &recordingSession{model: m}, nil
}

// Signals returns the signals delivered with each step, keyed by step index.
func (m *RecordingModel) Signals() map[int][]sim.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int][]sim.Signal, len(m.signals))
	for k, v := range m.signals {
		out[k] = append([]sim.Signal(nil), v...)
	}
	return out
}

// Steps is the number of steps taken by the most recent session.
func (m *RecordingModel) Steps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps
}

type recordingSession struct {
	model *RecordingModel
}

func (s *recordingSession) Step(signals []sim.Signal) (sim.Reading, error) {
	m := s.model
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(signals) > 0 {
		m.signals[m.steps] = append([]sim.Signal(nil), signals...)
	}
	m.steps++
	return sim.Reading{BloodGlucose: m.Glucose, InterstitialGlucose: m.Glucose}, nil
}

func (s *recordingSession) Terminate() error { return nil }

// ErrStub is the cause returned by FailingModel.
var ErrStub = errors.New("stub failure")

// FailingModel fails session creation, one step or termination.
type FailingModel struct {
	FailCreate    bool
	FailAtStep    int // 0-based step index; negative never fails
	FailTerminate bool

	terminated atomic.Int64
}

func (m *FailingModel) Name() string { return "failing" }

func (m *FailingModel) Create(sim.SessionConfig) (sim.Session, error) {
	if m.FailCreate {
		return nil, ErrStub
	}
	return &failingSession{model: m}, nil
}

// Terminated is the number of Terminate calls seen.
func (m *FailingModel) Terminated() int64 { return m.terminated.Load() }

type failingSession struct {
	model *FailingModel
	step  int
}

func (s *failingSession) Step([]sim.Signal) (sim.Reading, error) {
	defer func() { s.step++ }()
	if s.model.FailAtStep >= 0 && s.step == s.model.FailAtStep {
		return sim.Reading{}, ErrStub
	}
	return sim.Reading{BloodGlucose: 6, InterstitialGlucose: 6}, nil
}

func (s *failingSession) Terminate() error {
	s.model.terminated.Add(1)
	if s.model.FailTerminate {
		return ErrStub
	}
	return nil
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
