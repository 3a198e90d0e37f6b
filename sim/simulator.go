// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StepMs is the model step length: one simulated minute.
const StepMs = 60 * 1000

// Simulator drives a GlucoseModel through a dosing schedule one minute at a time.
// It holds no per-run state, so one Simulator may serve concurrent Simulate calls;
// every call owns its own model session.
type Simulator struct {
	model   GlucoseModel
	subject SubjectConfig
	// logDir receives one log file per session; empty disables session logs.
	logDir string
}

// NewSimulator creates a simulator for the given model and subject.
func NewSimulator(model GlucoseModel, subject SubjectConfig, logDir string) *Simulator {
	return &Simulator{
		model:   model,
		subject: subject,
		logDir:  logDir,
	}
}

// sessionLogTarget gives every session a distinct log file so concurrent runs
// never write to the same target.
func (s *Simulator) sessionLogTarget() string {
	if s.logDir == "" {
		return ""
	}
	return filepath.Join(s.logDir, "session-"+uuid.NewString()+".log")
}

// run is the state of one Simulate call.
type run struct {
	session Session
	pending []Signal
	trace   OutputTrace
}

// advance steps the session until the minute of day reaches target, recording one
// sample per step. Pending signals are delivered with the first step.
func (r *run) advance(day int, minute *int, target int) error {
	for ; *minute < target; *minute++ {
		absolute := day*MinutesPerDay + *minute
		reading, err := r.session.Step(r.pending)
		r.pending = nil
		if err != nil {
			return &StepError{Minute: absolute, Err: err}
		}
		r.trace = append(r.trace, OutputSample{
			Minute:              absolute,
			BloodGlucose:        reading.BloodGlucose,
			CarbsOnBoard:        reading.CarbsOnBoard,
			InsulinOnBoard:      reading.InsulinOnBoard,
			InterstitialGlucose: reading.InterstitialGlucose,
		})
	}
	return nil
}

// Simulate repeats the schedule for the given number of days and returns the
// per-minute trace, exactly days*MinutesPerDay samples long. The model session is
// terminated before returning, also on failure.
func (s *Simulator) Simulate(schedule DosingSchedule, days int) (trace OutputTrace, err error) {
	if days < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidDays, days)
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	cfg := SessionConfig{Subject: s.subject, StepMs: StepMs, LogTarget: s.sessionLogTarget()}
	session, err := s.model.Create(cfg)
	if err != nil {
		return nil, &ModelInitError{Model: s.model.Name(), Err: err}
	}
	logrus.Debugf("created %s session (log target %q)", s.model.Name(), cfg.LogTarget)
	defer func() {
		if termErr := session.Terminate(); termErr != nil && err == nil {
			trace = nil
			err = fmt.Errorf("terminate %s session: %w", s.model.Name(), termErr)
		}
	}()

	r := &run{session: session, trace: make(OutputTrace, 0, days*MinutesPerDay)}
	for day := 0; day < days; day++ {
		logrus.Debugf("[day %d/%d] simulating %s", day+1, days, schedule.Dosage())

		queue := newIntakeQueue(schedule)
		minute := 0
		for queue.Len() > 0 {
			next := heap.Pop(queue).(intakeItem)
			if err := r.advance(day, &minute, next.event.Minute); err != nil {
				return nil, err
			}
			// delivered with the step that starts at the event's minute
			r.pending = append(r.pending, intakeSignal(next.event))
		}

		// finish the rest of the day
		if err := r.advance(day, &minute, MinutesPerDay); err != nil {
			return nil, err
		}
	}
	return r.trace, nil
}
