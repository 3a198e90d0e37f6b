package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidDays is returned when a simulation is asked to run for fewer than one day.
var ErrInvalidDays = errors.New("days must be >= 1")

// InvalidScheduleError rejects a malformed schedule before simulation begins.
type InvalidScheduleError struct {
	Field  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Field + ": " + e.Reason
}

// ModelInitError reports that a model session could not be created.
// It is fatal for the run and never retried.
type ModelInitError struct {
	Model string
	Err   error
}

func (e *ModelInitError) Error() string {
	return fmt.Sprintf("glucose model %q: create session: %v", e.Model, e.Err)
}

func (e *ModelInitError) Unwrap() error { return e.Err }

// StepError reports that the model failed to advance one minute. The trace
// would have a gap, so the enclosing simulation run is aborted.
type StepError struct {
	Minute int // absolute minute that failed
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("simulation step at minute %d: %v", e.Minute, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
