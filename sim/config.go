package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelConfig selects the glucose model and the simulated subject.
type ModelConfig struct {
	Name         string             `yaml:"name"`          // registered model name, e.g. "reference"
	SubjectClass uint16             `yaml:"subject_class"` // model-specific subject class
	SubjectID    uint16             `yaml:"subject_id"`    // model-specific subject id
	LogDir       string             `yaml:"log_dir"`       // per-session log directory ("" = no session logs)
	Params       map[string]float64 `yaml:"params,omitempty"`
}

// Validate checks that the model name is registered.
func (c ModelConfig) Validate() error {
	for _, name := range RegisteredModels() {
		if name == c.Name {
			return nil
		}
	}
	return fmt.Errorf("unknown glucose model %q (registered: %v)", c.Name, RegisteredModels())
}

// NewSimulator builds the configured model and wraps it in a Simulator.
func (c ModelConfig) NewSimulator() (*Simulator, error) {
	model, err := NewModel(c.Name, c.Params)
	if err != nil {
		return nil, err
	}
	return NewSimulator(model, SubjectConfig{Class: c.SubjectClass, ID: c.SubjectID}, c.LogDir), nil
}

// IntakeSpec is the YAML form of one intake: a wall-clock time and an amount.
type IntakeSpec struct {
	At     string  `yaml:"at"` // "HH:MM"
	Amount float64 `yaml:"amount"`
}

// ScheduleSpec is the YAML form of a DosingSchedule.
type ScheduleSpec struct {
	Basal   IntakeSpec   `yaml:"basal"`
	Boluses []IntakeSpec `yaml:"boluses"`
	Carbs   []IntakeSpec `yaml:"carbs"`
}

// ToSchedule parses the times and validates the resulting schedule.
func (s ScheduleSpec) ToSchedule() (DosingSchedule, error) {
	basal, err := s.Basal.toEvent("basal", BasalInsulin)
	if err != nil {
		return DosingSchedule{}, err
	}
	boluses, err := toEvents("boluses", BolusInsulin, s.Boluses)
	if err != nil {
		return DosingSchedule{}, err
	}
	carbs, err := toEvents("carbs", Carbohydrate, s.Carbs)
	if err != nil {
		return DosingSchedule{}, err
	}
	return NewDosingSchedule(basal, boluses, carbs)
}

// ScheduleSpecFrom converts a schedule back into its YAML form.
func ScheduleSpecFrom(s DosingSchedule) ScheduleSpec {
	spec := ScheduleSpec{Basal: intakeSpecFrom(s.basal)}
	for _, b := range s.boluses {
		spec.Boluses = append(spec.Boluses, intakeSpecFrom(b))
	}
	for _, c := range s.carbs {
		spec.Carbs = append(spec.Carbs, intakeSpecFrom(c))
	}
	return spec
}

func intakeSpecFrom(e IntakeEvent) IntakeSpec {
	return IntakeSpec{At: FormatTimeOfDay(e.Minute), Amount: e.Amount}
}

func (s IntakeSpec) toEvent(field string, kind IntakeKind) (IntakeEvent, error) {
	minute, err := ParseTimeOfDay(s.At)
	if err != nil {
		return IntakeEvent{}, &InvalidScheduleError{Field: field, Reason: err.Error()}
	}
	return IntakeEvent{Kind: kind, Minute: minute, Amount: s.Amount}, nil
}

func toEvents(field string, kind IntakeKind, specs []IntakeSpec) ([]IntakeEvent, error) {
	events := make([]IntakeEvent, 0, len(specs))
	for i, spec := range specs {
		e, err := spec.toEvent(fmt.Sprintf("%s[%d]", field, i), kind)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// ParseTimeOfDay parses "HH:MM" into a minute of day.
func ParseTimeOfDay(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q: hour must be 0-23", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q: minute must be 0-59", s)
	}
	return h*60 + m, nil
}

// FormatTimeOfDay formats a minute of day as "HH:MM".
func FormatTimeOfDay(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

const hour = 60

// ExampleSchedule is the reference day: 32 U basal at 22:00, three meal boluses
// and three meals.
func ExampleSchedule() DosingSchedule {
	s, err := NewDosingSchedule(
		IntakeEvent{Kind: BasalInsulin, Minute: 22 * hour, Amount: 32},
		[]IntakeEvent{
			{Kind: BolusInsulin, Minute: 9 * hour, Amount: 18},
			{Kind: BolusInsulin, Minute: 13 * hour, Amount: 22},
			{Kind: BolusInsulin, Minute: 19 * hour, Amount: 21},
		},
		[]IntakeEvent{
			{Kind: Carbohydrate, Minute: 10 * hour, Amount: 24},
			{Kind: Carbohydrate, Minute: 13 * hour, Amount: 60},
			{Kind: Carbohydrate, Minute: 19 * hour, Amount: 60},
		},
	)
	if err != nil {
		panic(err)
	}
	return s
}
