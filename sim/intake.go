package sim

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of one simulated day.
const MinutesPerDay = 24 * 60

// IntakeKind classifies a scheduled intake.
type IntakeKind int

const (
	// BasalInsulin is the long-acting daily dose, delivered as a rate.
	BasalInsulin IntakeKind = iota
	// BolusInsulin is a fast-acting dose, usually around meals.
	BolusInsulin
	// Carbohydrate is a meal, amount in grams.
	Carbohydrate
)

// String returns the lower-case name used in configuration files and logs.
func (k IntakeKind) String() string {
	switch k {
	case BasalInsulin:
		return "basal"
	case BolusInsulin:
		return "bolus"
	case Carbohydrate:
		return "carbs"
	default:
		return fmt.Sprintf("IntakeKind(%d)", int(k))
	}
}

// IntakeEvent is one timed intake within a day.
type IntakeEvent struct {
	Kind   IntakeKind
	Minute int     // minute of day, [0, MinutesPerDay)
	Amount float64 // units of insulin or grams of carbohydrate, >= 0
}

// WithAmount returns a copy of the event with the amount replaced.
func (e IntakeEvent) WithAmount(amount float64) IntakeEvent {
	e.Amount = amount
	return e
}

// validate checks the event's minute and amount ranges against the expected kind.
func (e IntakeEvent) validate(field string, kind IntakeKind) error {
	if e.Kind != kind {
		return &InvalidScheduleError{Field: field, Reason: fmt.Sprintf("kind %s, want %s", e.Kind, kind)}
	}
	if e.Minute < 0 || e.Minute >= MinutesPerDay {
		return &InvalidScheduleError{Field: field, Reason: fmt.Sprintf("minute %d outside [0, %d)", e.Minute, MinutesPerDay)}
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount < 0 {
		return &InvalidScheduleError{Field: field, Reason: fmt.Sprintf("amount %v must be a finite value >= 0", e.Amount)}
	}
	return nil
}

// DosingSchedule is one day's plan: a single basal dose, the boluses and the meals.
// It is immutable; the With* methods return modified copies. Only the dosage
// amounts are tunable, timings and carbohydrate events are fixed inputs.
type DosingSchedule struct {
	basal   IntakeEvent
	boluses []IntakeEvent
	carbs   []IntakeEvent
}

// NewDosingSchedule validates the events and builds a schedule. The slices are copied.
func NewDosingSchedule(basal IntakeEvent, boluses, carbs []IntakeEvent) (DosingSchedule, error) {
	s := DosingSchedule{
		basal:   basal,
		boluses: append([]IntakeEvent(nil), boluses...),
		carbs:   append([]IntakeEvent(nil), carbs...),
	}
	if err := s.Validate(); err != nil {
		return DosingSchedule{}, err
	}
	return s, nil
}

// Validate checks every event's kind, minute and amount.
func (s DosingSchedule) Validate() error {
	if err := s.basal.validate("basal", BasalInsulin); err != nil {
		return err
	}
	for i, b := range s.boluses {
		if err := b.validate(fmt.Sprintf("boluses[%d]", i), BolusInsulin); err != nil {
			return err
		}
	}
	for i, c := range s.carbs {
		if err := c.validate(fmt.Sprintf("carbs[%d]", i), Carbohydrate); err != nil {
			return err
		}
	}
	return nil
}

// Basal returns the basal insulin event.
func (s DosingSchedule) Basal() IntakeEvent { return s.basal }

// Boluses returns a copy of the bolus events.
func (s DosingSchedule) Boluses() []IntakeEvent { return append([]IntakeEvent(nil), s.boluses...) }

// Carbs returns a copy of the carbohydrate events.
func (s DosingSchedule) Carbs() []IntakeEvent { return append([]IntakeEvent(nil), s.carbs...) }

// TotalInsulin is the basal amount plus all bolus amounts.
func (s DosingSchedule) TotalInsulin() float64 {
	total := s.basal.Amount
	for _, b := range s.boluses {
		total += b.Amount
	}
	return total
}

// Events returns all events of the day in chronological order.
// Ties on the same minute are ordered by kind (basal, bolus, carbs), then by
// position within their list, so the order is deterministic.
func (s DosingSchedule) Events() []IntakeEvent {
	events := make([]IntakeEvent, 0, 1+len(s.boluses)+len(s.carbs))
	events = append(events, s.basal)
	events = append(events, s.boluses...)
	events = append(events, s.carbs...)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Minute != events[j].Minute {
			return events[i].Minute < events[j].Minute
		}
		return events[i].Kind < events[j].Kind
	})
	return events
}

// WithBasalAmount returns a copy of the schedule with the basal amount replaced.
func (s DosingSchedule) WithBasalAmount(amount float64) (DosingSchedule, error) {
	return NewDosingSchedule(s.basal.WithAmount(amount), s.boluses, s.carbs)
}

// WithBolusAmounts returns a copy of the schedule with every bolus amount replaced.
// The number of amounts must match the number of boluses.
func (s DosingSchedule) WithBolusAmounts(amounts []float64) (DosingSchedule, error) {
	if len(amounts) != len(s.boluses) {
		return DosingSchedule{}, &InvalidScheduleError{
			Field:  "boluses",
			Reason: fmt.Sprintf("got %d amounts for %d boluses", len(amounts), len(s.boluses)),
		}
	}
	boluses := make([]IntakeEvent, len(s.boluses))
	for i, b := range s.boluses {
		boluses[i] = b.WithAmount(amounts[i])
	}
	return NewDosingSchedule(s.basal, boluses, s.carbs)
}

// WithDosage returns a copy of the schedule carrying the amounts of v.
func (s DosingSchedule) WithDosage(v DosageVector) (DosingSchedule, error) {
	withBoluses, err := s.WithBolusAmounts(v.Boluses)
	if err != nil {
		return DosingSchedule{}, err
	}
	return withBoluses.WithBasalAmount(v.Basal)
}

// Dosage extracts the tunable amounts of the schedule.
func (s DosingSchedule) Dosage() DosageVector {
	boluses := make([]float64, len(s.boluses))
	for i, b := range s.boluses {
		boluses[i] = b.Amount
	}
	return DosageVector{Basal: s.basal.Amount, Boluses: boluses}
}

// DosageVector is the tunable part of a schedule: the basal amount followed by
// the bolus amounts. Equality is exact on the amounts.
type DosageVector struct {
	Basal   float64
	Boluses []float64
}

// DosageFromValues builds a vector from the flattened [basal, boluses...] form.
func DosageFromValues(values []float64) DosageVector {
	if len(values) == 0 {
		return DosageVector{}
	}
	return DosageVector{Basal: values[0], Boluses: append([]float64(nil), values[1:]...)}
}

// Len is the number of tunable dimensions.
func (v DosageVector) Len() int { return 1 + len(v.Boluses) }

// Values returns the flattened [basal, boluses...] form.
func (v DosageVector) Values() []float64 {
	values := make([]float64, 0, v.Len())
	values = append(values, v.Basal)
	return append(values, v.Boluses...)
}

// Equal reports whether both vectors carry exactly the same amounts.
func (v DosageVector) Equal(other DosageVector) bool {
	if len(v.Boluses) != len(other.Boluses) || v.Basal != other.Basal {
		return false
	}
	for i := range v.Boluses {
		if v.Boluses[i] != other.Boluses[i] {
			return false
		}
	}
	return true
}

// Key returns a string that is equal for two vectors iff Equal reports true.
// Floats are written in their shortest exact form; negative zero is folded
// into zero because the two compare equal.
func (v DosageVector) Key() string {
	var b strings.Builder
	for i, x := range v.Values() {
		if i > 0 {
			b.WriteByte(',')
		}
		if x == 0 {
			x = 0
		}
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	return b.String()
}

// String formats the vector for logs.
func (v DosageVector) String() string {
	return fmt.Sprintf("basal=%g boluses=%v", v.Basal, v.Boluses)
}
