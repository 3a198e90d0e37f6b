package sim

import "fmt"

// OutputSample is the model state recorded after one simulated minute.
type OutputSample struct {
	Minute              int // absolute minute, day*MinutesPerDay + minute of day
	BloodGlucose        float64
	CarbsOnBoard        float64
	InsulinOnBoard      float64
	InterstitialGlucose float64
}

// TimeOfDay formats the sample's minute of day as HH:MM.
func (s OutputSample) TimeOfDay() string {
	m := s.Minute % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// OutputTrace is a gap-free per-minute series ordered by Minute.
type OutputTrace []OutputSample

// Days is the number of whole days covered by the trace.
func (t OutputTrace) Days() int { return len(t) / MinutesPerDay }

// Day returns the samples of day d (0-based). It panics if d is out of range.
func (t OutputTrace) Day(d int) OutputTrace {
	return t[d*MinutesPerDay : (d+1)*MinutesPerDay]
}

// BloodGlucose extracts the blood glucose column.
func (t OutputTrace) BloodGlucose() []float64 {
	bg := make([]float64, len(t))
	for i, s := range t {
		bg[i] = s.BloodGlucose
	}
	return bg
}
