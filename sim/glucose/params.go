package glucose

import (
	"fmt"
	"math"
	"sort"
)

// Params are the reference model's physiological constants. Times are in
// minutes, glucose in mmol/l, insulin in U and carbohydrate in g.
type Params struct {
	// EquilibriumGlucose is where glucose settles without any insulin.
	EquilibriumGlucose float64
	// GlucoseRecovery is the first-order rate pulling glucose toward equilibrium, 1/min.
	GlucoseRecovery float64
	// InsulinSensitivity is the total glucose drop per absorbed unit of insulin.
	InsulinSensitivity float64
	// CarbFactor is the total glucose rise per absorbed gram of carbohydrate.
	CarbFactor float64
	// InsulinTmax is the time-to-peak of the two-compartment insulin depot.
	InsulinTmax float64
	// CarbTmax is the time-to-peak of the two-compartment gut.
	CarbTmax float64
	// InterstitialDelay is the lag of interstitial behind blood glucose.
	InterstitialDelay float64
	// InitialGlucose is the blood glucose at session start.
	InitialGlucose float64
	// ActivityGain scales insulin sensitivity by 1 + gain*activity.
	ActivityGain float64
}

// DefaultParams keep an adult on 32 U basal close to 6 mmol/l between meals.
func DefaultParams() Params {
	return Params{
		EquilibriumGlucose: 20,
		GlucoseRecovery:    0.002,
		InsulinSensitivity: 1.25,
		CarbFactor:         0.35,
		InsulinTmax:        55,
		CarbTmax:           40,
		InterstitialDelay:  10,
		InitialGlucose:     7,
		ActivityGain:       2,
	}
}

// fields maps the parameter names accepted in configuration files.
func (p *Params) fields() map[string]*float64 {
	return map[string]*float64{
		"equilibrium_glucose": &p.EquilibriumGlucose,
		"glucose_recovery":    &p.GlucoseRecovery,
		"insulin_sensitivity": &p.InsulinSensitivity,
		"carb_factor":         &p.CarbFactor,
		"insulin_tmax":        &p.InsulinTmax,
		"carb_tmax":           &p.CarbTmax,
		"interstitial_delay":  &p.InterstitialDelay,
		"initial_glucose":     &p.InitialGlucose,
		"activity_gain":       &p.ActivityGain,
	}
}

// ParamsFromMap overlays the named values onto DefaultParams.
// Unknown names are rejected.
func ParamsFromMap(values map[string]float64) (Params, error) {
	p := DefaultParams()
	fields := p.fields()
	for name, v := range values {
		field, ok := fields[name]
		if !ok {
			known := make([]string, 0, len(fields))
			for k := range fields {
				known = append(known, k)
			}
			sort.Strings(known)
			return Params{}, fmt.Errorf("unknown reference model parameter %q (known: %v)", name, known)
		}
		*field = v
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks that every constant is finite and in range.
func (p Params) Validate() error {
	for name, v := range p.fields() {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, *v)
		}
	}
	positive := map[string]float64{
		"insulin_tmax":       p.InsulinTmax,
		"carb_tmax":          p.CarbTmax,
		"interstitial_delay": p.InterstitialDelay,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", name, v)
		}
	}
	if p.GlucoseRecovery < 0 || p.InsulinSensitivity < 0 || p.CarbFactor < 0 || p.ActivityGain < 0 {
		return fmt.Errorf("rates and factors must be >= 0")
	}
	if p.InitialGlucose <= 0 || p.EquilibriumGlucose <= 0 {
		return fmt.Errorf("glucose levels must be > 0")
	}
	return nil
}

// cohort scales the base constants per subject class.
type cohort struct {
	name        string
	sensitivity float64
	carbs       float64
}

var cohorts = []cohort{
	{name: "adult", sensitivity: 1, carbs: 1},
	{name: "adolescent", sensitivity: 0.8, carbs: 1.15},
	{name: "child", sensitivity: 1.6, carbs: 1.9},
}

// forSubject applies the subject class's scaling. The subject ID picks one of
// ten variants within the cohort, each 2% more insulin sensitive than the last.
func (p Params) forSubject(class, id uint16) (Params, error) {
	if int(class) >= len(cohorts) {
		return Params{}, fmt.Errorf("unknown subject class %d (have %d cohorts)", class, len(cohorts))
	}
	c := cohorts[class]
	variant := 1 + 0.02*float64(id%10)
	p.InsulinSensitivity *= c.sensitivity * variant
	p.CarbFactor *= c.carbs
	return p, nil
}
