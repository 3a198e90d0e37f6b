package objective

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Weights of the sub-metrics in the convex combination.
type Weights struct {
	Hypo      float64 `yaml:"hypo"`
	Hyper     float64 `yaml:"hyper"`
	Amplitude float64 `yaml:"amplitude"`
	Dose      float64 `yaml:"dose"`
}

// DefaultWeights weigh hypoglycemia highest and dose lowest.
func DefaultWeights() Weights {
	return Weights{Hypo: 1.0, Hyper: 0.8, Amplitude: 0.5, Dose: 0.3}
}

// metric name -> weight field
func (w *Weights) fields() map[string]*float64 {
	return map[string]*float64{
		"hypo":      &w.Hypo,
		"hyper":     &w.Hyper,
		"amplitude": &w.Amplitude,
		"dose":      &w.Dose,
	}
}

// ValidMetricNames returns the metric names accepted by ParseWeights, sorted.
func ValidMetricNames() []string {
	var w Weights
	names := make([]string, 0, 4)
	for name := range w.fields() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseWeights parses a comma-separated list of name:weight pairs,
// e.g. "hypo:1,hyper:0.8". Metrics not listed get weight 0.
func ParseWeights(s string) (Weights, error) {
	var w Weights
	if strings.TrimSpace(s) == "" {
		return w, fmt.Errorf("empty weight list")
	}
	fields := w.fields()
	seen := make(map[string]bool, len(fields))
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			return Weights{}, fmt.Errorf("invalid weight %q (expected name:weight)", strings.TrimSpace(part))
		}
		name := strings.TrimSpace(kv[0])
		field, ok := fields[name]
		if !ok {
			return Weights{}, fmt.Errorf("unknown metric %q; valid: %s", name, strings.Join(ValidMetricNames(), ", "))
		}
		if seen[name] {
			return Weights{}, fmt.Errorf("duplicate metric %q", name)
		}
		seen[name] = true
		weight, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("invalid weight for metric %q: %w", name, err)
		}
		*field = weight
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate checks that every weight is finite and >= 0 and at least one is positive.
func (w Weights) Validate() error {
	total := 0.0
	for name, v := range w.fields() {
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return fmt.Errorf("weight %s must be a finite number >= 0, got %v", name, *v)
		}
		total += *v
	}
	if total <= 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	return nil
}

// String formats the weights in ParseWeights syntax.
func (w Weights) String() string {
	return fmt.Sprintf("hypo:%g,hyper:%g,amplitude:%g,dose:%g", w.Hypo, w.Hyper, w.Amplitude, w.Dose)
}
