// Package trace records how a search run progressed: every accepted
// improvement and, for population search, one summary per generation.
// This package has no dependencies on sim/; it stores pure data types.
package trace

import "math"

// ImprovementRecord captures one strict improvement of the best score.
type ImprovementRecord struct {
	Iteration  int       // step, generation or candidate index that produced it
	Evaluation int       // evaluations requested so far, cache hits included
	Score      float64   // new best score, lower is better
	Previous   float64   // best score before the improvement; +Inf for the first record
	Dosage     []float64 // [basal, boluses...]
}

// Gain is how much the improvement lowered the best score; 0 for the first record.
func (r ImprovementRecord) Gain() float64 {
	if math.IsInf(r.Previous, 1) {
		return 0
	}
	return r.Previous - r.Score
}

// GenerationRecord summarizes one generation of a population search.
type GenerationRecord struct {
	Generation int
	BestScore  float64 // lowest score in the generation
	MeanScore  float64
	WorstScore float64
	Distinct   int // distinct dosage vectors in the population
	Stagnation int // consecutive generations without improvement, including this one
}
