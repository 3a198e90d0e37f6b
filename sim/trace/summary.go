package trace

import "math"

// TraceSummary aggregates statistics from a SearchTrace.
type TraceSummary struct {
	Improvements    int
	FirstScore      float64 // score of the first recorded best
	BestScore       float64
	TotalGain       float64 // FirstScore - BestScore
	LargestGain     float64
	LastImprovement int // evaluation count at the last improvement

	Generations    int
	BestGeneration int // generation that produced the lowest generation-best score
}

// Summarize computes aggregate statistics from a SearchTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SearchTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil {
		return summary
	}

	summary.Improvements = len(st.Improvements)
	if n := len(st.Improvements); n > 0 {
		first, last := st.Improvements[0], st.Improvements[n-1]
		summary.FirstScore = first.Score
		summary.BestScore = last.Score
		summary.TotalGain = first.Score - last.Score
		summary.LastImprovement = last.Evaluation
		for _, r := range st.Improvements {
			summary.LargestGain = math.Max(summary.LargestGain, r.Gain())
		}
	}

	summary.Generations = len(st.Generations)
	best := math.Inf(1)
	for _, g := range st.Generations {
		if g.BestScore < best {
			best = g.BestScore
			summary.BestGeneration = g.Generation
		}
	}
	return summary
}
