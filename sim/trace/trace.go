package trace

// TraceLevel controls the verbosity of search tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelImprovements captures every improvement of the best score.
	TraceLevelImprovements TraceLevel = "improvements"
	// TraceLevelGenerations additionally captures one record per generation.
	TraceLevelGenerations TraceLevel = "generations"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:         true,
	TraceLevelImprovements: true,
	TraceLevelGenerations:  true,
	"":                     true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SearchTrace collects records during one search run. It is not safe for
// concurrent use; strategies record under the lock that guards their best.
type SearchTrace struct {
	Config       TraceConfig
	Improvements []ImprovementRecord
	Generations  []GenerationRecord
}

// NewSearchTrace creates a SearchTrace ready for recording.
func NewSearchTrace(config TraceConfig) *SearchTrace {
	return &SearchTrace{
		Config:       config,
		Improvements: make([]ImprovementRecord, 0),
		Generations:  make([]GenerationRecord, 0),
	}
}

// RecordImprovement appends an improvement unless tracing is off.
// Safe on a nil trace.
func (st *SearchTrace) RecordImprovement(record ImprovementRecord) {
	if st == nil || st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	record.Dosage = append([]float64(nil), record.Dosage...)
	st.Improvements = append(st.Improvements, record)
}

// RecordGeneration appends a generation summary at the generations level.
// Safe on a nil trace.
func (st *SearchTrace) RecordGeneration(record GenerationRecord) {
	if st == nil || st.Config.Level != TraceLevelGenerations {
		return
	}
	st.Generations = append(st.Generations, record)
}
