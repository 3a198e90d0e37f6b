// Package sim provides the day-stepping glucose simulation core for mdisim.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - intake.go: IntakeEvent, DosingSchedule and DosageVector (what gets tuned)
//   - model.go: the GlucoseModel / Session boundary to the physiological model
//   - simulator.go: the minute-by-minute driver that turns a schedule into a trace
//
// # Architecture
//
// The sim package defines the data model and the model interfaces; the
// remaining pieces live in sub-packages:
//   - sim/glucose/: reference compartment model, registered as "reference"
//   - sim/objective/: scores an OutputTrace (lower is better)
//   - sim/cache/: memoizes scores by dosage vector
//   - sim/search/: grid, stochastic local and evolutionary search
//   - sim/trace/: improvement and generation records of a search run
//   - sim/store/: archive of finished search runs (memory, SQLite)
//
// Model implementations register themselves via init() functions calling
// RegisterModel, so callers pick a model by name (NewModel) without sim
// importing any implementation.
//
// # Key Interfaces
//
//   - GlucoseModel: creates one independent Session per simulation run
//   - Session: advances one step, consuming the pending signals, then terminates
package sim
