package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/objective"
	"github.com/mdi-sim/mdi-sim/sim/search"
	"github.com/mdi-sim/mdi-sim/sim/store"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// traceCSVHeader is the column layout of exported traces.
var traceCSVHeader = []string{"TimeOfDay", "BloodGlucose", "CarbohydratesOnBoard", "InsulinOnBoard", "InterstitialGlucose"}

// writeTraceCSV writes one row per simulated minute.
func writeTraceCSV(w io.Writer, tr sim.OutputTrace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(traceCSVHeader); err != nil {
		return err
	}
	for _, s := range tr {
		row := []string{
			s.TimeOfDay(),
			formatFloat(s.BloodGlucose),
			formatFloat(s.CarbsOnBoard),
			formatFloat(s.InsulinOnBoard),
			formatFloat(s.InterstitialGlucose),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// printMetrics prints the objective breakdown of one evaluation.
func printMetrics(w io.Writer, m objective.Metrics, cfg objective.Config) {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value", "Weight")
	table.Append("hypo fraction", fmt.Sprintf("%.4f", m.HypoFraction), fmt.Sprintf("%.2f", cfg.Weights.Hypo))
	table.Append("hyper fraction", fmt.Sprintf("%.4f", m.HyperFraction), fmt.Sprintf("%.2f", cfg.Weights.Hyper))
	table.Append("amplitude", fmt.Sprintf("%.2f mmol/l (%.4f)", m.Amplitude, m.AmplitudeNormalized), fmt.Sprintf("%.2f", cfg.Weights.Amplitude))
	table.Append("dose load", fmt.Sprintf("%.4f", m.DoseLoad), fmt.Sprintf("%.2f", cfg.Weights.Dose))
	if cfg.WarmupFactor > 0 {
		table.Append("warm-up hypo", fmt.Sprintf("%.4f", m.WarmupHypoFraction), fmt.Sprintf("%.2f", cfg.Weights.Hypo*cfg.WarmupFactor))
		table.Append("warm-up hyper", fmt.Sprintf("%.4f", m.WarmupHyperFraction), fmt.Sprintf("%.2f", cfg.Weights.Hyper*cfg.WarmupFactor))
	}
	table.Append("time in range", fmt.Sprintf("%.4f", m.TimeInRange), "-")
	table.Append("mean ± sd", fmt.Sprintf("%.2f ± %.2f", m.Mean, m.StdDev), "-")
	table.Append("score", fmt.Sprintf("%.6f", m.Score), "-")
	table.Render()
}

// printDailySummary prints blood glucose statistics for every simulated day.
func printDailySummary(w io.Writer, tr sim.OutputTrace) {
	table := tablewriter.NewWriter(w)
	table.Header("Day", "Min", "Mean", "Max")
	for d := 0; d < tr.Days(); d++ {
		bg := tr.Day(d).BloodGlucose()
		table.Append(
			strconv.Itoa(d+1),
			fmt.Sprintf("%.2f", floats.Min(bg)),
			fmt.Sprintf("%.2f", stat.Mean(bg, nil)),
			fmt.Sprintf("%.2f", floats.Max(bg)),
		)
	}
	table.Render()
}

// printScheduleComparison prints the tunable amounts of the base and the best
// schedule side by side. Both schedules share their timings.
func printScheduleComparison(w io.Writer, before, after sim.DosingSchedule, beforeScore, afterScore float64) {
	table := tablewriter.NewWriter(w)
	table.Header("Intake", "Time", "Before", "After")
	b, a := before.Basal(), after.Basal()
	table.Append(b.Kind.String(), sim.FormatTimeOfDay(b.Minute), formatAmount(b.Amount), formatAmount(a.Amount))
	afterBoluses := after.Boluses()
	for i, bolus := range before.Boluses() {
		table.Append(bolus.Kind.String(), sim.FormatTimeOfDay(bolus.Minute), formatAmount(bolus.Amount), formatAmount(afterBoluses[i].Amount))
	}
	table.Append("total insulin", "", formatAmount(before.TotalInsulin()), formatAmount(after.TotalInsulin()))
	table.Append("score", "", fmt.Sprintf("%.6f", beforeScore), fmt.Sprintf("%.6f", afterScore))
	table.Render()
}

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// printSearchSummary prints the run statistics of a search result.
func printSearchSummary(w io.Writer, res *search.Result) {
	summary := trace.Summarize(res.Trace)
	table := tablewriter.NewWriter(w)
	table.Header("Strategy", "Stop", "Iterations", "Evaluations", "Cache hits", "Improvements", "Total gain")
	table.Append(
		res.Strategy,
		string(res.Reason),
		strconv.Itoa(res.Iterations),
		strconv.Itoa(res.Evaluations),
		strconv.Itoa(res.CacheHits),
		strconv.Itoa(summary.Improvements),
		fmt.Sprintf("%.6f", summary.TotalGain),
	)
	table.Render()
}

// printRuns lists archived runs, newest first.
func printRuns(w io.Writer, runs []store.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Started", "Strategy", "Model", "Seed", "Dosage", "Score", "Evals", "Duration")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Strategy,
			r.Model,
			strconv.FormatInt(r.Seed, 10),
			formatDosage(r.Dosage),
			fmt.Sprintf("%.6f", r.BestScore),
			strconv.Itoa(r.Evaluations),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	table.Render()
}

// printImprovements lists the improvement history of one run.
func printImprovements(w io.Writer, records []trace.ImprovementRecord) {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Iteration", "Evaluation", "Score", "Gain", "Dosage")
	for i, r := range records {
		gain := "-"
		if !math.IsInf(r.Previous, 1) {
			gain = fmt.Sprintf("%.6f", r.Gain())
		}
		table.Append(
			strconv.Itoa(i+1),
			strconv.Itoa(r.Iteration),
			strconv.Itoa(r.Evaluation),
			fmt.Sprintf("%.6f", r.Score),
			gain,
			formatDosage(r.Dosage),
		)
	}
	table.Render()
}

func formatDosage(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatAmount(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
