package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mdi-sim/mdi-sim/sim/experiment"
	"github.com/mdi-sim/mdi-sim/sim/objective"
)

var (
	simulateDays    int    // Days to simulate (0 = experiment setting)
	simulateCSV     string // Per-minute trace output file
	simulateWeights string // Objective weights override, "hypo:1,hyper:0.8"
)

// simulateOptions are the command-line overrides of one simulate run.
type simulateOptions struct {
	Days    int
	CSVPath string
	Weights string
}

// simulateCmd runs the configured schedule once and reports its score
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the configured schedule and print its score breakdown",
	Run: func(cmd *cobra.Command, args []string) {
		exp, err := loadExperiment(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		opts := simulateOptions{Days: simulateDays, CSVPath: simulateCSV, Weights: simulateWeights}
		if err := runSimulate(exp, opts, os.Stdout); err != nil {
			logrus.Fatalf("simulate: %v", err)
		}
	},
}

// applyObjectiveOverrides applies the --days and --weights flags to exp.
func applyObjectiveOverrides(exp *experiment.Experiment, days int, weights string) error {
	if days > 0 {
		exp.Days = days
	}
	if weights != "" {
		w, err := objective.ParseWeights(weights)
		if err != nil {
			return err
		}
		exp.Objective.Weights = w
	}
	return exp.Validate()
}

// runSimulate simulates the experiment's base schedule, prints the metrics and
// optionally writes the trace as CSV.
func runSimulate(exp *experiment.Experiment, opts simulateOptions, out io.Writer) error {
	if err := applyObjectiveOverrides(exp, opts.Days, opts.Weights); err != nil {
		return err
	}
	schedule, err := exp.BaseSchedule()
	if err != nil {
		return err
	}
	obj, err := exp.NewObjective()
	if err != nil {
		return err
	}

	logrus.Infof("Simulating %s for %d day(s) on model %q", schedule.Dosage(), exp.Days, exp.Model.Name)
	m, tr, err := obj.Evaluate(schedule)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Schedule %s, %d day(s), scored on the last day\n", schedule.Dosage(), exp.Days)
	printDailySummary(out, tr)
	printMetrics(out, m, obj.Config())

	if opts.CSVPath != "" {
		f, err := os.Create(opts.CSVPath)
		if err != nil {
			return fmt.Errorf("creating trace file: %w", err)
		}
		if err := writeTraceCSV(f, tr); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", opts.CSVPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		logrus.Infof("Wrote %d samples to %s", len(tr), opts.CSVPath)
	}
	return nil
}

func init() {
	simulateCmd.Flags().IntVar(&simulateDays, "days", 0, "Days to simulate (default: experiment setting)")
	simulateCmd.Flags().StringVar(&simulateCSV, "csv", "", "Write the per-minute trace to this CSV file")
	simulateCmd.Flags().StringVar(&simulateWeights, "weights", "", "Objective weights, e.g. hypo:1,hyper:0.8,amplitude:0.5,dose:0.3")
}
