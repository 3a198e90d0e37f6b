package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mdi-sim/mdi-sim/sim"
	"github.com/mdi-sim/mdi-sim/sim/cache"
	"github.com/mdi-sim/mdi-sim/sim/experiment"
	"github.com/mdi-sim/mdi-sim/sim/search"
	"github.com/mdi-sim/mdi-sim/sim/store"
)

var (
	searchStrategy string // Strategy name
	searchSeed     int64  // Seed override for stochastic strategies
	searchSteps    int    // Local search step budget override
	searchDays     int    // Days to simulate per evaluation
	searchWeights  string // Objective weights override
	searchOut      string // YAML file receiving the best schedule
	storeKind      string // Run archive kind override
	storePath      string // SQLite archive path override
)

// searchOptions are the command-line overrides of one search run.
type searchOptions struct {
	Strategy  string
	Seed      *int64 // nil keeps the experiment seed
	Steps     int
	Days      int
	Weights   string
	OutPath   string
	StoreKind string
	StorePath string
}

// searchCmd tunes the dosage amounts of the configured schedule
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for the dosage amounts that minimize the objective",
	Run: func(cmd *cobra.Command, args []string) {
		exp, err := loadExperiment(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		opts := searchOptions{
			Strategy:  searchStrategy,
			Steps:     searchSteps,
			Days:      searchDays,
			Weights:   searchWeights,
			OutPath:   searchOut,
			StoreKind: storeKind,
			StorePath: storePath,
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &searchSeed
		}
		if !cmd.Flags().Changed("store-path") {
			opts.StorePath = envOr(envStorePath, opts.StorePath)
		}
		if _, err := runSearch(context.Background(), exp, opts, os.Stdout); err != nil {
			logrus.Fatalf("search: %v", err)
		}
	},
}

// applyStoreOverrides points the experiment at another archive. A path without
// an explicit kind selects sqlite.
func applyStoreOverrides(exp *experiment.Experiment, kind, path string) {
	if path != "" {
		exp.Store.Path = path
		if kind == "" {
			kind = store.KindSQLite
		}
	}
	if kind != "" {
		exp.Store.Kind = kind
	}
}

// runSearch runs one strategy on the experiment, prints the outcome, archives
// the run and returns the archived record.
func runSearch(ctx context.Context, exp *experiment.Experiment, opts searchOptions, out io.Writer) (store.RunRecord, error) {
	if opts.Seed != nil {
		exp.Search.Seed = *opts.Seed
	}
	if opts.Steps > 0 {
		exp.Search.Local.Steps = opts.Steps
	}
	applyStoreOverrides(exp, opts.StoreKind, opts.StorePath)
	if err := applyObjectiveOverrides(exp, opts.Days, opts.Weights); err != nil {
		return store.RunRecord{}, err
	}

	base, err := exp.BaseSchedule()
	if err != nil {
		return store.RunRecord{}, err
	}
	obj, err := exp.NewObjective()
	if err != nil {
		return store.RunRecord{}, err
	}
	strategy, err := search.NewStrategy(opts.Strategy, exp.Search)
	if err != nil {
		return store.RunRecord{}, err
	}
	archive, err := exp.OpenStore()
	if err != nil {
		return store.RunRecord{}, err
	}
	defer func() {
		if err := archive.Close(); err != nil {
			logrus.Warnf("closing run archive: %v", err)
		}
	}()

	// the base score goes through the same cache, so strategies that revisit
	// the base vector do not simulate it again
	scores := cache.New()
	baseScore, _, err := scores.GetOrCompute(base.Dosage(), func() (float64, error) { return obj.Score(base) })
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("scoring base schedule: %w", err)
	}
	logrus.Infof("Base schedule %s scores %.6f", base.Dosage(), baseScore)

	evaluator := search.NewEvaluator(base, obj.Score, scores)
	progress := func(imp search.Improvement) {
		logrus.Infof("[%s] iteration %d, evaluation %d: %.6f -> %.6f %s",
			imp.Strategy, imp.Iteration, imp.Evaluations, imp.Previous, imp.Score, imp.Dosage)
	}

	started := time.Now()
	logrus.Infof("Starting %s search, bounds [%d, %d], seed %d",
		strategy.Name(), exp.Search.Bounds.Min, exp.Search.Bounds.Max, exp.Search.Seed)
	res, err := strategy.Search(evaluator, progress)
	if err != nil {
		return store.RunRecord{}, err
	}
	elapsed := time.Since(started)
	logrus.Infof("%s search finished in %v (%s)", res.Strategy, elapsed.Round(time.Millisecond), res.Reason)

	printScheduleComparison(out, base, res.Best, baseScore, res.BestScore)
	printSearchSummary(out, res)

	record := store.NewRunRecord(res, exp.Model.Name, exp.Search.Seed, started, elapsed)
	if err := archive.Save(ctx, record); err != nil {
		return store.RunRecord{}, fmt.Errorf("archiving run: %w", err)
	}
	fmt.Fprintf(out, "Run %s archived (%s store)\n", record.ID, exp.Store.Kind)

	if opts.OutPath != "" {
		if err := writeScheduleYAML(opts.OutPath, res.Best); err != nil {
			return record, err
		}
		logrus.Infof("Wrote best schedule to %s", opts.OutPath)
	}
	return record, nil
}

// writeScheduleYAML writes the schedule in the experiment file's schedule format.
func writeScheduleYAML(path string, schedule sim.DosingSchedule) error {
	data, err := yaml.Marshal(sim.ScheduleSpecFrom(schedule))
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing schedule: %w", err)
	}
	return nil
}

func init() {
	searchCmd.Flags().StringVar(&searchStrategy, "strategy", search.StrategyLocal, fmt.Sprintf("Search strategy %v", search.ValidStrategyNames()))
	searchCmd.Flags().Int64Var(&searchSeed, "seed", 42, "Seed for the stochastic strategies (default: experiment setting)")
	searchCmd.Flags().IntVar(&searchSteps, "steps", 0, "Local search step budget (default: experiment setting)")
	searchCmd.Flags().IntVar(&searchDays, "days", 0, "Days to simulate per evaluation (default: experiment setting)")
	searchCmd.Flags().StringVar(&searchWeights, "weights", "", "Objective weights, e.g. hypo:1,hyper:0.8,amplitude:0.5,dose:0.3")
	searchCmd.Flags().StringVar(&searchOut, "out", "", "Write the best schedule to this YAML file")
	searchCmd.Flags().StringVar(&storeKind, "store", "", "Run archive kind (memory, sqlite)")
	searchCmd.Flags().StringVar(&storePath, "store-path", "", "SQLite run archive path (env "+envStorePath+")")
}
