package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mdi-sim/mdi-sim/sim/experiment"
	"github.com/mdi-sim/mdi-sim/sim/store"
)

var runsLimit int // Maximum number of runs listed

// errVolatileStore is returned when the archive does not outlive the process.
var errVolatileStore = errors.New("the memory store keeps no runs between invocations; use --store-path or store.kind sqlite")

// runsCmd lists archived search runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived search runs, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		archive := openArchive(cmd)
		defer archive.Close()
		if err := listRuns(context.Background(), archive, runsLimit, os.Stdout); err != nil {
			logrus.Fatalf("runs: %v", err)
		}
	},
}

// runsShowCmd prints the improvement history of one run
var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one archived run and its improvement history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		archive := openArchive(cmd)
		defer archive.Close()
		if err := showRun(context.Background(), archive, args[0], os.Stdout); err != nil {
			logrus.Fatalf("runs show: %v", err)
		}
	},
}

// openArchive opens the experiment's archive with the command-line overrides
// applied, exiting on failure.
func openArchive(cmd *cobra.Command) store.Store {
	exp, err := loadExperiment(configPath)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	path := storePath
	if !cmd.Flags().Changed("store-path") {
		path = envOr(envStorePath, path)
	}
	archive, err := openPersistentStore(exp, storeKind, path)
	if err != nil {
		logrus.Fatalf("runs: %v", err)
	}
	return archive
}

// openPersistentStore opens the configured archive, refusing the memory store.
func openPersistentStore(exp *experiment.Experiment, kind, path string) (store.Store, error) {
	applyStoreOverrides(exp, kind, path)
	if exp.Store.Kind == "" || exp.Store.Kind == store.KindMemory {
		return nil, errVolatileStore
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp.OpenStore()
}

// listRuns prints up to limit runs; limit <= 0 lists all.
func listRuns(ctx context.Context, archive store.Store, limit int, out io.Writer) error {
	runs, err := archive.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs.")
		return nil
	}
	printRuns(out, runs)
	return nil
}

// showRun prints one run followed by its improvements.
func showRun(ctx context.Context, archive store.Store, id string, out io.Writer) error {
	run, err := archive.Get(ctx, id)
	if err != nil {
		return err
	}
	printRuns(out, []store.RunRecord{run})
	fmt.Fprintf(out, "Stopped: %s after %d iteration(s), %d cache hit(s)\n", run.Reason, run.Iterations, run.CacheHits)
	if len(run.Improvements) > 0 {
		printImprovements(out, run.Improvements)
	}
	return nil
}

func init() {
	runsCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Run archive kind (sqlite)")
	runsCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "SQLite run archive path (env "+envStorePath+")")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list (0 = all)")
	runsCmd.AddCommand(runsShowCmd)
}
