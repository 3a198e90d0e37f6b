package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mdi-sim/mdi-sim/sim/experiment"
)

// Environment variables that override flag defaults. A .env file in the
// working directory is loaded first when present.
const (
	envLogLevel  = "MDISIM_LOG_LEVEL"
	envConfig    = "MDISIM_CONFIG"
	envStorePath = "MDISIM_STORE_PATH"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Experiment YAML file ("" = reference experiment)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "mdisim",
	Short: "Tune MDI insulin dosing schedules by simulation search",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("log") {
			logLevel = envOr(envLogLevel, logLevel)
		}
		if !cmd.Flags().Changed("config") {
			configPath = envOr(envConfig, configPath)
		}
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// envOr returns the environment value of key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadExperiment reads the experiment file, or returns the reference
// experiment when no file is configured.
func loadExperiment(path string) (*experiment.Experiment, error) {
	if path == "" {
		return experiment.DefaultExperiment(), nil
	}
	return experiment.LoadExperiment(path)
}

// Execute runs the CLI root command
func Execute() {
	// silently ignored when there is no .env file
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Experiment YAML file (default: reference experiment)")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(runsCmd)
}
