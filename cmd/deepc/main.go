package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/logger"
)

var (
	dataDir  string
	logLevel string
	devLog   bool

	configFile string

	// overrides applied on top of the preset and config file
	tini            int
	horizon         int
	applyN          int
	length          int
	steps           int
	lambdaG         float64
	lambdaY         float64
	lambdaU         float64
	noiseStd        float64
	seed            uint64
	dataFile        string
	checkExcitation bool
	noSave          bool

	baseline   string
	lengths    []int
	params     []string
	tuneMetric string
	trials     int
	outPath    string
)

// main registers the deepc commands and exits with status 1 when the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "deepc",
		Short:         "data-enabled predictive control lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevel, devLog)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".deepc", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human readable logs")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "collect data and run the closed loop",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExperiment,
	}
	addExperimentFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "run one experiment per training length in parallel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addExperimentFlags(sweepCmd)
	sweepCmd.Flags().IntSliceVar(&lengths, "lengths", nil, "training lengths (default: data.lengths or data.length)")

	tuneCmd := &cobra.Command{
		Use:     "tune [preset]",
		Short:   "grid search over controller parameters",
		Example: "  deepc tune scalar --param lambda_g=0,0.1,1 --param input_weight=0.01,0.1",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runTune,
	}
	addExperimentFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&params, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "tracking_rms", "metric to minimize")

	montecarloCmd := &cobra.Command{
		Use:   "montecarlo [preset]",
		Short: "repeat an experiment over noise realizations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addExperimentFlags(montecarloCmd)
	montecarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	montecarloCmd.Flags().StringVar(&tuneMetric, "metric", "tracking_rms", "metric to summarize")

	compareCmd := &cobra.Command{
		Use:   "compare [preset]",
		Short: "compare the predictive controller with a baseline",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCompare,
	}
	addExperimentFlags(compareCmd)
	compareCmd.Flags().StringVar(&baseline, "baseline", "pid", "baseline controller (pid, none)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	checkCmd := &cobra.Command{
		Use:   "check [preset]",
		Short: "inspect offline data and the predictive structure",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkData,
	}
	addExperimentFlags(checkCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run outputs and inputs",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config [preset]",
		Short: "print or write a preset as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := presetConfig(args)
			if err != nil {
				return err
			}
			if outPath != "" {
				return config.Save(outPath, cfg)
			}
			return printYAML(cfg)
		},
	}
	configCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(runCmd, sweepCmd, tuneCmd, montecarloCmd, compareCmd, scenarioCmd, checkCmd,
		listCmd, plotCmd, exportJSONCmd, exportCSVCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func addExperimentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.IntVar(&tini, "tini", config.DefaultTini, "initial-condition length")
	f.IntVar(&horizon, "horizon", config.DefaultHorizon, "prediction horizon")
	f.IntVar(&applyN, "s", config.DefaultS, "inputs applied per solve")
	f.IntVar(&length, "length", config.DefaultLength, "offline samples T")
	f.IntVar(&steps, "steps", config.DefaultSteps, "experiment length in samples")
	f.Float64Var(&lambdaG, "lambda-g", 0, "g regularization")
	f.Float64Var(&lambdaY, "lambda-y", 0, "output slack weight (0 disables the slack)")
	f.Float64Var(&lambdaU, "lambda-u", 0, "input slack weight (0 disables the slack)")
	f.Float64Var(&noiseStd, "noise", 0, "measurement noise std for data and closed loop")
	f.Uint64Var(&seed, "seed", config.DefaultSeed, "random seed")
	f.StringVar(&dataFile, "data-file", "", "offline data CSV (u*, y* columns)")
	f.BoolVar(&checkExcitation, "check-excitation", false, "require persistently exciting data")
}
