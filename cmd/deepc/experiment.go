package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/deepc/internal/automation"
	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/excitation"
	"github.com/san-kum/deepc/internal/experiment"
	"github.com/san-kum/deepc/internal/hankel"
	"github.com/san-kum/deepc/internal/metrics"
	"github.com/san-kum/deepc/internal/optim"
	"github.com/san-kum/deepc/internal/storage"
)

func presetConfig(args []string) (*config.Config, error) {
	name := config.DefaultModel
	if len(args) > 0 {
		name = args[0]
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
	}
	return cfg, nil
}

// resolveConfig layers preset, config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	cfg, err := presetConfig(args)
	if err != nil {
		return nil, "", err
	}
	name := config.DefaultModel
	if len(args) > 0 {
		name = args[0]
	}

	if configFile != "" {
		if cfg, err = config.Load(configFile); err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		name = ""
	}

	f := cmd.Flags()
	if f.Changed("tini") {
		cfg.Controller.Tini = tini
	}
	if f.Changed("horizon") {
		cfg.Controller.Horizon = horizon
	}
	if f.Changed("s") {
		cfg.Controller.S = applyN
	}
	if f.Changed("length") {
		cfg.Data.Length = length
	}
	if f.Changed("steps") {
		cfg.Experiment.Steps = steps
	}
	if f.Changed("lambda-g") {
		cfg.Controller.LambdaG = lambdaG
	}
	if f.Changed("lambda-y") {
		cfg.Controller.LambdaY = lambdaY
	}
	if f.Changed("lambda-u") {
		cfg.Controller.LambdaU = lambdaU
	}
	if f.Changed("noise") {
		cfg.Data.NoiseStd = noiseStd
		cfg.Experiment.NoiseStd = noiseStd
	}
	if f.Changed("seed") {
		cfg.Plant.Seed = seed
		cfg.Data.Seed = seed
	}
	if f.Changed("data-file") {
		cfg.Data.File = dataFile
	}
	if f.Changed("check-excitation") {
		cfg.Controller.CheckExcitation = checkExcitation
	}
	return cfg, name, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, preset, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	registry := experiment.NewRegistry()
	exp, err := experiment.New(cfg, registry)
	if err != nil {
		return err
	}
	if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("deepc %s", cfg.Plant.Model)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("T=%d  Tini=%d  N=%d  s=%d  iterations=%d",
		exp.OfflineData().Len(), cfg.Controller.Tini, cfg.Controller.Horizon, cfg.Controller.S, cfg.Iterations())))

	start := time.Now()
	result, runErr := exp.Run(ctx)
	elapsed := time.Since(start)

	if result != nil && !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(experiment.Metadata(cfg, preset, result, runErr), result.Data)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", valueStyle.Render(runID))
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	stats := metrics.SummarizeSolveTimes(result.SolveTimes)
	fmt.Printf("solve time: mean %v  p95 %v  max %v\n",
		stats.Mean.Round(time.Microsecond), stats.P95.Round(time.Microsecond), stats.Max.Round(time.Microsecond))

	printMetrics(result.Metrics)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("baseline") {
		cfg.Baseline.Kind = baseline
	}
	ctx, cancel := signalContext()
	defer cancel()

	registry := experiment.NewRegistry()
	exp, err := experiment.New(cfg, registry)
	if err != nil {
		return err
	}
	if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
		return err
	}
	predictive, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	reference, err := exp.RunBaseline(ctx, registry.DefaultMetrics(cfg)...)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(predictive.Metrics))
	for name := range predictive.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "deepc", cfg.Baseline.Kind})
	for _, name := range names {
		t.AppendRow(table.Row{name,
			fmt.Sprintf("%.6f", predictive.Metrics[name]),
			fmt.Sprintf("%.6f", reference.Metrics[name])})
	}
	t.Render()
	return nil
}

func printMetrics(values map[string]float64) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, name := range names {
		t.AppendRow(table.Row{name, fmt.Sprintf("%.6f", values[name])})
	}
	t.Render()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	ls := lengths
	if len(ls) == 0 {
		ls = cfg.Data.Lengths
	}
	if len(ls) == 0 {
		ls = []int{cfg.Data.Length}
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcomes, err := experiment.Sweep(ctx, cfg, experiment.NewRegistry(), ls)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"T", "Status", "Iterations", "Tracking RMS", "Control effort", "Final y"})
	for _, o := range outcomes {
		if o.Err != nil {
			t.AppendRow(table.Row{o.Length, errorStyle.Render("failed"), "-", "-", "-", o.Err.Error()})
			continue
		}
		last := o.Result.Data.Len() - 1
		_, y := o.Result.Data.Row(last)
		t.AppendRow(table.Row{
			o.Length,
			okStyle.Render("ok"),
			o.Result.StepsTaken,
			fmt.Sprintf("%.6f", o.Result.Metrics["tracking_rms"]),
			fmt.Sprintf("%.4f", o.Result.Metrics["control_effort"]),
			formatVector(y),
		})
	}
	t.Render()
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return fmt.Errorf("no --param given; tunable: %v", optim.Tunable())
	}

	names := make([]string, 0, len(params))
	ranges := make([][]float64, 0, len(params))
	for _, p := range params {
		name, values, err := parseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	registry := experiment.NewRegistry()
	best, value, trials, err := grid.Search(ctx, optim.ExperimentBuilder(cfg, registry), tuneMetric)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	header := table.Row{}
	for _, n := range names {
		header = append(header, n)
	}
	t.AppendHeader(append(header, tuneMetric))
	for _, tr := range trials {
		row := table.Row{}
		for _, n := range names {
			row = append(row, tr.Params[n])
		}
		if tr.Err != nil {
			row = append(row, errorStyle.Render(tr.Err.Error()))
		} else {
			row = append(row, fmt.Sprintf("%.6f", tr.Value))
		}
		t.AppendRow(row)
	}
	t.Render()

	if err != nil {
		return err
	}
	fmt.Printf("best %s = %s at %v\n", tuneMetric, valueStyle.Render(fmt.Sprintf("%.6f", value)), best)
	return nil
}

// parseParam reads "name=v1,v2,...".
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("invalid --param %q, want name=v1,v2", s)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid value in --param %s: %w", name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:      cfg,
		NumTrials: trials,
		Seed:      cfg.Plant.Seed,
		Metric:    tuneMetric,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	ok, failed, mean, std := automation.MonteCarloStats(results)
	fmt.Println(titleStyle.Render("monte carlo"))
	fmt.Printf("trials: %d ok, %d failed\n", ok, failed)
	fmt.Printf("%s: mean %.6f  std %.6f\n", tuneMetric, mean, std)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println(titleStyle.Render(sc.Name))
	if sc.Description != "" {
		fmt.Println(dimStyle.Render(sc.Description))
	}
	results, err := automation.RunScenario(ctx, sc, experiment.NewRegistry(), st)
	for _, r := range results {
		line := fmt.Sprintf("%-20s iterations=%d tracking_rms=%.6f", r.Name, r.Result.StepsTaken, r.Result.Metrics["tracking_rms"])
		if r.RunID != "" {
			line += "  run " + r.RunID
		}
		fmt.Println(line)
	}
	return err
}

func checkData(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}
	data, err := exp.Offline()
	if err != nil {
		return err
	}

	cc := cfg.Controller
	structure, err := hankel.Build(data, cc.Tini, cc.Horizon)
	if err != nil {
		return err
	}
	order := cc.Order
	if order == 0 {
		sys, err := experiment.NewRegistry().PlantFromConfig(cfg.Plant)
		if err != nil {
			return err
		}
		order, _, _ = sys.Dims()
	}

	rows, cols := structure.Stacked().Dims()
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"samples T", data.Len()},
		{"inputs M / outputs P", fmt.Sprintf("%d / %d", data.Inputs(), data.Outputs())},
		{"structure", fmt.Sprintf("%d x %d", rows, cols)},
		{"rank", structure.Rank(1e-9)},
	})

	status := okStyle.Render("persistently exciting")
	if err := structure.CheckExcitation(order); err != nil {
		status = errorStyle.Render(err.Error())
	}
	t.AppendRow(table.Row{fmt.Sprintf("excitation (order %d)", order), status})
	for m, n := range excitation.SpectralLines(data.U, 1e-6) {
		t.AppendRow(table.Row{fmt.Sprintf("u%d spectral lines", m), n})
	}
	t.Render()
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Preset", "Plant", "T", "Tini", "N", "s", "Steps", "Noise"})
	for _, name := range config.ListPresets() {
		c := config.GetPreset(name)
		t.AppendRow(table.Row{name, c.Plant.Model, c.Data.Length, c.Controller.Tini,
			c.Controller.Horizon, c.Controller.S, c.Experiment.Steps, c.Experiment.NoiseStd})
	}
	t.Render()
	return nil
}

func printYAML(cfg *config.Config) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
