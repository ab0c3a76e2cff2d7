// Package automation runs scripted sequences of closed-loop experiments.
package automation

import (
	"context"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/experiment"
	"github.com/san-kum/deepc/internal/logger"
	"github.com/san-kum/deepc/internal/sim"
	"github.com/san-kum/deepc/internal/storage"
)

// Scenario defines a scripted experiment sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset (the default config when empty) and
// decodes Overrides over it, so only changed fields need to be given.
type ScenarioStep struct {
	Name      string    `yaml:"name"`
	Preset    string    `yaml:"preset"`
	Overrides yaml.Node `yaml:"config"`
	// Save stores the run when the scenario is given a store.
	Save bool `yaml:"save"`
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name   string
	Config *config.Config
	Result *sim.Result
	RunID  string
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Config resolves the step's full configuration.
func (s *ScenarioStep) Config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		if cfg = config.GetPreset(s.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	}
	if !s.Overrides.IsZero() {
		if err := s.Overrides.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config overrides: %w", err)
		}
	}
	return cfg, nil
}

// RunScenario executes all steps in order and stops at the first
// failure. store may be nil.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, store *storage.Store) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		logger.Log.Infow("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "name", name)

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		res, runErr := exp.Run(ctx)
		out := StepResult{Name: name, Config: cfg, Result: res}
		if store != nil && step.Save && res != nil {
			id, err := store.Save(experiment.Metadata(cfg, step.Preset, res, runErr), res.Data)
			if err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
			out.RunID = id
		}
		results = append(results, out)

		if runErr != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, runErr)
		}
	}

	return results, nil
}

// MonteCarloConfig repeats an experiment with different noise seeds
type MonteCarloConfig struct {
	Base      *config.Config
	NumTrials int
	// Seed offsets the plant and data seeds of trial i by Seed+i.
	Seed   uint64
	Metric string
}

// MonteCarloResult holds one trial
type MonteCarloResult struct {
	TrialID int
	Seed    uint64
	Value   float64
	Err     error
}

// RunMonteCarlo runs the base experiment under NumTrials noise
// realizations. Trial failures are recorded, not returned.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	if mc.NumTrials < 1 {
		return nil, fmt.Errorf("num trials must be positive, got %d", mc.NumTrials)
	}
	results := make([]MonteCarloResult, 0, mc.NumTrials)

	for trial := 0; trial < mc.NumTrials; trial++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		seed := mc.Seed + uint64(trial)
		cfg := mc.Base.Clone()
		cfg.Plant.Seed = seed
		cfg.Data.Seed = seed

		r := MonteCarloResult{TrialID: trial, Seed: seed}
		r.Value, r.Err = runTrial(ctx, cfg, registry, mc.Metric)
		results = append(results, r)

		if (trial+1)%10 == 0 {
			logger.Log.Infow("monte carlo progress", "done", trial+1, "trials", mc.NumTrials)
		}
	}

	return results, nil
}

func runTrial(ctx context.Context, cfg *config.Config, registry *experiment.Registry, metric string) (float64, error) {
	exp, err := experiment.New(cfg, registry)
	if err != nil {
		return 0, err
	}
	if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
		return 0, err
	}
	res, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res.Metrics[metric]
	if !ok {
		return 0, fmt.Errorf("metric %s not recorded", metric)
	}
	return v, nil
}

// MonteCarloStats summarizes successful trials: their count, failures,
// and the mean and standard deviation of the metric.
func MonteCarloStats(results []MonteCarloResult) (ok, failed int, mean, std float64) {
	values := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		values = append(values, r.Value)
	}
	ok = len(values)
	switch ok {
	case 0:
	case 1:
		mean = values[0]
	default:
		mean, std = stat.MeanStdDev(values, nil)
	}
	return
}
