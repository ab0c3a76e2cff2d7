package config

import (
	"fmt"
	"math"
	"os"
	"slices"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/excitation"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/qp"
)

const (
	DefaultModel      = "fourtank"
	DefaultLength     = 100
	DefaultTini       = 4
	DefaultHorizon    = 20
	DefaultS          = 1
	DefaultSteps      = 100
	DefaultReference  = 0.5
	DefaultInputWidth = 1.0
	DefaultRidge      = 0.01
	DefaultSeed       = 1
	DefaultKp         = 0.2
	DefaultKi         = 0.05
)

// CustomModel selects the explicit matrices of PlantConfig.
const CustomModel = "custom"

type Config struct {
	Plant      PlantConfig      `yaml:"plant"`
	Data       DataConfig       `yaml:"data"`
	Controller ControllerConfig `yaml:"controller"`
	Policy     PolicyConfig     `yaml:"policy"`
	Solver     qp.Settings      `yaml:"solver"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Baseline   BaselineConfig   `yaml:"baseline"`
}

type PlantConfig struct {
	Model string `yaml:"model"`
	// A, B, C, D and Dt are read only for the custom model. D may be
	// omitted.
	A            [][]float64 `yaml:"a,omitempty"`
	B            [][]float64 `yaml:"b,omitempty"`
	C            [][]float64 `yaml:"c,omitempty"`
	D            [][]float64 `yaml:"d,omitempty"`
	Dt           float64     `yaml:"dt,omitempty"`
	InitialState []float64   `yaml:"initial_state,omitempty"`
	Noise        string      `yaml:"noise"`
	Seed         uint64      `yaml:"seed"`
}

type DataConfig struct {
	// Length is T, the number of offline samples.
	Length int `yaml:"length"`
	// Lengths lists the T values tried by a sweep.
	Lengths    []int   `yaml:"lengths,omitempty"`
	Excitation string  `yaml:"excitation"`
	Low        float64 `yaml:"low"`
	High       float64 `yaml:"high"`
	Hold       int     `yaml:"hold,omitempty"`
	Seed       uint64  `yaml:"seed"`
	NoiseStd   float64 `yaml:"noise_std"`
	// File loads offline data from CSV instead of exciting the plant.
	File string `yaml:"file,omitempty"`
}

type ControllerConfig struct {
	Tini    int `yaml:"tini"`
	Horizon int `yaml:"horizon"`
	S       int `yaml:"s"`

	deepc.Regularization `yaml:",inline"`

	WarmStart       bool `yaml:"warm_start"`
	CheckExcitation bool `yaml:"check_excitation"`
	// Order is the system order used by the excitation check; zero
	// takes it from the plant model.
	Order int `yaml:"order,omitempty"`
}

type PolicyConfig struct {
	Reference    []float64 `yaml:"reference"`
	OutputWeight float64   `yaml:"output_weight"`
	InputWeight  float64   `yaml:"input_weight"`
	InputLow     []float64 `yaml:"input_low,omitempty"`
	InputHigh    []float64 `yaml:"input_high,omitempty"`
	OutputLow    []float64 `yaml:"output_low,omitempty"`
	OutputHigh   []float64 `yaml:"output_high,omitempty"`
	// MaxRate bounds |u[t+1]-u[t]|; zero disables it.
	MaxRate float64 `yaml:"max_rate,omitempty"`
}

type ExperimentConfig struct {
	// Steps is the experiment length in plant samples. The loop runs
	// Steps/S iterations.
	Steps    int     `yaml:"steps"`
	NoiseStd float64 `yaml:"noise_std"`
}

// BaselineConfig selects the non-predictive controller used for
// comparison: "pid" or "none".
type BaselineConfig struct {
	Kind string  `yaml:"kind"`
	Kp   float64 `yaml:"kp"`
	Ki   float64 `yaml:"ki"`
	Kd   float64 `yaml:"kd"`
}

func DefaultConfig() *Config {
	return &Config{
		Plant: PlantConfig{
			Model: DefaultModel,
			Noise: plant.NoiseMeasurement.String(),
			Seed:  DefaultSeed,
		},
		Data: DataConfig{
			Length:     DefaultLength,
			Excitation: "uniform",
			Low:        -DefaultInputWidth,
			High:       DefaultInputWidth,
			Seed:       DefaultSeed,
		},
		Controller: ControllerConfig{
			Tini:      DefaultTini,
			Horizon:   DefaultHorizon,
			S:         DefaultS,
			WarmStart: true,
		},
		Policy: PolicyConfig{
			Reference:    []float64{DefaultReference},
			OutputWeight: 1,
			InputWeight:  DefaultRidge,
			InputLow:     []float64{-DefaultInputWidth},
			InputHigh:    []float64{DefaultInputWidth},
		},
		Solver: qp.DefaultSettings(),
		Experiment: ExperimentConfig{
			Steps: DefaultSteps,
		},
		Baseline: BaselineConfig{
			Kind: "pid",
			Kp:   DefaultKp,
			Ki:   DefaultKi,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Iterations is the number of closed-loop solves.
func (c *Config) Iterations() int {
	if c.Controller.S < 1 {
		return 0
	}
	return c.Experiment.Steps / c.Controller.S
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Plant.A = cloneRows(c.Plant.A)
	out.Plant.B = cloneRows(c.Plant.B)
	out.Plant.C = cloneRows(c.Plant.C)
	out.Plant.D = cloneRows(c.Plant.D)
	out.Plant.InitialState = slices.Clone(c.Plant.InitialState)
	out.Data.Lengths = slices.Clone(c.Data.Lengths)
	out.Policy.Reference = slices.Clone(c.Policy.Reference)
	out.Policy.InputLow = slices.Clone(c.Policy.InputLow)
	out.Policy.InputHigh = slices.Clone(c.Policy.InputHigh)
	out.Policy.OutputLow = slices.Clone(c.Policy.OutputLow)
	out.Policy.OutputHigh = slices.Clone(c.Policy.OutputHigh)
	return &out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(c.Plant.Model != "", "plant.model is required")
	if c.Plant.Model == CustomModel {
		check(len(c.Plant.A) > 0 && len(c.Plant.B) > 0 && len(c.Plant.C) > 0,
			"plant: custom model needs a, b and c")
	}
	if _, perr := plant.ParseNoiseMode(c.Plant.Noise); perr != nil {
		err = multierr.Append(err, fmt.Errorf("plant.noise: %w", perr))
	}

	if c.Data.File == "" {
		check(c.Data.Length > 0, "data.length must be positive, got %d", c.Data.Length)
		check(slices.Contains(excitation.Kinds(), c.Data.Excitation) || c.Data.Excitation == "",
			"data.excitation %q is not one of %v", c.Data.Excitation, excitation.Kinds())
	}
	for _, T := range c.Data.Lengths {
		check(T > 0, "data.lengths must be positive, got %d", T)
	}
	check(c.Data.NoiseStd >= 0, "data.noise_std must be non-negative, got %g", c.Data.NoiseStd)

	check(c.Controller.Tini >= 1, "controller.tini must be at least 1, got %d", c.Controller.Tini)
	check(c.Controller.Horizon >= 1, "controller.horizon must be at least 1, got %d", c.Controller.Horizon)
	check(c.Controller.S >= 1 && c.Controller.S <= c.Controller.Horizon,
		"controller.s must be in [1, horizon], got %d", c.Controller.S)
	if rerr := c.Controller.Regularization.Validate(); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("controller: %w", rerr))
	}

	check(len(c.Policy.Reference) > 0, "policy.reference is required")
	check(c.Policy.OutputWeight >= 0 && c.Policy.InputWeight >= 0, "policy weights must be non-negative")
	check(len(c.Policy.InputLow) == len(c.Policy.InputHigh), "policy.input_low and input_high differ in length")
	check(len(c.Policy.OutputLow) == len(c.Policy.OutputHigh), "policy.output_low and output_high differ in length")
	check(c.Policy.MaxRate >= 0 && !math.IsNaN(c.Policy.MaxRate), "policy.max_rate must be non-negative")

	if serr := c.Solver.Validate(); serr != nil {
		err = multierr.Append(err, fmt.Errorf("solver: %w", serr))
	}

	check(c.Experiment.Steps >= c.Controller.S, "experiment.steps must cover at least one iteration, got %d", c.Experiment.Steps)
	check(c.Baseline.Kind == "" || c.Baseline.Kind == "pid" || c.Baseline.Kind == "none",
		"baseline.kind must be pid or none, got %q", c.Baseline.Kind)
	check(c.Experiment.NoiseStd >= 0, "experiment.noise_std must be non-negative, got %g", c.Experiment.NoiseStd)
	return err
}
