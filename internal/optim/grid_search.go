// Package optim tunes controller parameters by exhaustive search.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/experiment"
	"github.com/san-kum/deepc/internal/logger"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Trial is one evaluated grid point. Err is set when the experiment
// could not be built or failed before finishing.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search evaluates every grid point and returns the parameters with the
// lowest value of metricName along with all trials in grid order.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Trial, error) {

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, map[string]float64{}, func(params map[string]float64) {
		trial := evaluate(ctx, params, buildExperiment, metricName)
		trials = append(trials, trial)
		if trial.Err == nil && trial.Value < best {
			best = trial.Value
			bestParams = params
		}
	})
	if err != nil {
		return nil, 0, trials, err
	}
	if bestParams == nil {
		return nil, 0, trials, fmt.Errorf("no grid point produced %s", metricName)
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	visit func(map[string]float64),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		visit(current)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, visit); err != nil {
			return err
		}
	}
	return nil
}

func evaluate(
	ctx context.Context,
	params map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
) Trial {
	trial := Trial{Params: params, Value: math.NaN()}

	exp, err := buildExperiment(params)
	if err != nil {
		trial.Err = err
		return trial
	}
	result, err := exp.Run(ctx)
	if err != nil {
		trial.Err = err
		return trial
	}
	val, ok := result.Metrics[metricName]
	if !ok {
		trial.Err = fmt.Errorf("metric %s not recorded", metricName)
		return trial
	}
	trial.Value = val
	logger.Log.Debugw("grid point", "params", params, metricName, val)
	return trial
}

// Tunable lists the parameter names understood by Apply.
func Tunable() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var setters = map[string]func(*config.Config, float64){
	"lambda_g":      func(c *config.Config, v float64) { c.Controller.LambdaG = v },
	"lambda_y":      func(c *config.Config, v float64) { c.Controller.LambdaY = v },
	"lambda_u":      func(c *config.Config, v float64) { c.Controller.LambdaU = v },
	"input_weight":  func(c *config.Config, v float64) { c.Policy.InputWeight = v },
	"output_weight": func(c *config.Config, v float64) { c.Policy.OutputWeight = v },
	"tini":          func(c *config.Config, v float64) { c.Controller.Tini = int(v) },
	"horizon":       func(c *config.Config, v float64) { c.Controller.Horizon = int(v) },
	"length":        func(c *config.Config, v float64) { c.Data.Length = int(v) },
}

// Apply returns a copy of base with params set.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		set, ok := setters[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %s, want one of %v", name, Tunable())
		}
		set(cfg, v)
	}
	return cfg, nil
}

// ExperimentBuilder builds and sets up an experiment for each grid point
// from base.
func ExperimentBuilder(base *config.Config, registry *experiment.Registry) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return nil, err
		}
		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return nil, err
		}
		if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
			return nil, err
		}
		return exp, nil
	}
}
