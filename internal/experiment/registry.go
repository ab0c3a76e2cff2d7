package experiment

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/metrics"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/sim"
)

type Registry struct {
	plants map[string]func() *plant.System
}

func NewRegistry() *Registry {
	r := &Registry{
		plants: make(map[string]func() *plant.System),
	}

	r.plants["fourtank"] = plant.FourTank
	r.plants["scalar"] = plant.Scalar
	r.plants["double-integrator"] = plant.DoubleIntegrator

	return r
}

// Register adds or replaces a named plant model.
func (r *Registry) Register(name string, build func() *plant.System) {
	r.plants[name] = build
}

func (r *Registry) GetPlant(name string) (*plant.System, error) {
	fn, ok := r.plants[name]
	if !ok {
		return nil, fmt.Errorf("unknown plant: %s", name)
	}
	return fn(), nil
}

// PlantFromConfig resolves a named model, or builds the explicit
// matrices of the custom model.
func (r *Registry) PlantFromConfig(cfg config.PlantConfig) (*plant.System, error) {
	if cfg.Model != config.CustomModel {
		return r.GetPlant(cfg.Model)
	}
	a, err := matrix("a", cfg.A)
	if err != nil {
		return nil, err
	}
	b, err := matrix("b", cfg.B)
	if err != nil {
		return nil, err
	}
	c, err := matrix("c", cfg.C)
	if err != nil {
		return nil, err
	}
	var d *mat.Dense
	if len(cfg.D) > 0 {
		if d, err = matrix("d", cfg.D); err != nil {
			return nil, err
		}
	}
	return plant.NewSystem(a, b, c, d, cfg.Dt)
}

func matrix(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("plant.%s is empty", name)
	}
	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("plant.%s row %d has %d entries, want %d", name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}

func (r *Registry) ListPlants() []string {
	names := make([]string, 0, len(r.plants))
	for name := range r.plants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh metrics for a run of cfg: control effort,
// tracking error and, when output bounds are set, the fraction of
// samples inside them.
func (r *Registry) DefaultMetrics(cfg *config.Config) []sim.Metric {
	ms := []sim.Metric{
		metrics.NewControlEffort(),
		metrics.NewTracking(cfg.Policy.Reference),
	}
	if len(cfg.Policy.OutputLow) > 0 {
		lo := slices.Min(cfg.Policy.OutputLow)
		hi := slices.Max(cfg.Policy.OutputHigh)
		if !math.IsNaN(lo) && !math.IsNaN(hi) {
			ms = append(ms, metrics.NewBounds(lo, hi))
		}
	}
	return ms
}
