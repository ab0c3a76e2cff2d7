// Package experiment assembles a plant, offline data, a predictive
// controller and a closed loop from a config.Config.
package experiment

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/excitation"
	"github.com/san-kum/deepc/internal/hankel"
	"github.com/san-kum/deepc/internal/logger"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/policy"
	"github.com/san-kum/deepc/internal/sim"
	"github.com/san-kum/deepc/internal/storage"
)

type Experiment struct {
	cfg      *config.Config
	registry *Registry

	system  *plant.System
	opts    []plant.Option
	plant   *plant.Simulator
	offline dynamo.Data
	ctrl    *deepc.Controller
	loop    *sim.Loop
}

func New(cfg *config.Config, registry *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := registry.PlantFromConfig(cfg.Plant)
	if err != nil {
		return nil, err
	}
	mode, err := plant.ParseNoiseMode(cfg.Plant.Noise)
	if err != nil {
		return nil, err
	}

	opts := []plant.Option{plant.WithSeed(cfg.Plant.Seed), plant.WithNoise(mode)}
	if len(cfg.Plant.InitialState) > 0 {
		opts = append(opts, plant.WithInitialState(cfg.Plant.InitialState))
	}
	simulator, err := plant.NewSimulator(sys, opts...)
	if err != nil {
		return nil, err
	}

	return &Experiment{
		cfg:      cfg,
		registry: registry,
		system:   sys,
		opts:     opts,
		plant:    simulator,
	}, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Offline collects the data trajectory: read from data.file when set,
// otherwise a copy of the plant is excited from its initial state with
// noise drawn from the data seed.
func (e *Experiment) Offline() (dynamo.Data, error) {
	dc := e.cfg.Data
	if dc.File != "" {
		data, err := storage.LoadData(dc.File)
		if err != nil {
			return dynamo.Data{}, err
		}
		return head(data, dc.Length)
	}

	_, nu, _ := e.system.Dims()
	signal, err := excitation.New(dc.Excitation, dc.Low, dc.High, dc.Hold, dc.Seed)
	if err != nil {
		return dynamo.Data{}, err
	}
	opts := append(slices.Clone(e.opts), plant.WithSeed(dc.Seed))
	offline, err := plant.NewSimulator(e.system, opts...)
	if err != nil {
		return dynamo.Data{}, err
	}
	return offline.ApplyInput(signal.Generate(dc.Length, nu), dc.NoiseStd)
}

// head keeps the first n samples; n <= 0 keeps everything.
func head(data dynamo.Data, n int) (dynamo.Data, error) {
	if n <= 0 || n >= data.Len() {
		return data, nil
	}
	return dynamo.NewData(
		mat.DenseCopyOf(data.U.Slice(0, n, 0, data.Inputs())),
		mat.DenseCopyOf(data.Y.Slice(0, n, 0, data.Outputs())),
	)
}

// Setup collects offline data, builds the controller and prepares the
// closed loop. The metrics observe every committed sample.
func (e *Experiment) Setup(ms ...sim.Metric) error {
	cc := e.cfg.Controller

	data, err := e.Offline()
	if err != nil {
		return fmt.Errorf("offline data: %w", err)
	}
	e.offline = data

	if cc.CheckExcitation {
		if err := e.checkExcitation(data); err != nil {
			return err
		}
	}

	ctrl, err := deepc.New(data, cc.Tini, cc.Horizon, deepc.WithSettings(e.cfg.Solver))
	if err != nil {
		return err
	}
	if err := ctrl.BuildProblem(Loss(e.cfg.Policy), Constraints(e.cfg.Policy), cc.Regularization); err != nil {
		return err
	}

	loop, err := sim.New(e.plant, ctrl, sim.Config{
		Steps:     e.cfg.Iterations(),
		S:         cc.S,
		NoiseStd:  e.cfg.Experiment.NoiseStd,
		WarmStart: cc.WarmStart,
	})
	if err != nil {
		return err
	}
	for _, m := range ms {
		loop.AddMetric(m)
	}

	e.ctrl = ctrl
	e.loop = loop
	logger.Log.Debugw("experiment ready",
		"plant", e.cfg.Plant.Model, "samples", data.Len(), "columns", ctrl.Structure().Columns())
	return nil
}

func (e *Experiment) checkExcitation(data dynamo.Data) error {
	cc := e.cfg.Controller
	order := cc.Order
	if order == 0 {
		order, _, _ = e.system.Dims()
	}
	structure, err := hankel.Build(data, cc.Tini, cc.Horizon)
	if err != nil {
		return err
	}
	return structure.CheckExcitation(order)
}

// Loop exposes the closed loop for observers; nil before Setup.
func (e *Experiment) Loop() *sim.Loop { return e.loop }

func (e *Experiment) Controller() *deepc.Controller { return e.ctrl }

func (e *Experiment) OfflineData() dynamo.Data { return e.offline }

// Run resets the loop from a zero initial window and runs it to the end
// of the experiment.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.loop == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	if err := e.loop.Reset(nil); err != nil {
		return nil, err
	}
	return e.loop.Run(ctx)
}

// Loss is the tracking loss described by the policy section.
func Loss(pc config.PolicyConfig) deepc.LossFunc {
	return policy.Tracking(pc.Reference, pc.OutputWeight, pc.InputWeight)
}

// Constraints combines the box and rate limits set in the policy
// section; nil when none are set.
func Constraints(pc config.PolicyConfig) deepc.ConstraintsFunc {
	var fns []deepc.ConstraintsFunc
	if len(pc.InputLow) > 0 {
		fns = append(fns, policy.InputBox(pc.InputLow, pc.InputHigh))
	}
	if len(pc.OutputLow) > 0 {
		fns = append(fns, policy.OutputBox(pc.OutputLow, pc.OutputHigh))
	}
	if pc.MaxRate > 0 {
		fns = append(fns, policy.InputRate(pc.MaxRate))
	}
	if len(fns) == 0 {
		return nil
	}
	return policy.Combine(fns...)
}
