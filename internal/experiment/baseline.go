package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/deepc/internal/controllers"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/sim"
)

// Baseline builds the comparison controller named by the baseline
// section. The PID shares the policy reference and input bounds.
func (e *Experiment) Baseline() (sim.Controller, error) {
	_, nu, ny := e.system.Dims()
	bc := e.cfg.Baseline

	switch bc.Kind {
	case "none":
		return controllers.NewNone(nu, ny), nil
	case "", "pid":
		if nu != ny {
			return nil, fmt.Errorf("pid baseline needs as many inputs as outputs, plant has %d and %d", nu, ny)
		}
		pid, err := controllers.NewPID(bc.Kp, bc.Ki, bc.Kd, e.cfg.Policy.Reference, nu, 1)
		if err != nil {
			return nil, err
		}
		pid.Low = e.cfg.Policy.InputLow
		pid.High = e.cfg.Policy.InputHigh
		return pid, nil
	}
	return nil, fmt.Errorf("unknown baseline: %s", bc.Kind)
}

// RunBaseline drives a fresh copy of the plant with the baseline
// controller for the experiment length, one input per step.
func (e *Experiment) RunBaseline(ctx context.Context, ms ...sim.Metric) (*sim.Result, error) {
	ctrl, err := e.Baseline()
	if err != nil {
		return nil, err
	}
	p, err := plant.NewSimulator(e.system, e.opts...)
	if err != nil {
		return nil, err
	}
	loop, err := sim.New(p, ctrl, sim.Config{
		Steps:    e.cfg.Experiment.Steps,
		S:        1,
		NoiseStd: e.cfg.Experiment.NoiseStd,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		loop.AddMetric(m)
	}
	if err := loop.Reset(nil); err != nil {
		return nil, err
	}
	return loop.Run(ctx)
}
