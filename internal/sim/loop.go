// Package sim runs the receding-horizon closed loop: solve, apply the
// first S optimal inputs to the plant, slide the initial-condition
// window forward, repeat.
package sim

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/logger"
)

type Loop struct {
	plant     Plant
	ctrl      Controller
	cfg       Config
	metrics   []Metric
	observers []Observer

	state   State
	window  dynamo.Data
	step    int
	records []StepRecord
}

func New(plant Plant, ctrl Controller, cfg Config) (*Loop, error) {
	l := &Loop{
		plant:     plant,
		ctrl:      ctrl,
		cfg:       cfg,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
	if err := l.validateConfig(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) AddMetric(m Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

func (l *Loop) validateConfig() error {
	if l.cfg.Steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", l.cfg.Steps)
	}
	if l.cfg.S < 1 || l.cfg.S > l.ctrl.Horizon() {
		return fmt.Errorf("s must be in [1, %d], got %d", l.ctrl.Horizon(), l.cfg.S)
	}
	if l.cfg.NoiseStd < 0 {
		return fmt.Errorf("%w: got %g", dynamo.ErrInvalidNoise, l.cfg.NoiseStd)
	}
	return nil
}

func (l *Loop) State() State { return l.state }

// Window returns a copy of the current initial-condition window.
func (l *Loop) Window() dynamo.Data { return l.window.Clone() }

// Reset clears the plant history and seeds the initial-condition window,
// with zeros when initial is nil. initial must hold at least Tini
// samples; all of them are recorded as plant history.
func (l *Loop) Reset(initial *dynamo.Data) error {
	if l.state == Stepping {
		return fmt.Errorf("%w: reset while stepping", dynamo.ErrInvalidTransition)
	}
	tini := l.ctrl.Tini()
	if initial == nil {
		zero := dynamo.ZeroData(tini, l.ctrl.Inputs(), l.ctrl.Outputs())
		initial = &zero
	}
	if initial.Inputs() != l.ctrl.Inputs() || initial.Outputs() != l.ctrl.Outputs() {
		return fmt.Errorf("%w: initial window has %d inputs and %d outputs, controller expects %d and %d",
			dynamo.ErrDimensionMismatch, initial.Inputs(), initial.Outputs(), l.ctrl.Inputs(), l.ctrl.Outputs())
	}
	if err := l.plant.Reset(initial); err != nil {
		return err
	}
	window, err := l.plant.LastSamples(tini)
	if err != nil {
		return err
	}

	for _, m := range l.metrics {
		m.Reset()
	}
	l.window = window
	l.step = 0
	l.records = l.records[:0]
	l.state = Ready
	return nil
}

// Step runs one iteration and commits exactly S samples. Any failure
// terminates the loop and is returned as a *dynamo.StepError.
func (l *Loop) Step(ctx context.Context) (*StepRecord, error) {
	if l.state != Ready {
		return nil, fmt.Errorf("%w: step from %s", dynamo.ErrInvalidTransition, l.state)
	}
	l.state = Stepping

	u, info, err := l.ctrl.Solve(ctx, l.window, l.cfg.WarmStart)
	if err != nil {
		return nil, l.fail(err)
	}
	rows, cols := u.Dims()
	if rows < l.cfg.S || cols != l.ctrl.Inputs() {
		return nil, l.fail(fmt.Errorf("%w: controller returned %dx%d inputs, need at least %dx%d",
			dynamo.ErrDimensionMismatch, rows, cols, l.cfg.S, l.ctrl.Inputs()))
	}

	applied, err := l.plant.ApplyInput(mat.DenseCopyOf(u.Slice(0, l.cfg.S, 0, cols)), l.cfg.NoiseStd)
	if err != nil {
		return nil, l.fail(err)
	}
	window, err := l.plant.LastSamples(l.ctrl.Tini())
	if err != nil {
		return nil, l.fail(err)
	}
	l.window = window

	for t := 0; t < applied.Len(); t++ {
		uu, yy := applied.Row(t)
		s := Sample{Step: l.step, U: uu, Y: yy}
		for _, m := range l.metrics {
			m.Observe(s)
		}
	}

	rec := StepRecord{Step: l.step, Applied: applied, Window: window.Clone(), Info: info}
	l.records = append(l.records, rec)
	for _, obs := range l.observers {
		obs.OnStep(&rec)
	}

	l.step++
	if l.step >= l.cfg.Steps {
		l.state = Terminated
	} else {
		l.state = Ready
	}
	return &rec, nil
}

func (l *Loop) fail(err error) error {
	l.state = Terminated
	logger.Log.Warnw("closed loop terminated", "step", l.step, "error", err)
	return &dynamo.StepError{Step: l.step, Wrapped: err}
}

// Run steps until the iteration budget is exhausted, the context is
// done, or a step fails. The partial result is returned with the error.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if l.state != Ready {
		return nil, fmt.Errorf("%w: run from %s", dynamo.ErrInvalidTransition, l.state)
	}

	for l.state == Ready {
		select {
		case <-ctx.Done():
			return l.Result(), l.fail(ctx.Err())
		default:
		}

		if _, err := l.Step(ctx); err != nil {
			return l.Result(), err
		}
	}

	logger.Log.Infow("closed loop finished", "steps", l.step, "samples", l.plant.AllSamples().Len())
	return l.Result(), nil
}

// Result summarizes the iterations completed since the last Reset.
func (l *Loop) Result() *Result {
	res := &Result{
		Data:       l.plant.AllSamples(),
		Steps:      append([]StepRecord(nil), l.records...),
		Metrics:    make(map[string]float64, len(l.metrics)),
		StepsTaken: l.step,
	}
	for _, r := range l.records {
		res.SolveTimes = append(res.SolveTimes, r.Info.SolveTime)
	}
	for _, m := range l.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	return res
}
