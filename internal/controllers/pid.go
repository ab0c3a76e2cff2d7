package controllers

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/qp"
)

// PID is a decentralized discrete PID baseline: input channel i is
// driven by the error of output channel i. It plans a single step, so
// it runs with a one-sample window and s = 1.
type PID struct {
	Kp, Ki, Kd float64
	Target     []float64
	// Dt is the sample period used by the integral and derivative terms.
	Dt float64
	// Low and High clamp the input when set; the integral stops
	// accumulating while the input is saturated.
	Low, High []float64

	channels int
	integral []float64
	prevErr  []float64
	first    bool
}

func NewPID(kp, ki, kd float64, target []float64, channels int, dt float64) (*PID, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: pid needs at least one channel", dynamo.ErrDimensionMismatch)
	}
	if len(target) != 1 && len(target) != channels {
		return nil, fmt.Errorf("%w: %d targets for %d channels", dynamo.ErrDimensionMismatch, len(target), channels)
	}
	if dt <= 0 {
		dt = 1
	}
	p := &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Target:   target,
		Dt:       dt,
		channels: channels,
	}
	p.Reset()
	return p, nil
}

func (p *PID) Reset() {
	p.integral = make([]float64, p.channels)
	p.prevErr = make([]float64, p.channels)
	p.first = true
}

func (p *PID) Tini() int { return 1 }
func (p *PID) Horizon() int { return 1 }
func (p *PID) Inputs() int { return p.channels }
func (p *PID) Outputs() int { return p.channels }

func (p *PID) Solve(_ context.Context, initial dynamo.Data, _ bool) (*mat.Dense, deepc.Info, error) {
	if initial.Len() < 1 || initial.Outputs() != p.channels {
		return nil, deepc.Info{}, fmt.Errorf("%w: pid needs the latest %d outputs", dynamo.ErrDimensionMismatch, p.channels)
	}
	_, y := initial.Row(initial.Len() - 1)

	u := mat.NewDense(1, p.channels, nil)
	for i := 0; i < p.channels; i++ {
		e := p.target(i) - y[i]

		derivative := 0.0
		if !p.first {
			derivative = (e - p.prevErr[i]) / p.Dt
		}
		integral := p.integral[i] + e*p.Dt

		v := p.Kp*e + p.Ki*integral + p.Kd*derivative
		clamped := p.clamp(i, v)
		if clamped == v {
			p.integral[i] = integral
		}
		p.prevErr[i] = e
		u.Set(0, i, clamped)
	}
	p.first = false

	return u, deepc.Info{Status: qp.Solved}, nil
}

func (p *PID) target(i int) float64 {
	if len(p.Target) == 1 {
		return p.Target[0]
	}
	return p.Target[i]
}

func (p *PID) clamp(i int, v float64) float64 {
	pick := func(bounds []float64) (float64, bool) {
		switch {
		case len(bounds) == 0:
			return 0, false
		case len(bounds) == 1:
			return bounds[0], true
		case i < len(bounds):
			return bounds[i], true
		}
		return 0, false
	}
	if lo, ok := pick(p.Low); ok {
		v = math.Max(v, lo)
	}
	if hi, ok := pick(p.High); ok {
		v = math.Min(v, hi)
	}
	return v
}
