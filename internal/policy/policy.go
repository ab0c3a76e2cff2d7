// Package policy provides ready-made loss and constraint callbacks for
// the predictive controller.
package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/cvx"
	"github.com/san-kum/deepc/internal/deepc"
)

// Tracking penalizes outputWeight·‖y − ref‖²_F + inputWeight·‖u‖²_F. ref
// holds one setpoint per output channel, held over the whole horizon; a
// single value applies to every channel.
func Tracking(ref []float64, outputWeight, inputWeight float64) deepc.LossFunc {
	return func(u, y cvx.Expr) cvx.Objective {
		h, p := y.Dims()
		r, err := perChannel(ref, p)
		if err != nil {
			return cvx.InvalidObjective(fmt.Errorf("%w: reference: %v", cvx.ErrShape, err))
		}
		target := mat.NewDense(h, p, nil)
		for t := 0; t < h; t++ {
			target.SetRow(t, r)
		}
		obj := cvx.SumSquares(y.SubMatrix(target)).Scale(outputWeight)
		if inputWeight != 0 {
			obj = obj.Plus(cvx.SumSquares(u).Scale(inputWeight))
		}
		return obj
	}
}

// TrackingTrajectory is Tracking against a horizon×P reference.
func TrackingTrajectory(ref *mat.Dense, outputWeight, inputWeight float64) deepc.LossFunc {
	return func(u, y cvx.Expr) cvx.Objective {
		obj := cvx.SumSquares(y.SubMatrix(ref)).Scale(outputWeight)
		if inputWeight != 0 {
			obj = obj.Plus(cvx.SumSquares(u).Scale(inputWeight))
		}
		return obj
	}
}

// InputBox bounds each input channel: lo[m] ≤ u[:, m] ≤ hi[m]. Single
// values apply to every channel.
func InputBox(lo, hi []float64) deepc.ConstraintsFunc {
	return func(u, _ cvx.Expr) []cvx.Constraint {
		return box(u, lo, hi)
	}
}

// OutputBox bounds each output channel like InputBox.
func OutputBox(lo, hi []float64) deepc.ConstraintsFunc {
	return func(_, y cvx.Expr) []cvx.Constraint {
		return box(y, lo, hi)
	}
}

// InputRate limits |u[t+1, m] − u[t, m]| to maxDelta. A one-step horizon
// has nothing to limit.
func InputRate(maxDelta float64) deepc.ConstraintsFunc {
	return func(u, _ cvx.Expr) []cvx.Constraint {
		if h, _ := u.Dims(); h < 2 {
			return nil
		}
		return []cvx.Constraint{cvx.Between(u.Diff(), -maxDelta, maxDelta)}
	}
}

// Combine concatenates the constraints of every callback. nil entries
// are skipped.
func Combine(fns ...deepc.ConstraintsFunc) deepc.ConstraintsFunc {
	return func(u, y cvx.Expr) []cvx.Constraint {
		var out []cvx.Constraint
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			out = append(out, fn(u, y)...)
		}
		return out
	}
}

func box(x cvx.Expr, lo, hi []float64) []cvx.Constraint {
	_, n := x.Dims()
	l, err := perChannel(lo, n)
	if err != nil {
		return []cvx.Constraint{cvx.InvalidConstraint(fmt.Errorf("%w: lower bound: %v", cvx.ErrShape, err))}
	}
	u, err := perChannel(hi, n)
	if err != nil {
		return []cvx.Constraint{cvx.InvalidConstraint(fmt.Errorf("%w: upper bound: %v", cvx.ErrShape, err))}
	}
	out := make([]cvx.Constraint, 0, n)
	for c := 0; c < n; c++ {
		out = append(out, cvx.Between(x.Col(c), l[c], u[c]))
	}
	return out
}

func perChannel(v []float64, n int) ([]float64, error) {
	switch len(v) {
	case n:
		return v, nil
	case 1:
		out := make([]float64, n)
		for i := range out {
			out[i] = v[0]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%d values for %d channels", len(v), n)
}
