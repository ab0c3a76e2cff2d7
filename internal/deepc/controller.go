// Package deepc implements data-enabled predictive control.
//
// A Controller turns one recorded input/output trajectory into a
// block-Hankel library and, each time it is asked, finds the input
// sequence over the horizon that minimizes a user loss subject to user
// constraints while staying consistent with the recorded behaviour and
// the most recent Tini samples.
//
// The decision vector is [g, vec(u), vec(y), σy, σu], with the slack
// blocks present only when their regularization weight is positive.
// Constraint rows are laid out so that only the bounds of the first
// Tini·(M+P) rows depend on the initial window; the solver's
// factorization is therefore reused across every Solve.
package deepc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/cvx"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/hankel"
	"github.com/san-kum/deepc/internal/logger"
	"github.com/san-kum/deepc/internal/qp"
)

// LossFunc builds the objective from the horizon×M input and horizon×P
// output expressions. It must be pure.
type LossFunc func(u, y cvx.Expr) cvx.Objective

// ConstraintsFunc builds constraints on the same expressions. It must be
// pure.
type ConstraintsFunc func(u, y cvx.Expr) []cvx.Constraint

// Regularization weights. LambdaY and LambdaU also enable the output
// and input slack on the initial-condition rows; zero disables both the
// penalty and the slack.
type Regularization struct {
	LambdaG float64 `yaml:"lambda_g"`
	LambdaY float64 `yaml:"lambda_y"`
	LambdaU float64 `yaml:"lambda_u"`
}

func (r Regularization) Validate() error {
	weights := []struct {
		name string
		v    float64
	}{
		{"lambda_g", r.LambdaG},
		{"lambda_y", r.LambdaY},
		{"lambda_u", r.LambdaU},
	}
	for _, w := range weights {
		if w.v < 0 || math.IsNaN(w.v) || math.IsInf(w.v, 0) {
			return fmt.Errorf("%w: %s must be a finite non-negative weight, got %g", dynamo.ErrMalformedConstraint, w.name, w.v)
		}
	}
	return nil
}

type Option func(*Controller)

// WithSolver replaces the default ADMM backend.
func WithSolver(s qp.Solver) Option {
	return func(c *Controller) { c.solver = s }
}

// WithSettings configures the default ADMM backend. It has no effect
// together with WithSolver.
func WithSettings(s qp.Settings) Option {
	return func(c *Controller) { c.settings = s }
}

// WithClock sets the clock used to time solves.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// Info describes one Solve.
type Info struct {
	Status     qp.Status
	Objective  float64
	SolveTime  time.Duration
	Iterations int

	G      *mat.Dense
	Y      *mat.Dense
	SlackY *mat.Dense
	SlackU *mat.Dense
}

type Controller struct {
	structure *hankel.Structure
	solver    qp.Solver
	settings  qp.Settings
	clock     clock.Clock

	reg   Regularization
	space *cvx.Space
	g     cvx.Variable
	u     cvx.Variable
	y     cvx.Variable
	sy    *cvx.Variable
	su    *cvx.Variable

	prog  *cvx.Program
	built bool
}

// New builds the predictive structure from data. It fails with
// ErrInsufficientData when the trajectory is shorter than tini+horizon.
func New(data dynamo.Data, tini, horizon int, opts ...Option) (*Controller, error) {
	s, err := hankel.Build(data, tini, horizon)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		structure: s,
		settings:  qp.DefaultSettings(),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.solver == nil {
		admm, err := qp.NewADMM(c.settings)
		if err != nil {
			return nil, err
		}
		c.solver = admm
	}

	logger.Log.Debugw("deepc structure built",
		"samples", data.Len(),
		"tini", tini,
		"horizon", horizon,
		"columns", s.Columns(),
	)
	return c, nil
}

func (c *Controller) Structure() *hankel.Structure { return c.structure }
func (c *Controller) Tini() int { return c.structure.Tini }
func (c *Controller) Horizon() int { return c.structure.Horizon }
func (c *Controller) Inputs() int { return c.structure.M }
func (c *Controller) Outputs() int { return c.structure.P }

// Built reports whether BuildProblem has succeeded.
func (c *Controller) Built() bool { return c.built }

// BuildProblem assembles and factors the control program. It may be
// called again to replace the objective, constraints or weights; the
// solver's warm-start state is discarded when it is.
func (c *Controller) BuildProblem(loss LossFunc, constraints ConstraintsFunc, reg Regularization) error {
	if loss == nil {
		return fmt.Errorf("%w: loss callback is required", dynamo.ErrMalformedConstraint)
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	s := c.structure
	tini, h, m, p := s.Tini, s.Horizon, s.M, s.P

	space := cvx.NewSpace()
	g := space.Var("g", s.Columns(), 1)
	u := space.Var("u", h, m)
	y := space.Var("y", h, p)
	var sy, su *cvx.Variable
	if reg.LambdaY > 0 {
		v := space.Var("sigma_y", tini*p, 1)
		sy = &v
	}
	if reg.LambdaU > 0 {
		v := space.Var("sigma_u", tini*m, 1)
		su = &v
	}

	past := g.Expr().MulLeft(s.Up)
	if su != nil {
		past = past.Sub(su.Expr())
	}
	pastY := g.Expr().MulLeft(s.Yp)
	if sy != nil {
		pastY = pastY.Sub(sy.Expr())
	}
	cons := []cvx.Constraint{
		cvx.EqualTo(past, 0),
		cvx.EqualTo(pastY, 0),
		cvx.EqualTo(g.Expr().MulLeft(s.Uf).Sub(u.Expr().Vec()), 0),
		cvx.EqualTo(g.Expr().MulLeft(s.Yf).Sub(y.Expr().Vec()), 0),
	}
	if constraints != nil {
		for i, con := range constraints(u.Expr(), y.Expr()) {
			if err := con.Err(); err != nil {
				return fmt.Errorf("constraint %d: %w", i, classify(err))
			}
			cons = append(cons, con)
		}
	}

	obj := loss(u.Expr(), y.Expr())
	if err := obj.Err(); err != nil {
		return fmt.Errorf("loss: %w", classify(err))
	}
	if reg.LambdaG > 0 {
		obj = obj.Plus(cvx.SumSquares(g.Expr()).Scale(reg.LambdaG))
	}
	if sy != nil {
		obj = obj.Plus(cvx.SumSquares(sy.Expr()).Scale(reg.LambdaY))
	}
	if su != nil {
		obj = obj.Plus(cvx.SumSquares(su.Expr()).Scale(reg.LambdaU))
	}

	prog, err := space.Compile(obj, cons...)
	if err != nil {
		return classify(err)
	}

	problem := &qp.Problem{P: prog.P, Q: prog.Q, A: prog.A, L: prog.L, U: prog.U}
	if err := c.solver.Setup(problem); err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrSolver, err)
	}

	c.reg = reg
	c.space, c.g, c.u, c.y, c.sy, c.su = space, g, u, y, sy, su
	c.prog = prog
	c.built = true

	rows, _ := prog.A.Dims()
	logger.Log.Debugw("deepc problem built",
		"variables", space.Size(),
		"constraints", rows,
		"lambda_g", reg.LambdaG,
		"lambda_y", reg.LambdaY,
		"lambda_u", reg.LambdaU,
	)
	return nil
}

// Solve binds the initial window (Tini×M inputs, Tini×P outputs), solves
// the program and returns the optimal horizon×M input sequence.
func (c *Controller) Solve(ctx context.Context, initial dynamo.Data, warm bool) (*mat.Dense, Info, error) {
	if !c.built {
		return nil, Info{}, fmt.Errorf("%w: solve called before the problem was built", dynamo.ErrInvalidTransition)
	}
	s := c.structure
	if initial.Len() != s.Tini || initial.Inputs() != s.M || initial.Outputs() != s.P {
		return nil, Info{}, fmt.Errorf("%w: initial window is %dx%d/%dx%d, want %dx%d/%dx%d",
			dynamo.ErrDimensionMismatch,
			initial.Len(), initial.Inputs(), initial.Len(), initial.Outputs(),
			s.Tini, s.M, s.Tini, s.P)
	}

	l := append([]float64(nil), c.prog.L...)
	u := append([]float64(nil), c.prog.U...)
	k := 0
	for _, src := range []*mat.Dense{initial.U, initial.Y} {
		r, cols := src.Dims()
		for t := 0; t < r; t++ {
			for j := 0; j < cols; j++ {
				v := src.At(t, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, Info{}, fmt.Errorf("%w: non-finite sample in initial window", dynamo.ErrDimensionMismatch)
				}
				l[k], u[k] = v, v
				k++
			}
		}
	}
	if err := c.solver.UpdateBounds(l, u); err != nil {
		return nil, Info{}, fmt.Errorf("%w: %w", dynamo.ErrSolver, err)
	}

	start := c.clock.Now()
	res, err := c.solver.Solve(ctx, warm)
	info := Info{SolveTime: c.clock.Since(start)}
	if err != nil {
		return nil, info, fmt.Errorf("%w: %w", dynamo.ErrSolver, err)
	}
	info.Status = res.Status
	info.Iterations = res.Iterations

	switch res.Status {
	case qp.Solved:
	case qp.SolvedInaccurate:
		logger.Log.Warnw("deepc solve hit the iteration limit",
			"iterations", res.Iterations,
			"prim_res", res.PrimalResidual,
			"dual_res", res.DualResidual,
		)
	case qp.PrimalInfeasible:
		return nil, info, fmt.Errorf("%w: no input satisfies the constraints and the initial window", dynamo.ErrInfeasible)
	default:
		return nil, info, fmt.Errorf("%w: solver status %s", dynamo.ErrSolver, res.Status)
	}

	info.Objective = res.Objective + c.prog.Const
	info.G = c.g.Value(res.X)
	info.Y = c.y.Value(res.X)
	if c.sy != nil {
		info.SlackY = c.sy.Value(res.X)
	}
	if c.su != nil {
		info.SlackU = c.su.Value(res.X)
	}

	logger.Log.Debugw("deepc solved",
		"status", res.Status.String(),
		"objective", info.Objective,
		"iterations", res.Iterations,
		"elapsed", info.SolveTime,
	)
	return c.u.Value(res.X), info, nil
}

// classify maps modelling errors onto the dynamo taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, cvx.ErrShape):
		return fmt.Errorf("%w: %w", dynamo.ErrDimensionMismatch, err)
	case errors.Is(err, cvx.ErrMalformed), errors.Is(err, cvx.ErrNotConvex):
		return fmt.Errorf("%w: %w", dynamo.ErrMalformedConstraint, err)
	}
	return err
}
