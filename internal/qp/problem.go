// Package qp solves convex quadratic programs
//
//	minimize ½xᵀPx + qᵀx  subject to  l ≤ Ax ≤ u
//
// through the [Solver] interface. [ADMM] is the operator-splitting
// implementation: it caches a factorization across solves so that only
// the bounds may change between calls, and it keeps its iterate for
// warm starting.
package qp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidProblem  = errors.New("qp: invalid problem")
	ErrInvalidSettings = errors.New("qp: invalid settings")
	ErrNotSetup        = errors.New("qp: solver not set up")
)

// Infinity is the magnitude beyond which a bound is treated as absent.
const Infinity = 1e20

type Problem struct {
	P    *mat.SymDense
	Q    []float64
	A    *mat.Dense
	L, U []float64
}

// Dims returns the number of variables and constraint rows.
func (p *Problem) Dims() (n, m int) {
	if p.A == nil {
		return len(p.Q), 0
	}
	m, n = p.A.Dims()
	return n, m
}

func (p *Problem) Validate() error {
	if p.P == nil || p.A == nil {
		return fmt.Errorf("%w: P and A are required", ErrInvalidProblem)
	}
	n, m := p.Dims()
	if p.P.SymmetricDim() != n {
		return fmt.Errorf("%w: P is %dx%d, A has %d columns", ErrInvalidProblem, p.P.SymmetricDim(), p.P.SymmetricDim(), n)
	}
	if len(p.Q) != n {
		return fmt.Errorf("%w: q has %d entries, want %d", ErrInvalidProblem, len(p.Q), n)
	}
	return validateBounds(p.L, p.U, m)
}

func validateBounds(l, u []float64, m int) error {
	if len(l) != m || len(u) != m {
		return fmt.Errorf("%w: bounds have %d and %d entries, A has %d rows", ErrInvalidProblem, len(l), len(u), m)
	}
	for i := range l {
		if math.IsNaN(l[i]) || math.IsNaN(u[i]) {
			return fmt.Errorf("%w: NaN bound in row %d", ErrInvalidProblem, i)
		}
		if l[i] > u[i] {
			return fmt.Errorf("%w: row %d has l=%g > u=%g", ErrInvalidProblem, i, l[i], u[i])
		}
	}
	return nil
}

type Settings struct {
	Rho   float64 `yaml:"rho"`
	Sigma float64 `yaml:"sigma"`
	Alpha float64 `yaml:"alpha"`

	EpsAbs     float64 `yaml:"eps_abs"`
	EpsRel     float64 `yaml:"eps_rel"`
	EpsPrimInf float64 `yaml:"eps_prim_inf"`
	EpsDualInf float64 `yaml:"eps_dual_inf"`

	MaxIter       int `yaml:"max_iter"`
	CheckInterval int `yaml:"check_interval"`

	AdaptiveRho          bool    `yaml:"adaptive_rho"`
	AdaptiveRhoTolerance float64 `yaml:"adaptive_rho_tolerance"`
}

func DefaultSettings() Settings {
	return Settings{
		Rho:                  0.1,
		Sigma:                1e-6,
		Alpha:                1.6,
		EpsAbs:               1e-5,
		EpsRel:               1e-5,
		EpsPrimInf:           1e-6,
		EpsDualInf:           1e-6,
		MaxIter:              20000,
		CheckInterval:        25,
		AdaptiveRho:          true,
		AdaptiveRhoTolerance: 5,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.Rho <= 0:
		return fmt.Errorf("%w: rho must be positive, got %g", ErrInvalidSettings, s.Rho)
	case s.Sigma <= 0:
		return fmt.Errorf("%w: sigma must be positive, got %g", ErrInvalidSettings, s.Sigma)
	case s.Alpha <= 0 || s.Alpha >= 2:
		return fmt.Errorf("%w: alpha must be in (0, 2), got %g", ErrInvalidSettings, s.Alpha)
	case s.EpsAbs < 0 || s.EpsRel < 0 || s.EpsAbs+s.EpsRel == 0:
		return fmt.Errorf("%w: tolerances must be non-negative and not both zero", ErrInvalidSettings)
	case s.EpsPrimInf <= 0 || s.EpsDualInf <= 0:
		return fmt.Errorf("%w: infeasibility tolerances must be positive", ErrInvalidSettings)
	case s.MaxIter < 1:
		return fmt.Errorf("%w: max_iter must be at least 1, got %d", ErrInvalidSettings, s.MaxIter)
	case s.CheckInterval < 1:
		return fmt.Errorf("%w: check_interval must be at least 1, got %d", ErrInvalidSettings, s.CheckInterval)
	case s.AdaptiveRho && s.AdaptiveRhoTolerance < 1:
		return fmt.Errorf("%w: adaptive_rho_tolerance must be at least 1", ErrInvalidSettings)
	}
	return nil
}

type Status int

const (
	Unsolved Status = iota
	Solved
	SolvedInaccurate
	PrimalInfeasible
	DualInfeasible
	NumericalError
)

func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Solved:
		return "solved"
	case SolvedInaccurate:
		return "solved_inaccurate"
	case PrimalInfeasible:
		return "primal_infeasible"
	case DualInfeasible:
		return "dual_infeasible"
	case NumericalError:
		return "numerical_error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Result struct {
	X []float64
	Y []float64

	Status     Status
	Iterations int
	Objective  float64

	PrimalResidual float64
	DualResidual   float64
	Rho            float64
}

// Solver is a QP backend whose matrices are fixed at Setup; only the
// bounds change between solves.
type Solver interface {
	Setup(p *Problem) error
	UpdateBounds(l, u []float64) error
	Solve(ctx context.Context, warm bool) (*Result, error)
}
