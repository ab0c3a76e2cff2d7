package qp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/logger"
)

const (
	rhoMin      = 1e-6
	rhoMax      = 1e6
	rhoEqScale  = 1e3
	equalityTol = 1e-4
	divisionTol = 1e-30
)

// ADMM is the OSQP operator-splitting method on a dense Cholesky
// factorization of P + σI + AᵀRA, where R holds one step size per row.
type ADMM struct {
	settings Settings

	p    *mat.SymDense
	a    *mat.Dense
	q    []float64
	l, u []float64
	n, m int

	rhoBar float64
	rho    []float64
	chol   mat.Cholesky
	stale  bool

	x, z, y []float64
	primed  bool
}

func NewADMM(settings Settings) (*ADMM, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &ADMM{settings: settings}, nil
}

func (s *ADMM) Settings() Settings { return s.settings }

// Setup copies the problem data and factors the KKT matrix. Any previous
// iterate is discarded.
func (s *ADMM) Setup(p *Problem) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.n, s.m = p.Dims()
	s.p = mat.NewSymDense(s.n, nil)
	s.p.CopySym(p.P)
	s.a = mat.DenseCopyOf(p.A)
	s.q = append([]float64(nil), p.Q...)
	s.l = append([]float64(nil), p.L...)
	s.u = append([]float64(nil), p.U...)

	s.x = make([]float64, s.n)
	s.z = make([]float64, s.m)
	s.y = make([]float64, s.m)
	s.primed = false

	s.rhoBar = s.settings.Rho
	s.rho = make([]float64, s.m)
	return s.refactor()
}

// UpdateBounds replaces l and u, keeping the factorization unless a row
// switches between equality and inequality.
func (s *ADMM) UpdateBounds(l, u []float64) error {
	if s.a == nil {
		return ErrNotSetup
	}
	if err := validateBounds(l, u, s.m); err != nil {
		return err
	}
	for i := range l {
		if isEquality(l[i], u[i]) != isEquality(s.l[i], s.u[i]) || isFree(l[i], u[i]) != isFree(s.l[i], s.u[i]) {
			s.stale = true
		}
	}
	copy(s.l, l)
	copy(s.u, u)
	return nil
}

func isEquality(l, u float64) bool { return u-l < equalityTol }

func isFree(l, u float64) bool { return l <= -Infinity && u >= Infinity }

func (s *ADMM) setRho(rhoBar float64) {
	s.rhoBar = rhoBar
	for i := range s.rho {
		switch {
		case isFree(s.l[i], s.u[i]):
			s.rho[i] = rhoMin
		case isEquality(s.l[i], s.u[i]):
			s.rho[i] = rhoEqScale * rhoBar
		default:
			s.rho[i] = rhoBar
		}
	}
}

// refactor rebuilds K = P + σI + Aᵀ diag(ρ) A and its Cholesky factor.
func (s *ADMM) refactor() error {
	s.setRho(s.rhoBar)

	ra := mat.DenseCopyOf(s.a)
	for i := 0; i < s.m; i++ {
		row := ra.RawRowView(i)
		floats.Scale(s.rho[i], row)
	}
	var atra mat.Dense
	atra.Mul(s.a.T(), ra)

	k := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		for j := i; j < s.n; j++ {
			v := s.p.At(i, j) + 0.5*(atra.At(i, j)+atra.At(j, i))
			if i == j {
				v += s.settings.Sigma
			}
			k.SetSym(i, j, v)
		}
	}
	if ok := s.chol.Factorize(k); !ok {
		return fmt.Errorf("qp: KKT matrix is not positive definite")
	}
	s.stale = false
	logger.Log.Debugw("admm factorized", "n", s.n, "m", s.m, "rho", s.rhoBar)
	return nil
}

// Solve runs ADMM from the stored iterate when warm is set and a
// previous solve exists, otherwise from zero with the initial step size.
// Infeasibility and iteration limits are reported through Result.Status;
// an error is returned only for misuse or cancellation.
func (s *ADMM) Solve(ctx context.Context, warm bool) (*Result, error) {
	if s.a == nil {
		return nil, ErrNotSetup
	}

	if !warm || !s.primed {
		clear(s.x)
		clear(s.z)
		clear(s.y)
		if s.rhoBar != s.settings.Rho {
			s.rhoBar = s.settings.Rho
			s.stale = true
		}
	}
	if s.stale {
		if err := s.refactor(); err != nil {
			return &Result{Status: NumericalError}, nil
		}
	}

	n, m := s.n, s.m
	alpha, sigma := s.settings.Alpha, s.settings.Sigma

	xTilde := make([]float64, n)
	zTilde := make([]float64, m)
	xPrev := make([]float64, n)
	zPrev := make([]float64, m)
	yPrev := make([]float64, m)
	rhs := make([]float64, n)
	tmpM := make([]float64, m)

	rhsVec := mat.NewVecDense(n, rhs)
	xTildeVec := mat.NewVecDense(n, xTilde)
	zTildeVec := mat.NewVecDense(m, zTilde)
	tmpVec := mat.NewVecDense(m, tmpM)

	res := &Result{Status: Unsolved}
	iter := 0
	for iter < s.settings.MaxIter {
		iter++
		copy(xPrev, s.x)
		copy(zPrev, s.z)
		copy(yPrev, s.y)

		// rhs = σx − q + Aᵀ(ρ∘z − y)
		for i := 0; i < m; i++ {
			tmpM[i] = s.rho[i]*s.z[i] - s.y[i]
		}
		rhsVec.MulVec(s.a.T(), tmpVec)
		for j := 0; j < n; j++ {
			rhs[j] += sigma*s.x[j] - s.q[j]
		}
		if err := s.chol.SolveVecTo(xTildeVec, rhsVec); err != nil {
			res.Status = NumericalError
			break
		}
		zTildeVec.MulVec(s.a, xTildeVec)

		for j := 0; j < n; j++ {
			s.x[j] = alpha*xTilde[j] + (1-alpha)*xPrev[j]
		}
		for i := 0; i < m; i++ {
			zRelax := alpha*zTilde[i] + (1-alpha)*zPrev[i]
			zi := zRelax + s.y[i]/s.rho[i]
			zi = math.Min(math.Max(zi, s.l[i]), s.u[i])
			s.y[i] += s.rho[i] * (zRelax - zi)
			s.z[i] = zi
		}

		if hasNaN(s.x) || hasNaN(s.y) {
			res.Status = NumericalError
			break
		}

		if iter%s.settings.CheckInterval != 0 && iter != s.settings.MaxIter {
			continue
		}

		if err := ctx.Err(); err != nil {
			s.primed = false
			return nil, fmt.Errorf("qp: interrupted after %d iterations: %w", iter, err)
		}

		conv := s.residuals()
		res.PrimalResidual, res.DualResidual = conv.rPrim, conv.rDual
		if conv.rPrim <= conv.epsPrim && conv.rDual <= conv.epsDual {
			res.Status = Solved
			break
		}

		dy := make([]float64, m)
		floats.SubTo(dy, s.y, yPrev)
		if s.primalInfeasible(dy) {
			res.Status = PrimalInfeasible
			break
		}
		dx := make([]float64, n)
		floats.SubTo(dx, s.x, xPrev)
		if s.dualInfeasible(dx) {
			res.Status = DualInfeasible
			break
		}

		if s.settings.AdaptiveRho && iter != s.settings.MaxIter {
			s.adaptRho(conv)
			if s.stale {
				res.Status = NumericalError
				break
			}
		}
	}

	if res.Status == Unsolved {
		res.Status = SolvedInaccurate
	}
	res.Iterations = iter
	res.Rho = s.rhoBar
	res.X = append([]float64(nil), s.x...)
	res.Y = append([]float64(nil), s.y...)
	res.Objective = s.objective()

	s.primed = res.Status == Solved || res.Status == SolvedInaccurate
	logger.Log.Debugw("admm finished",
		"status", res.Status.String(),
		"iterations", iter,
		"prim_res", res.PrimalResidual,
		"dual_res", res.DualResidual,
	)
	return res, nil
}

type convergence struct {
	rPrim, rDual     float64
	epsPrim, epsDual float64
	normAx, normZ    float64
	normPx, normATy  float64
	normQ            float64
}

func (s *ADMM) residuals() convergence {
	xv := mat.NewVecDense(s.n, s.x)

	var ax, px, aty mat.VecDense
	ax.MulVec(s.a, xv)
	px.MulVec(s.p, xv)
	aty.MulVec(s.a.T(), mat.NewVecDense(s.m, s.y))

	axRaw := ax.RawVector().Data
	diff := make([]float64, s.m)
	floats.SubTo(diff, axRaw, s.z)

	dual := make([]float64, s.n)
	floats.AddTo(dual, px.RawVector().Data, s.q)
	floats.Add(dual, aty.RawVector().Data)

	c := convergence{
		rPrim:   infNorm(diff),
		rDual:   infNorm(dual),
		normAx:  infNorm(axRaw),
		normZ:   infNorm(s.z),
		normPx:  infNorm(px.RawVector().Data),
		normATy: infNorm(aty.RawVector().Data),
		normQ:   infNorm(s.q),
	}
	c.epsPrim = s.settings.EpsAbs + s.settings.EpsRel*math.Max(c.normAx, c.normZ)
	c.epsDual = s.settings.EpsAbs + s.settings.EpsRel*math.Max(c.normPx, math.Max(c.normATy, c.normQ))
	return c
}

// primalInfeasible tests δy as a certificate: after projecting onto the
// directions admitted by infinite bounds, ‖Aᵀδy‖ must vanish while
// uᵀδy⁺ + lᵀδy⁻ stays strictly negative.
func (s *ADMM) primalInfeasible(dy []float64) bool {
	for i := range dy {
		lInf, uInf := s.l[i] <= -Infinity, s.u[i] >= Infinity
		switch {
		case lInf && uInf:
			dy[i] = 0
		case uInf:
			dy[i] = math.Min(dy[i], 0)
		case lInf:
			dy[i] = math.Max(dy[i], 0)
		}
	}
	norm := infNorm(dy)
	if norm < divisionTol {
		return false
	}
	eps := s.settings.EpsPrimInf * norm

	support := 0.0
	for i, d := range dy {
		if d > 0 {
			support += s.u[i] * d
		} else if d < 0 {
			support += s.l[i] * d
		}
	}
	if support >= -eps {
		return false
	}

	var aty mat.VecDense
	aty.MulVec(s.a.T(), mat.NewVecDense(s.m, dy))
	return infNorm(aty.RawVector().Data) < eps
}

// dualInfeasible tests δx as a direction of unbounded descent.
func (s *ADMM) dualInfeasible(dx []float64) bool {
	norm := infNorm(dx)
	if norm < divisionTol {
		return false
	}
	eps := s.settings.EpsDualInf * norm
	if floats.Dot(s.q, dx) >= -eps {
		return false
	}

	dv := mat.NewVecDense(s.n, dx)
	var pdx, adx mat.VecDense
	pdx.MulVec(s.p, dv)
	if infNorm(pdx.RawVector().Data) >= eps {
		return false
	}
	adx.MulVec(s.a, dv)
	for i := 0; i < s.m; i++ {
		v := adx.AtVec(i)
		lInf, uInf := s.l[i] <= -Infinity, s.u[i] >= Infinity
		switch {
		case lInf && uInf:
		case uInf:
			if v < -eps {
				return false
			}
		case lInf:
			if v > eps {
				return false
			}
		default:
			if math.Abs(v) >= eps {
				return false
			}
		}
	}
	return true
}

// adaptRho rebalances the primal and dual residuals and refactors when
// the step size moves by more than the configured tolerance.
func (s *ADMM) adaptRho(c convergence) {
	prim := c.rPrim / (math.Max(c.normAx, c.normZ) + divisionTol)
	dual := c.rDual / (math.Max(c.normPx, math.Max(c.normATy, c.normQ)) + divisionTol)
	next := s.rhoBar * math.Sqrt(prim/(dual+divisionTol))
	next = math.Min(math.Max(next, rhoMin), rhoMax)

	tol := s.settings.AdaptiveRhoTolerance
	if next > s.rhoBar*tol || next < s.rhoBar/tol {
		prev := s.rhoBar
		s.rhoBar = next
		if err := s.refactor(); err != nil {
			s.rhoBar = prev
			if err := s.refactor(); err != nil {
				s.stale = true
			}
			return
		}
	}
}

func (s *ADMM) objective() float64 {
	xv := mat.NewVecDense(s.n, s.x)
	var px mat.VecDense
	px.MulVec(s.p, xv)
	return 0.5*floats.Dot(s.x, px.RawVector().Data) + floats.Dot(s.q, s.x)
}

func infNorm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
