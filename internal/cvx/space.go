package cvx

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Space allocates variables as contiguous blocks of one decision vector.
type Space struct {
	size int
	vars []Variable
}

func NewSpace() *Space { return &Space{} }

// Variable is a rows×cols block of the decision vector stored row-major
// starting at Offset.
type Variable struct {
	Name       string
	Offset     int
	Rows, Cols int

	space *Space
}

// Var reserves a new rows×cols variable.
func (s *Space) Var(name string, rows, cols int) Variable {
	v := Variable{Name: name, Offset: s.size, Rows: rows, Cols: cols, space: s}
	s.size += rows * cols
	s.vars = append(s.vars, v)
	return v
}

// Size is the length of the decision vector.
func (s *Space) Size() int { return s.size }

func (s *Space) Vars() []Variable {
	return append([]Variable(nil), s.vars...)
}

func (v Variable) Len() int { return v.Rows * v.Cols }

// Expr returns the variable as an expression with unit coefficients.
func (v Variable) Expr() Expr {
	e := make([]affine, v.Len())
	for i := range e {
		e[i] = affine{terms: []term{{idx: v.Offset + i, coef: 1}}}
	}
	return Expr{space: v.space, rows: v.Rows, cols: v.Cols, e: e}
}

// Value extracts the variable block from a solution vector.
func (v Variable) Value(x []float64) *mat.Dense {
	data := make([]float64, v.Len())
	copy(data, x[v.Offset:v.Offset+v.Len()])
	return mat.NewDense(v.Rows, v.Cols, data)
}

// Program is a compiled quadratic program.
type Program struct {
	P     *mat.SymDense
	Q     []float64
	Const float64
	A     *mat.Dense
	L, U  []float64
}

// Compile lowers the objective and constraints over this space. A is nil
// when there are no constraint rows.
func (s *Space) Compile(obj Objective, cons ...Constraint) (*Program, error) {
	if s.size == 0 {
		return nil, fmt.Errorf("%w: space has no variables", ErrMalformed)
	}
	if err := obj.check(s); err != nil {
		return nil, err
	}

	n := s.size
	prog := &Program{
		P:     mat.NewSymDense(n, nil),
		Q:     make([]float64, n),
		Const: 0,
	}

	for _, qt := range obj.quad {
		idx, val := merge(qt.a.terms)
		for a, i := range idx {
			for b := a; b < len(idx); b++ {
				j := idx[b]
				prog.P.SetSym(i, j, prog.P.At(i, j)+2*qt.w*val[a]*val[b])
			}
			prog.Q[i] += 2 * qt.w * qt.a.c * val[a]
		}
		prog.Const += qt.w * qt.a.c * qt.a.c
	}
	for _, lt := range obj.lin {
		for _, t := range lt.a.terms {
			prog.Q[t.idx] += lt.w * t.coef
		}
		prog.Const += lt.w * lt.a.c
	}

	rows := 0
	for _, c := range cons {
		if err := c.check(s); err != nil {
			return nil, err
		}
		rows += len(c.rows)
	}
	if rows == 0 {
		return prog, nil
	}

	prog.A = mat.NewDense(rows, n, nil)
	prog.L = make([]float64, rows)
	prog.U = make([]float64, rows)
	r := 0
	for _, c := range cons {
		for k, a := range c.rows {
			for _, t := range a.terms {
				prog.A.Set(r, t.idx, prog.A.At(r, t.idx)+t.coef)
			}
			prog.L[r] = c.lo[k] - a.c
			prog.U[r] = c.hi[k] - a.c
			r++
		}
	}
	return prog, nil
}

// merge sums duplicate terms and returns the distinct indices in
// ascending order with their coefficients.
func merge(terms []term) ([]int, []float64) {
	sum := make(map[int]float64, len(terms))
	for _, t := range terms {
		sum[t.idx] += t.coef
	}
	idx := make([]int, 0, len(sum))
	for i := range sum {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	val := make([]float64, len(idx))
	for k, i := range idx {
		val[k] = sum[i]
	}
	return idx, val
}

// Objective is a weighted sum of squared affine functions plus linear
// terms.
type Objective struct {
	quad []weighted
	lin  []weighted
	err  error
}

type weighted struct {
	w float64
	a affine
	s *Space
}

// SumSquares is Σ e_ij², the squared Frobenius norm of e.
func SumSquares(e Expr) Objective {
	if e.err != nil {
		return Objective{err: e.err}
	}
	o := Objective{quad: make([]weighted, len(e.e))}
	for i, a := range e.e {
		o.quad[i] = weighted{w: 1, a: a, s: e.space}
	}
	return o
}

// Sum is the linear objective Σ e_ij.
func Sum(e Expr) Objective {
	if e.err != nil {
		return Objective{err: e.err}
	}
	o := Objective{lin: make([]weighted, len(e.e))}
	for i, a := range e.e {
		o.lin[i] = weighted{w: 1, a: a, s: e.space}
	}
	return o
}

func (o Objective) Plus(other Objective) Objective {
	if o.err != nil {
		return o
	}
	if other.err != nil {
		return other
	}
	return Objective{
		quad: append(append([]weighted(nil), o.quad...), other.quad...),
		lin:  append(append([]weighted(nil), o.lin...), other.lin...),
	}
}

// Scale multiplies the objective by k. Scaling squares by a negative
// factor makes the objective concave and is rejected.
func (o Objective) Scale(k float64) Objective {
	if o.err != nil {
		return o
	}
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return Objective{err: fmt.Errorf("%w: objective weight %g", ErrMalformed, k)}
	}
	if k < 0 && len(o.quad) > 0 {
		return Objective{err: fmt.Errorf("%w: negative weight %g on a sum of squares", ErrNotConvex, k)}
	}
	out := Objective{quad: make([]weighted, len(o.quad)), lin: make([]weighted, len(o.lin))}
	for i, q := range o.quad {
		out.quad[i] = weighted{w: q.w * k, a: q.a, s: q.s}
	}
	for i, l := range o.lin {
		out.lin[i] = weighted{w: l.w * k, a: l.a, s: l.s}
	}
	return out
}

func (o Objective) Err() error { return o.err }

// InvalidObjective carries err to the point of compilation.
func InvalidObjective(err error) Objective { return Objective{err: err} }

// Value evaluates the objective at x.
func (o Objective) Value(x []float64) float64 {
	v := 0.0
	for _, q := range o.quad {
		r := q.a.eval(x)
		v += q.w * r * r
	}
	for _, l := range o.lin {
		v += l.w * l.a.eval(x)
	}
	return v
}

func (o Objective) check(s *Space) error {
	if o.err != nil {
		return o.err
	}
	for _, w := range append(append([]weighted(nil), o.quad...), o.lin...) {
		if w.s != nil && w.s != s {
			return fmt.Errorf("%w: objective uses variables from another space", ErrMalformed)
		}
	}
	return nil
}

// Constraint bounds each entry of an affine expression: lo ≤ e ≤ hi.
type Constraint struct {
	space  *Space
	rows   []affine
	lo, hi []float64
	err    error
}

// Between constrains lo ≤ e ≤ hi entry-wise.
func Between(e Expr, lo, hi float64) Constraint {
	if e.err != nil {
		return Constraint{err: e.err}
	}
	c := Constraint{space: e.space, rows: e.e, lo: make([]float64, len(e.e)), hi: make([]float64, len(e.e))}
	for i := range e.e {
		c.lo[i], c.hi[i] = lo, hi
	}
	return c
}

func LessEq(e Expr, v float64) Constraint { return Between(e, math.Inf(-1), v) }
func GreaterEq(e Expr, v float64) Constraint { return Between(e, v, math.Inf(1)) }
func EqualTo(e Expr, v float64) Constraint { return Between(e, v, v) }

// LessEqMatrix constrains e ≤ m entry-wise.
func LessEqMatrix(e Expr, m mat.Matrix) Constraint {
	return LessEq(e.SubMatrix(m), 0)
}

// GreaterEqMatrix constrains e ≥ m entry-wise.
func GreaterEqMatrix(e Expr, m mat.Matrix) Constraint {
	return GreaterEq(e.SubMatrix(m), 0)
}

// EqualMatrix constrains e = m entry-wise.
func EqualMatrix(e Expr, m mat.Matrix) Constraint {
	return EqualTo(e.SubMatrix(m), 0)
}

// Len is the number of scalar rows the constraint compiles to.
func (c Constraint) Len() int { return len(c.rows) }

func (c Constraint) Err() error { return c.err }

// InvalidConstraint carries err to the point of compilation.
func InvalidConstraint(err error) Constraint { return Constraint{err: err} }

func (c Constraint) check(s *Space) error {
	if c.err != nil {
		return c.err
	}
	if len(c.rows) == 0 {
		return fmt.Errorf("%w: empty constraint", ErrMalformed)
	}
	if c.space != s {
		return fmt.Errorf("%w: constraint does not reference this space's variables", ErrMalformed)
	}
	for i, a := range c.rows {
		lo, hi := c.lo[i], c.hi[i]
		switch {
		case len(a.terms) == 0:
			return fmt.Errorf("%w: constraint row %d is constant", ErrMalformed, i)
		case math.IsNaN(lo) || math.IsNaN(hi):
			return fmt.Errorf("%w: NaN bound in row %d", ErrMalformed, i)
		case lo > hi || math.IsInf(lo, 1) || math.IsInf(hi, -1):
			return fmt.Errorf("%w: empty interval [%g, %g] in row %d", ErrMalformed, lo, hi, i)
		}
	}
	return nil
}
