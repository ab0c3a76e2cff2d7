// Package cvx is a small modelling layer for convex quadratic programs.
//
// Variables live in a [Space], a flat decision vector. An [Expr] is a
// matrix of affine functions of that vector; objectives are weighted sums
// of squares plus linear terms, and constraints bound affine expressions
// from below and above. A Space compiles both into the standard form
//
//	minimize ½xᵀPx + qᵀx + c  subject to  l ≤ Ax ≤ u
//
// Expression errors are sticky: the first shape or ownership error is
// carried through every later operation and reported at compile time.
package cvx

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShape     = errors.New("cvx: shape mismatch")
	ErrMalformed = errors.New("cvx: malformed expression")
	ErrNotConvex = errors.New("cvx: objective is not convex")
)

type term struct {
	idx  int
	coef float64
}

// affine is Σ coef·x[idx] + c. Duplicate indices are allowed and summed
// when compiled.
type affine struct {
	terms []term
	c     float64
}

func (a affine) scale(k float64) affine {
	out := affine{terms: make([]term, len(a.terms)), c: a.c * k}
	for i, t := range a.terms {
		out.terms[i] = term{idx: t.idx, coef: t.coef * k}
	}
	return out
}

func (a affine) add(b affine) affine {
	terms := make([]term, 0, len(a.terms)+len(b.terms))
	terms = append(terms, a.terms...)
	terms = append(terms, b.terms...)
	return affine{terms: terms, c: a.c + b.c}
}

func (a affine) eval(x []float64) float64 {
	v := a.c
	for _, t := range a.terms {
		v += t.coef * x[t.idx]
	}
	return v
}

// Expr is a rows×cols matrix of affine expressions.
type Expr struct {
	space      *Space
	rows, cols int
	e          []affine
	err        error
}

// Const lifts a constant matrix into an expression.
func Const(m mat.Matrix) Expr {
	r, c := m.Dims()
	e := make([]affine, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			e[i*c+j].c = m.At(i, j)
		}
	}
	return Expr{rows: r, cols: c, e: e}
}

// Scalar is a 1×1 constant.
func Scalar(v float64) Expr {
	return Expr{rows: 1, cols: 1, e: []affine{{c: v}}}
}

func errExpr(err error) Expr { return Expr{err: err} }

func (x Expr) Dims() (r, c int) { return x.rows, x.cols }
func (x Expr) Err() error { return x.err }

func (x Expr) at(i, j int) affine { return x.e[i*x.cols+j] }

func (x Expr) Space() *Space { return x.space }

// IsConstant reports whether no entry depends on a variable.
func (x Expr) IsConstant() bool {
	for _, a := range x.e {
		if len(a.terms) > 0 {
			return false
		}
	}
	return true
}

func mergeSpace(a, b Expr) (*Space, error) {
	switch {
	case a.space == nil:
		return b.space, nil
	case b.space == nil || a.space == b.space:
		return a.space, nil
	}
	return nil, fmt.Errorf("%w: expressions belong to different spaces", ErrMalformed)
}

func (x Expr) Add(o Expr) Expr {
	if x.err != nil {
		return x
	}
	if o.err != nil {
		return o
	}
	sp, err := mergeSpace(x, o)
	if err != nil {
		return errExpr(err)
	}

	switch {
	case x.rows == o.rows && x.cols == o.cols:
	case o.rows == 1 && o.cols == 1:
		o = o.broadcast(x.rows, x.cols)
	case x.rows == 1 && x.cols == 1:
		x = x.broadcast(o.rows, o.cols)
	default:
		return errExpr(fmt.Errorf("%w: add %dx%d and %dx%d", ErrShape, x.rows, x.cols, o.rows, o.cols))
	}

	out := Expr{space: sp, rows: x.rows, cols: x.cols, e: make([]affine, len(x.e))}
	for i := range x.e {
		out.e[i] = x.e[i].add(o.e[i])
	}
	return out
}

func (x Expr) broadcast(r, c int) Expr {
	out := Expr{space: x.space, rows: r, cols: c, e: make([]affine, r*c)}
	for i := range out.e {
		out.e[i] = x.e[0]
	}
	return out
}

func (x Expr) Sub(o Expr) Expr { return x.Add(o.Scale(-1)) }

func (x Expr) AddMatrix(m mat.Matrix) Expr { return x.Add(Const(m)) }
func (x Expr) SubMatrix(m mat.Matrix) Expr { return x.Sub(Const(m)) }

// AddConst adds v to every entry.
func (x Expr) AddConst(v float64) Expr { return x.Add(Scalar(v)) }

func (x Expr) Scale(k float64) Expr {
	if x.err != nil {
		return x
	}
	out := Expr{space: x.space, rows: x.rows, cols: x.cols, e: make([]affine, len(x.e))}
	for i, a := range x.e {
		out.e[i] = a.scale(k)
	}
	return out
}

// MulElem multiplies entry-wise by a constant matrix of the same shape.
func (x Expr) MulElem(w mat.Matrix) Expr {
	if x.err != nil {
		return x
	}
	r, c := w.Dims()
	if r != x.rows || c != x.cols {
		return errExpr(fmt.Errorf("%w: weight %dx%d for %dx%d expression", ErrShape, r, c, x.rows, x.cols))
	}
	out := Expr{space: x.space, rows: r, cols: c, e: make([]affine, len(x.e))}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.e[i*c+j] = x.at(i, j).scale(w.At(i, j))
		}
	}
	return out
}

// MulLeft returns a·x for a constant matrix a.
func (x Expr) MulLeft(a mat.Matrix) Expr {
	if x.err != nil {
		return x
	}
	ar, ac := a.Dims()
	if ac != x.rows {
		return errExpr(fmt.Errorf("%w: multiply %dx%d by %dx%d", ErrShape, ar, ac, x.rows, x.cols))
	}
	out := Expr{space: x.space, rows: ar, cols: x.cols, e: make([]affine, ar*x.cols)}
	for i := 0; i < ar; i++ {
		for j := 0; j < x.cols; j++ {
			var acc affine
			for k := 0; k < ac; k++ {
				w := a.At(i, k)
				src := x.at(k, j)
				for _, t := range src.terms {
					acc.terms = append(acc.terms, term{idx: t.idx, coef: w * t.coef})
				}
				acc.c += w * src.c
			}
			out.e[i*x.cols+j] = acc
		}
	}
	return out
}

// MulRight returns x·a for a constant matrix a.
func (x Expr) MulRight(a mat.Matrix) Expr {
	if x.err != nil {
		return x
	}
	var at mat.Dense
	at.CloneFrom(a.T())
	return x.T().MulLeft(&at).T()
}

func (x Expr) T() Expr {
	if x.err != nil {
		return x
	}
	out := Expr{space: x.space, rows: x.cols, cols: x.rows, e: make([]affine, len(x.e))}
	for i := 0; i < x.rows; i++ {
		for j := 0; j < x.cols; j++ {
			out.e[j*x.rows+i] = x.at(i, j)
		}
	}
	return out
}

// Slice returns rows [i0,i1) and columns [j0,j1).
func (x Expr) Slice(i0, i1, j0, j1 int) Expr {
	if x.err != nil {
		return x
	}
	if i0 < 0 || j0 < 0 || i1 > x.rows || j1 > x.cols || i0 >= i1 || j0 >= j1 {
		return errExpr(fmt.Errorf("%w: slice [%d:%d, %d:%d] of %dx%d", ErrShape, i0, i1, j0, j1, x.rows, x.cols))
	}
	r, c := i1-i0, j1-j0
	out := Expr{space: x.space, rows: r, cols: c, e: make([]affine, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.e[i*c+j] = x.at(i0+i, j0+j)
		}
	}
	return out
}

func (x Expr) Row(i int) Expr { return x.Slice(i, i+1, 0, x.cols) }
func (x Expr) Col(j int) Expr { return x.Slice(0, x.rows, j, j+1) }
func (x Expr) At(i, j int) Expr { return x.Slice(i, i+1, j, j+1) }

// Diff returns row differences x[t+1]-x[t].
func (x Expr) Diff() Expr {
	if x.err != nil {
		return x
	}
	if x.rows < 2 {
		return errExpr(fmt.Errorf("%w: diff of %d rows", ErrShape, x.rows))
	}
	return x.Slice(1, x.rows, 0, x.cols).Sub(x.Slice(0, x.rows-1, 0, x.cols))
}

// Sum adds every entry into a 1×1 expression.
func (x Expr) Sum() Expr {
	if x.err != nil {
		return x
	}
	var acc affine
	for _, a := range x.e {
		acc.terms = append(acc.terms, a.terms...)
		acc.c += a.c
	}
	return Expr{space: x.space, rows: 1, cols: 1, e: []affine{acc}}
}

// Reshape reinterprets the entries in row-major order.
func (x Expr) Reshape(r, c int) Expr {
	if x.err != nil {
		return x
	}
	if r*c != len(x.e) {
		return errExpr(fmt.Errorf("%w: reshape %dx%d to %dx%d", ErrShape, x.rows, x.cols, r, c))
	}
	return Expr{space: x.space, rows: r, cols: c, e: append([]affine(nil), x.e...)}
}

// Vec stacks the rows into a column.
func (x Expr) Vec() Expr { return x.Reshape(x.rows*x.cols, 1) }

// Value evaluates the expression at x.
func (x Expr) Value(v []float64) *mat.Dense {
	if x.err != nil || len(x.e) == 0 {
		return nil
	}
	out := mat.NewDense(x.rows, x.cols, nil)
	for i := 0; i < x.rows; i++ {
		for j := 0; j < x.cols; j++ {
			out.Set(i, j, x.at(i, j).eval(v))
		}
	}
	return out
}
