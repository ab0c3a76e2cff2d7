// Package hankel builds the block-Hankel predictive structure that turns
// a single recorded trajectory into a library of shorter trajectories.
package hankel

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

// BlockHankel stacks depth consecutive samples of x (T×dim) into each
// column. Column j holds samples j..j+depth-1, earliest first, so entry
// (i*dim+d, j) is x[j+i, d].
func BlockHankel(x mat.Matrix, depth int) (*mat.Dense, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: depth %d", dynamo.ErrDimensionMismatch, depth)
	}
	t, dim := x.Dims()
	cols := t - depth + 1
	if cols < 1 {
		return nil, fmt.Errorf("%w: %d samples cannot fill depth %d", dynamo.ErrInsufficientData, t, depth)
	}

	h := mat.NewDense(depth*dim, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < depth; i++ {
			for d := 0; d < dim; d++ {
				h.Set(i*dim+d, j, x.At(j+i, d))
			}
		}
	}
	return h, nil
}

// Structure is the predictive library split into past (initial
// condition) and future rows.
type Structure struct {
	Up, Yp *mat.Dense
	Uf, Yf *mat.Dense

	Tini    int
	Horizon int
	M, P    int

	data dynamo.Data
}

// Build forms Up (Tini·M), Uf (horizon·M), Yp (Tini·P) and Yf
// (horizon·P), each with T−Tini−horizon+1 columns.
func Build(data dynamo.Data, tini, horizon int) (*Structure, error) {
	if tini < 1 || horizon < 1 {
		return nil, fmt.Errorf("%w: tini=%d horizon=%d must be positive", dynamo.ErrDimensionMismatch, tini, horizon)
	}
	if data.U == nil || data.Y == nil {
		return nil, fmt.Errorf("%w: empty trajectory", dynamo.ErrInsufficientData)
	}
	if data.U.RawMatrix().Rows != data.Y.RawMatrix().Rows {
		return nil, fmt.Errorf("%w: %d input rows vs %d output rows",
			dynamo.ErrDimensionMismatch, data.Len(), data.Y.RawMatrix().Rows)
	}
	depth := tini + horizon
	if data.Len() < depth {
		return nil, fmt.Errorf("%w: have %d samples, need at least tini+horizon=%d",
			dynamo.ErrInsufficientData, data.Len(), depth)
	}

	hu, err := BlockHankel(data.U, depth)
	if err != nil {
		return nil, err
	}
	hy, err := BlockHankel(data.Y, depth)
	if err != nil {
		return nil, err
	}

	m, p := data.Inputs(), data.Outputs()
	_, cols := hu.Dims()
	return &Structure{
		Up:      mat.DenseCopyOf(hu.Slice(0, tini*m, 0, cols)),
		Uf:      mat.DenseCopyOf(hu.Slice(tini*m, depth*m, 0, cols)),
		Yp:      mat.DenseCopyOf(hy.Slice(0, tini*p, 0, cols)),
		Yf:      mat.DenseCopyOf(hy.Slice(tini*p, depth*p, 0, cols)),
		Tini:    tini,
		Horizon: horizon,
		M:       m,
		P:       p,
		data:    data.Clone(),
	}, nil
}

// Columns is the number of trajectories in the library.
func (s *Structure) Columns() int {
	_, c := s.Up.Dims()
	return c
}

// Stacked returns [Up; Yp; Uf; Yf].
func (s *Structure) Stacked() *mat.Dense {
	var top, bottom, out mat.Dense
	top.Stack(s.Up, s.Yp)
	bottom.Stack(s.Uf, s.Yf)
	out.Stack(&top, &bottom)
	return &out
}

// Rank counts singular values of the stacked structure above
// tol·σmax.
func (s *Structure) Rank(tol float64) int {
	return rank(s.Stacked(), tol)
}

// CheckExcitation verifies the input is persistently exciting of order
// Tini+horizon+order: its block-Hankel matrix of that depth must have
// full row rank.
func (s *Structure) CheckExcitation(order int) error {
	if order < 0 {
		return fmt.Errorf("%w: order %d", dynamo.ErrDimensionMismatch, order)
	}
	depth := s.Tini + s.Horizon + order
	h, err := BlockHankel(s.data.U, depth)
	if err != nil {
		return err
	}
	rows, cols := h.Dims()
	if cols < rows {
		return fmt.Errorf("%w: depth %d needs %d columns, have %d",
			dynamo.ErrInsufficientData, depth, rows, cols)
	}
	if r := rank(h, 1e-9); r < rows {
		return fmt.Errorf("%w: input Hankel of depth %d has rank %d < %d", dynamo.ErrNotExcited, depth, r, rows)
	}
	return nil
}

func rank(a mat.Matrix, tol float64) int {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	r := 0
	for _, v := range values {
		if v > tol*values[0] {
			r++
		}
	}
	return r
}
