package dynamo

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Data is an aligned input/output trajectory. Row t of U and row t of Y
// form the sample pair observed at step t.
type Data struct {
	U *mat.Dense
	Y *mat.Dense
}

// NewData pairs an input matrix (T×M) with an output matrix (T×P).
func NewData(u, y *mat.Dense) (Data, error) {
	if u == nil || y == nil {
		return Data{}, fmt.Errorf("%w: nil input or output matrix", ErrDimensionMismatch)
	}
	ru, _ := u.Dims()
	ry, _ := y.Dims()
	if ru != ry {
		return Data{}, fmt.Errorf("%w: %d input rows vs %d output rows", ErrDimensionMismatch, ru, ry)
	}
	return Data{U: u, Y: y}, nil
}

// ZeroData returns a trajectory of n all-zero samples.
func ZeroData(n, m, p int) Data {
	return Data{U: mat.NewDense(n, m, nil), Y: mat.NewDense(n, p, nil)}
}

func (d Data) Len() int {
	if d.U == nil {
		return 0
	}
	r, _ := d.U.Dims()
	return r
}

func (d Data) Inputs() int {
	if d.U == nil {
		return 0
	}
	_, c := d.U.Dims()
	return c
}

func (d Data) Outputs() int {
	if d.Y == nil {
		return 0
	}
	_, c := d.Y.Dims()
	return c
}

func (d Data) Clone() Data {
	if d.U == nil || d.Y == nil {
		return Data{}
	}
	return Data{U: mat.DenseCopyOf(d.U), Y: mat.DenseCopyOf(d.Y)}
}

// Tail returns a copy of the last n samples.
func (d Data) Tail(n int) (Data, error) {
	if n <= 0 {
		return Data{}, fmt.Errorf("%w: tail length %d", ErrDimensionMismatch, n)
	}
	t := d.Len()
	if t < n {
		return Data{}, fmt.Errorf("%w: requested %d samples, have %d", ErrInsufficientHistory, n, t)
	}
	u := d.U.Slice(t-n, t, 0, d.Inputs())
	y := d.Y.Slice(t-n, t, 0, d.Outputs())
	return Data{U: mat.DenseCopyOf(u), Y: mat.DenseCopyOf(y)}, nil
}

// Concat appends other after d and returns the joined trajectory.
func (d Data) Concat(other Data) (Data, error) {
	if d.Len() == 0 {
		return other.Clone(), nil
	}
	if other.Len() == 0 {
		return d.Clone(), nil
	}
	if d.Inputs() != other.Inputs() || d.Outputs() != other.Outputs() {
		return Data{}, fmt.Errorf("%w: cannot join %dx%d with %dx%d channels",
			ErrDimensionMismatch, d.Inputs(), d.Outputs(), other.Inputs(), other.Outputs())
	}
	var u, y mat.Dense
	u.Stack(d.U, other.U)
	y.Stack(d.Y, other.Y)
	return Data{U: &u, Y: &y}, nil
}

// Equal reports whether both trajectories hold bit-identical samples.
func (d Data) Equal(other Data) bool {
	if d.Len() != other.Len() || d.Inputs() != other.Inputs() || d.Outputs() != other.Outputs() {
		return false
	}
	if d.Len() == 0 {
		return true
	}
	return mat.Equal(d.U, other.U) && mat.Equal(d.Y, other.Y)
}

// Row returns copies of the input and output vectors at step t.
func (d Data) Row(t int) (u, y []float64) {
	return mat.Row(nil, t, d.U), mat.Row(nil, t, d.Y)
}
