// Package plant simulates discrete-time linear systems that stand in for
// the process under control.
package plant

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

// System is x⁺ = A x + B u, y = C x + D u. Dt is the sampling period of
// the discretization and is only recorded, never integrated.
type System struct {
	A, B, C, D *mat.Dense
	Dt         float64
}

// NewSystem validates the matrix shapes. D may be nil for a strictly
// proper system.
func NewSystem(a, b, c, d *mat.Dense, dt float64) (*System, error) {
	if a == nil || b == nil || c == nil {
		return nil, fmt.Errorf("%w: A, B and C are required", dynamo.ErrDimensionMismatch)
	}
	ar, ac := a.Dims()
	if ar != ac {
		return nil, fmt.Errorf("%w: A is %dx%d, must be square", dynamo.ErrDimensionMismatch, ar, ac)
	}
	br, bc := b.Dims()
	if br != ar {
		return nil, fmt.Errorf("%w: B has %d rows, state has %d", dynamo.ErrDimensionMismatch, br, ar)
	}
	cr, cc := c.Dims()
	if cc != ar {
		return nil, fmt.Errorf("%w: C has %d columns, state has %d", dynamo.ErrDimensionMismatch, cc, ar)
	}
	if d == nil {
		d = mat.NewDense(cr, bc, nil)
	}
	dr, dc := d.Dims()
	if dr != cr || dc != bc {
		return nil, fmt.Errorf("%w: D is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, dr, dc, cr, bc)
	}
	return &System{A: a, B: b, C: c, D: d, Dt: dt}, nil
}

// Dims returns the state, input and output dimensions.
func (s *System) Dims() (nx, nu, ny int) {
	nx, _ = s.A.Dims()
	_, nu = s.B.Dims()
	ny, _ = s.C.Dims()
	return nx, nu, ny
}
