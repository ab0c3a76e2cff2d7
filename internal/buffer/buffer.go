// Package buffer keeps an ordered record of the input/output samples a
// plant has produced.
package buffer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

type Buffer struct {
	m, p int
	u    []float64
	y    []float64
	n    int
}

func New(m, p int) *Buffer {
	return &Buffer{m: m, p: p}
}

func (b *Buffer) Inputs() int  { return b.m }
func (b *Buffer) Outputs() int { return b.p }
func (b *Buffer) Len() int     { return b.n }

// Append records one sample pair.
func (b *Buffer) Append(u, y []float64) error {
	if len(u) != b.m || len(y) != b.p {
		return fmt.Errorf("%w: sample has %d inputs and %d outputs, buffer expects %d and %d",
			dynamo.ErrDimensionMismatch, len(u), len(y), b.m, b.p)
	}
	b.u = append(b.u, u...)
	b.y = append(b.y, y...)
	b.n++
	return nil
}

// AppendData records every row of d in order.
func (b *Buffer) AppendData(d dynamo.Data) error {
	if d.Len() == 0 {
		return nil
	}
	if d.Inputs() != b.m || d.Outputs() != b.p {
		return fmt.Errorf("%w: trajectory has %d inputs and %d outputs, buffer expects %d and %d",
			dynamo.ErrDimensionMismatch, d.Inputs(), d.Outputs(), b.m, b.p)
	}
	for t := 0; t < d.Len(); t++ {
		b.u = append(b.u, d.U.RawRowView(t)...)
		b.y = append(b.y, d.Y.RawRowView(t)...)
		b.n++
	}
	return nil
}

// Last returns a copy of the most recent n samples, oldest first.
func (b *Buffer) Last(n int) (dynamo.Data, error) {
	if n <= 0 {
		return dynamo.Data{}, fmt.Errorf("%w: window length %d", dynamo.ErrDimensionMismatch, n)
	}
	if b.n < n {
		return dynamo.Data{}, fmt.Errorf("%w: requested %d samples, buffer holds %d",
			dynamo.ErrInsufficientHistory, n, b.n)
	}
	return b.slice(b.n-n, b.n), nil
}

// All returns a copy of the full history. An empty buffer yields an
// empty Data.
func (b *Buffer) All() dynamo.Data {
	if b.n == 0 {
		return dynamo.Data{}
	}
	return b.slice(0, b.n)
}

func (b *Buffer) Reset() {
	b.u = b.u[:0]
	b.y = b.y[:0]
	b.n = 0
}

func (b *Buffer) slice(from, to int) dynamo.Data {
	rows := to - from
	u := make([]float64, rows*b.m)
	y := make([]float64, rows*b.p)
	copy(u, b.u[from*b.m:to*b.m])
	copy(y, b.y[from*b.p:to*b.p])
	return dynamo.Data{
		U: mat.NewDense(rows, b.m, u),
		Y: mat.NewDense(rows, b.p, y),
	}
}
