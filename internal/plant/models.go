package plant

import "gonum.org/v1/gonum/mat"

// FourTank is the linearized, 5 s discretization of the quadruple-tank
// process: two pump inputs, two measured lower-tank levels.
func FourTank() *System {
	a := mat.NewDense(4, 4, []float64{
		0.9921, 0, 0.0206, 0,
		0, 0.9945, 0, 0.0165,
		0, 0, 0.9793, 0,
		0, 0, 0, 0.9835,
	})
	b := mat.NewDense(4, 2, []float64{
		0.0415, 0.0002,
		0.0001, 0.0313,
		0, 0.0237,
		0.0155, 0,
	})
	c := mat.NewDense(2, 4, []float64{
		0.5, 0, 0, 0,
		0, 0.5, 0, 0,
	})
	return &System{A: a, B: b, C: c, D: mat.NewDense(2, 2, nil), Dt: 5}
}

// Scalar is a stable first-order lag with unit output gain.
func Scalar() *System {
	return &System{
		A:  mat.NewDense(1, 1, []float64{0.9}),
		B:  mat.NewDense(1, 1, []float64{0.5}),
		C:  mat.NewDense(1, 1, []float64{1}),
		D:  mat.NewDense(1, 1, nil),
		Dt: 1,
	}
}

// DoubleIntegrator is a discretized position/velocity pair with position
// measurement.
func DoubleIntegrator() *System {
	return &System{
		A:  mat.NewDense(2, 2, []float64{1, 0.1, 0, 1}),
		B:  mat.NewDense(2, 1, []float64{0.005, 0.1}),
		C:  mat.NewDense(1, 2, []float64{1, 0}),
		D:  mat.NewDense(1, 1, nil),
		Dt: 0.1,
	}
}
