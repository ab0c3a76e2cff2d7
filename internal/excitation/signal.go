// Package excitation generates the open-loop input sequences used to
// collect offline training data.
//
// Every signal is seeded so that a recorded configuration reproduces
// the same trajectory:
//
//   - [Uniform]: i.i.d. samples on [Low, High]
//   - [Gaussian]: i.i.d. normal samples
//   - [PRBS]: pseudo-random binary sequence held for Hold steps
//   - [Zero]: all-zero input, useful for free-response checks
package excitation

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Signal produces a T×M input matrix.
type Signal interface {
	Generate(T, M int) *mat.Dense
}

type Uniform struct {
	Low, High float64
	Seed      uint64
}

func (s Uniform) Generate(T, M int) *mat.Dense {
	dist := distuv.Uniform{Min: s.Low, Max: s.High, Src: rand.NewPCG(s.Seed, s.Seed)}
	return fill(T, M, dist.Rand)
}

type Gaussian struct {
	Mean, Std float64
	Seed      uint64
}

func (s Gaussian) Generate(T, M int) *mat.Dense {
	dist := distuv.Normal{Mu: s.Mean, Sigma: s.Std, Src: rand.NewPCG(s.Seed, s.Seed)}
	return fill(T, M, dist.Rand)
}

// PRBS switches each channel between Low and High with probability ½
// every Hold samples.
type PRBS struct {
	Low, High float64
	Hold      int
	Seed      uint64
}

func (s PRBS) Generate(T, M int) *mat.Dense {
	hold := s.Hold
	if hold < 1 {
		hold = 1
	}
	coin := distuv.Bernoulli{P: 0.5, Src: rand.NewPCG(s.Seed, s.Seed)}
	u := mat.NewDense(T, M, nil)
	for m := 0; m < M; m++ {
		level := s.Low
		for t := 0; t < T; t++ {
			if t%hold == 0 {
				level = s.Low
				if coin.Rand() == 1 {
					level = s.High
				}
			}
			u.Set(t, m, level)
		}
	}
	return u
}

type Zero struct{}

func (Zero) Generate(T, M int) *mat.Dense {
	return mat.NewDense(T, M, nil)
}

// New builds a signal from its config name. Low and high bound Uniform
// and PRBS; for Gaussian they are read as mean and standard deviation.
func New(kind string, low, high float64, hold int, seed uint64) (Signal, error) {
	switch kind {
	case "", "uniform":
		return Uniform{Low: low, High: high, Seed: seed}, nil
	case "gaussian":
		return Gaussian{Mean: low, Std: high, Seed: seed}, nil
	case "prbs":
		return PRBS{Low: low, High: high, Hold: hold, Seed: seed}, nil
	case "zero":
		return Zero{}, nil
	}
	return nil, fmt.Errorf("unknown excitation: %s", kind)
}

// Kinds lists the names accepted by New.
func Kinds() []string {
	return []string{"uniform", "gaussian", "prbs", "zero"}
}

func fill(T, M int, draw func() float64) *mat.Dense {
	u := mat.NewDense(T, M, nil)
	for t := 0; t < T; t++ {
		for m := 0; m < M; m++ {
			u.Set(t, m, draw())
		}
	}
	return u
}
