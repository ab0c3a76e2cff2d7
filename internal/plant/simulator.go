package plant

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/deepc/internal/buffer"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/logger"
)

// NoiseMode selects where Gaussian noise enters the simulation.
type NoiseMode int

const (
	NoiseMeasurement NoiseMode = iota
	NoiseProcess
	NoiseBoth
)

func (m NoiseMode) String() string {
	switch m {
	case NoiseMeasurement:
		return "measurement"
	case NoiseProcess:
		return "process"
	case NoiseBoth:
		return "both"
	default:
		return fmt.Sprintf("NoiseMode(%d)", int(m))
	}
}

// ParseNoiseMode maps a config string to a NoiseMode. Empty means
// measurement noise.
func ParseNoiseMode(s string) (NoiseMode, error) {
	switch s {
	case "", "measurement":
		return NoiseMeasurement, nil
	case "process":
		return NoiseProcess, nil
	case "both":
		return NoiseBoth, nil
	}
	return 0, fmt.Errorf("unknown noise mode %q", s)
}

type Option func(*Simulator)

func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.seed = seed }
}

// WithInitialState sets x0, restored on every Reset.
func WithInitialState(x0 []float64) Option {
	return func(s *Simulator) { s.x0 = append([]float64(nil), x0...) }
}

func WithNoise(mode NoiseMode) Option {
	return func(s *Simulator) { s.mode = mode }
}

// Simulator advances a System one sample at a time and records every
// applied input and observed output.
type Simulator struct {
	sys  *System
	seed uint64
	mode NoiseMode
	x0   []float64

	x       *mat.VecDense
	history *buffer.Buffer
	src     rand.Source
}

func NewSimulator(sys *System, opts ...Option) (*Simulator, error) {
	nx, nu, ny := sys.Dims()
	s := &Simulator{sys: sys, seed: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.x0 == nil {
		s.x0 = make([]float64, nx)
	}
	if len(s.x0) != nx {
		return nil, fmt.Errorf("%w: initial state has %d entries, system has %d",
			dynamo.ErrDimensionMismatch, len(s.x0), nx)
	}
	s.history = buffer.New(nu, ny)
	s.src = rand.NewPCG(s.seed, s.seed)
	s.x = mat.NewVecDense(nx, append([]float64(nil), s.x0...))
	return s, nil
}

func (s *Simulator) System() *System { return s.sys }

// Reset clears the history and restores the initial state. When initial
// is non-nil its samples become the recorded history; the internal
// state is not altered by them.
func (s *Simulator) Reset(initial *dynamo.Data) error {
	_, nu, ny := s.sys.Dims()
	if initial != nil && initial.Len() > 0 && (initial.Inputs() != nu || initial.Outputs() != ny) {
		return fmt.Errorf("%w: initial data has %d inputs and %d outputs, plant has %d and %d",
			dynamo.ErrDimensionMismatch, initial.Inputs(), initial.Outputs(), nu, ny)
	}

	s.history.Reset()
	s.x = mat.NewVecDense(len(s.x0), append([]float64(nil), s.x0...))
	s.src = rand.NewPCG(s.seed, s.seed)

	if initial != nil {
		if err := s.history.AppendData(*initial); err != nil {
			return err
		}
	}
	logger.Log.Debugw("plant reset", "history", s.history.Len())
	return nil
}

// ApplyInput feeds each row of u through the system and returns the new
// samples only.
func (s *Simulator) ApplyInput(u *mat.Dense, noiseStd float64) (dynamo.Data, error) {
	if noiseStd < 0 {
		return dynamo.Data{}, fmt.Errorf("%w: got %g", dynamo.ErrInvalidNoise, noiseStd)
	}
	nx, nu, ny := s.sys.Dims()
	rows, cols := u.Dims()
	if cols != nu {
		return dynamo.Data{}, fmt.Errorf("%w: input has %d columns, plant has %d inputs",
			dynamo.ErrDimensionMismatch, cols, nu)
	}

	var noise *distuv.Normal
	if noiseStd > 0 {
		noise = &distuv.Normal{Mu: 0, Sigma: noiseStd, Src: s.src}
	}
	measured := noise != nil && s.mode != NoiseProcess
	process := noise != nil && s.mode != NoiseMeasurement

	out := mat.NewDense(rows, ny, nil)
	var yt, dx, bu mat.VecDense
	next := mat.NewVecDense(nx, nil)
	for t := 0; t < rows; t++ {
		ut := u.RowView(t)

		yt.MulVec(s.sys.C, s.x)
		dx.MulVec(s.sys.D, ut)
		yt.AddVec(&yt, &dx)
		if measured {
			for i := 0; i < ny; i++ {
				yt.SetVec(i, yt.AtVec(i)+noise.Rand())
			}
		}

		next.MulVec(s.sys.A, s.x)
		bu.MulVec(s.sys.B, ut)
		next.AddVec(next, &bu)
		if process {
			for i := 0; i < nx; i++ {
				next.SetVec(i, next.AtVec(i)+noise.Rand())
			}
		}
		s.x.CopyVec(next)

		out.SetRow(t, yt.RawVector().Data)
		if err := s.history.Append(mat.Row(nil, t, u), mat.Col(nil, 0, &yt)); err != nil {
			return dynamo.Data{}, err
		}
	}

	return dynamo.Data{U: mat.DenseCopyOf(u), Y: out}, nil
}

// LastSamples returns the most recent n recorded samples.
func (s *Simulator) LastSamples(n int) (dynamo.Data, error) {
	return s.history.Last(n)
}

func (s *Simulator) AllSamples() dynamo.Data {
	return s.history.All()
}

// State returns a copy of the current internal state.
func (s *Simulator) State() []float64 {
	return mat.Col(nil, 0, s.x)
}
