package sim

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
)

// Plant is the process driven by the loop.
type Plant interface {
	Reset(initial *dynamo.Data) error
	ApplyInput(u *mat.Dense, noiseStd float64) (dynamo.Data, error)
	LastSamples(n int) (dynamo.Data, error)
	AllSamples() dynamo.Data
}

// Controller computes the optimal input sequence from an initial window.
type Controller interface {
	Tini() int
	Horizon() int
	Inputs() int
	Outputs() int
	Solve(ctx context.Context, initial dynamo.Data, warm bool) (*mat.Dense, deepc.Info, error)
}

// Sample is one committed input/output pair.
type Sample struct {
	Step int
	U, Y []float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(rec *StepRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec *StepRecord)

func (f ObserverFunc) OnStep(rec *StepRecord) { f(rec) }

type State int

const (
	Idle State = iota
	Ready
	Stepping
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Stepping:
		return "stepping"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	// Steps is the number of solve/apply iterations.
	Steps int `yaml:"steps"`
	// S is the number of optimal inputs applied per iteration.
	S         int     `yaml:"s"`
	NoiseStd  float64 `yaml:"noise_std"`
	WarmStart bool    `yaml:"warm_start"`
}

// StepRecord describes one completed iteration.
type StepRecord struct {
	Step    int
	Applied dynamo.Data
	Window  dynamo.Data
	Info    deepc.Info
}

type Result struct {
	Data       dynamo.Data
	Steps      []StepRecord
	Metrics    map[string]float64
	StepsTaken int
	SolveTimes []time.Duration
}
