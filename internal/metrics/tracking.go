package metrics

import (
	"math"

	"github.com/san-kum/deepc/internal/sim"
)

// Tracking is the RMS error of every output channel against a constant
// reference. A single reference value applies to all channels.
type Tracking struct {
	name    string
	ref     []float64
	sq      float64
	entries int
}

func NewTracking(ref []float64) *Tracking {
	return &Tracking{
		name: "tracking_rms",
		ref:  append([]float64(nil), ref...),
	}
}

func (t *Tracking) Name() string { return t.name }

func (t *Tracking) Observe(s sim.Sample) {
	for i, y := range s.Y {
		r := t.ref[0]
		if len(t.ref) > 1 {
			r = t.ref[i]
		}
		e := y - r
		t.sq += e * e
		t.entries++
	}
}

func (t *Tracking) Value() float64 {
	if t.entries == 0 {
		return 0
	}
	return math.Sqrt(t.sq / float64(t.entries))
}

func (t *Tracking) Reset() {
	t.sq = 0
	t.entries = 0
}
