package metrics

import (
	"github.com/san-kum/deepc/internal/sim"
)

// Bounds reports the fraction of samples whose outputs all lie in
// [low, high]. An empty run counts as fully inside.
type Bounds struct {
	name       string
	low, high  float64
	violations int
	samples    int
}

func NewBounds(low, high float64) *Bounds {
	return &Bounds{
		name: "within_bounds",
		low:  low,
		high: high,
	}
}

func (b *Bounds) Name() string {
	return b.name
}

func (b *Bounds) Observe(s sim.Sample) {
	b.samples++
	for _, val := range s.Y {
		if val < b.low || val > b.high {
			b.violations++
			break
		}
	}
}

func (b *Bounds) Value() float64 {
	if b.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(b.violations)/float64(b.samples)
}

func (b *Bounds) Reset() {
	b.violations = 0
	b.samples = 0
}
