package metrics

import (
	"math"

	"github.com/san-kum/deepc/internal/sim"
)

// ControlEffort tracks the mean absolute input of each channel. Value
// averages the channels so plants with more actuators are not penalized
// for their width.
type ControlEffort struct {
	perChannel []float64
	samples    int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s sim.Sample) {
	if c.perChannel == nil {
		c.perChannel = make([]float64, len(s.U))
	}
	for i, u := range s.U {
		if i < len(c.perChannel) {
			c.perChannel[i] += math.Abs(u)
		}
	}
	c.samples++
}

// Channels returns the mean |u| of every input channel.
func (c *ControlEffort) Channels() []float64 {
	out := make([]float64, len(c.perChannel))
	if c.samples == 0 {
		return out
	}
	for i, total := range c.perChannel {
		out[i] = total / float64(c.samples)
	}
	return out
}

func (c *ControlEffort) Value() float64 {
	ch := c.Channels()
	if len(ch) == 0 {
		return 0
	}
	var sum float64
	for _, v := range ch {
		sum += v
	}
	return sum / float64(len(ch))
}

func (c *ControlEffort) Reset() {
	c.perChannel = nil
	c.samples = 0
}
