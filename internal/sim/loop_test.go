package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/excitation"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/policy"
	"github.com/san-kum/deepc/internal/sim"
)

// rampController returns u[t] = step*10 + t so applied samples can be
// traced back to the iteration that produced them.
type rampController struct {
	tini, horizon int
	calls         int
	windows       []dynamo.Data
	failAt        int
}

func (c *rampController) Tini() int { return c.tini }
func (c *rampController) Horizon() int { return c.horizon }
func (c *rampController) Inputs() int { return 1 }
func (c *rampController) Outputs() int { return 1 }

func (c *rampController) Solve(_ context.Context, initial dynamo.Data, _ bool) (*mat.Dense, deepc.Info, error) {
	c.windows = append(c.windows, initial.Clone())
	if c.failAt > 0 && c.calls == c.failAt {
		return nil, deepc.Info{}, dynamo.ErrInfeasible
	}
	u := mat.NewDense(c.horizon, 1, nil)
	for t := 0; t < c.horizon; t++ {
		u.Set(t, 0, float64(c.calls*10+t))
	}
	c.calls++
	return u, deepc.Info{}, nil
}

type countMetric struct{ n int }

func (m *countMetric) Name() string { return "count" }
func (m *countMetric) Observe(sim.Sample) { m.n++ }
func (m *countMetric) Value() float64 { return float64(m.n) }
func (m *countMetric) Reset() { m.n = 0 }

func newPlant() *plant.Simulator {
	p, err := plant.NewSimulator(plant.Scalar())
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Loop", func() {
	var (
		ctx  context.Context
		p    *plant.Simulator
		ctrl *rampController
	)

	BeforeEach(func() {
		ctx = context.Background()
		p = newPlant()
		ctrl = &rampController{tini: 2, horizon: 4}
	})

	It("validates the configuration", func() {
		_, err := sim.New(p, ctrl, sim.Config{Steps: 0, S: 1})
		Expect(err).To(HaveOccurred())
		_, err = sim.New(p, ctrl, sim.Config{Steps: 3, S: 5})
		Expect(err).To(HaveOccurred())
		_, err = sim.New(p, ctrl, sim.Config{Steps: 3, S: 1, NoiseStd: -1})
		Expect(err).To(MatchError(dynamo.ErrInvalidNoise))
	})

	It("moves through the lifecycle", func() {
		loop, err := sim.New(p, ctrl, sim.Config{Steps: 2, S: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.State()).To(Equal(sim.Idle))

		_, err = loop.Step(ctx)
		Expect(err).To(MatchError(dynamo.ErrInvalidTransition))

		Expect(loop.Reset(nil)).To(Succeed())
		Expect(loop.State()).To(Equal(sim.Ready))
		Expect(loop.Window().Equal(dynamo.ZeroData(2, 1, 1))).To(BeTrue())

		_, err = loop.Step(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.State()).To(Equal(sim.Ready))

		_, err = loop.Step(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.State()).To(Equal(sim.Terminated))

		_, err = loop.Step(ctx)
		Expect(err).To(MatchError(dynamo.ErrInvalidTransition))

		Expect(loop.Reset(nil)).To(Succeed())
		Expect(loop.State()).To(Equal(sim.Ready))
	})

	DescribeTable("commits exactly s samples per iteration",
		func(s int) {
			loop, err := sim.New(p, ctrl, sim.Config{Steps: 5, S: s})
			Expect(err).NotTo(HaveOccurred())
			metric := &countMetric{}
			loop.AddMetric(metric)
			Expect(loop.Reset(nil)).To(Succeed())

			res, err := loop.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StepsTaken).To(Equal(5))
			Expect(res.Data.Len()).To(Equal(2 + 5*s))
			Expect(res.Metrics["count"]).To(Equal(float64(5 * s)))

			for i, rec := range res.Steps {
				Expect(rec.Applied.Len()).To(Equal(s))
				// only the first s rows of each solution reach the plant
				Expect(rec.Applied.U.At(0, 0)).To(Equal(float64(i * 10)))
				Expect(rec.Applied.U.At(s-1, 0)).To(Equal(float64(i*10 + s - 1)))
			}
		},
		Entry("s = 1", 1),
		Entry("s = 2", 2),
		Entry("s = horizon", 4),
	)

	It("refreshes the window from the most recent applied samples", func() {
		loop, err := sim.New(p, ctrl, sim.Config{Steps: 4, S: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Reset(nil)).To(Succeed())

		var seen int
		loop.AddObserver(sim.ObserverFunc(func(rec *sim.StepRecord) {
			tail, err := p.AllSamples().Tail(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Window.Equal(tail)).To(BeTrue())
			seen++
		}))

		_, err = loop.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal(4))

		// the window handed to solve k is the one refreshed after step k-1
		for k := 1; k < len(ctrl.windows); k++ {
			Expect(ctrl.windows[k].U.At(1, 0)).To(Equal(float64((k-1)*10 + 2)))
		}
	})

	It("terminates on a controller failure", func() {
		ctrl.failAt = 2
		loop, err := sim.New(p, ctrl, sim.Config{Steps: 5, S: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Reset(nil)).To(Succeed())

		res, err := loop.Run(ctx)
		Expect(err).To(MatchError(dynamo.ErrInfeasible))
		var stepErr *dynamo.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Step).To(Equal(2))

		Expect(loop.State()).To(Equal(sim.Terminated))
		Expect(res.StepsTaken).To(Equal(2))
		Expect(res.Data.Len()).To(Equal(2 + 2))
	})

	It("terminates when the context is cancelled", func() {
		loop, err := sim.New(p, ctrl, sim.Config{Steps: 5, S: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Reset(nil)).To(Succeed())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = loop.Run(cancelled)
		Expect(err).To(MatchError(context.Canceled))
		Expect(loop.State()).To(Equal(sim.Terminated))
	})

	It("rejects an initial window with the wrong channels", func() {
		loop, err := sim.New(p, ctrl, sim.Config{Steps: 1, S: 1})
		Expect(err).NotTo(HaveOccurred())
		bad := dynamo.ZeroData(2, 2, 1)
		Expect(loop.Reset(&bad)).To(MatchError(dynamo.ErrDimensionMismatch))
		Expect(loop.State()).To(Equal(sim.Idle))
	})

	It("closes the loop with the predictive controller", func() {
		offline := newPlant()
		data, err := offline.ApplyInput(excitation.Uniform{Low: -1, High: 1, Seed: 9}.Generate(50, 1), 0)
		Expect(err).NotTo(HaveOccurred())

		ctrl, err := deepc.New(data, 2, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.BuildProblem(
			policy.Tracking([]float64{0.5}, 1, 0.01),
			policy.InputBox([]float64{-1}, []float64{1}),
			deepc.Regularization{},
		)).To(Succeed())

		loop, err := sim.New(p, ctrl, sim.Config{Steps: 30, S: 1, WarmStart: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Reset(nil)).To(Succeed())

		res, err := loop.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Data.Len()).To(Equal(32))
		Expect(res.SolveTimes).To(HaveLen(30))
		Expect(res.Data.Y.At(31, 0)).To(BeNumerically("~", 0.5, 0.05))
	})
})
