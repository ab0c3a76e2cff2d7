package deepc_test

import (
	"context"
	"math"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/cvx"
	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/excitation"
	"github.com/san-kum/deepc/internal/plant"
	"github.com/san-kum/deepc/internal/policy"
	"github.com/san-kum/deepc/internal/qp"
)

const (
	tini    = 2
	horizon = 5
)

func offlineData(T int) (*plant.Simulator, dynamo.Data) {
	sim, err := plant.NewSimulator(plant.Scalar())
	Expect(err).NotTo(HaveOccurred())
	u := excitation.Uniform{Low: -1, High: 1, Seed: 42}.Generate(T, 1)
	data, err := sim.ApplyInput(u, 0)
	Expect(err).NotTo(HaveOccurred())
	return sim, data
}

var (
	tracking = policy.Tracking([]float64{0.5}, 1, 0.01)
	inputBox = policy.InputBox([]float64{-1}, []float64{1})
)

var _ = Describe("Controller", func() {
	var (
		ctx  context.Context
		sim  *plant.Simulator
		data dynamo.Data
		ctrl *deepc.Controller
	)

	BeforeEach(func() {
		ctx = context.Background()
		sim, data = offlineData(50)

		var err error
		ctrl, err = deepc.New(data, tini, horizon)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("exposes the predictive structure", func() {
			Expect(ctrl.Tini()).To(Equal(tini))
			Expect(ctrl.Horizon()).To(Equal(horizon))
			Expect(ctrl.Structure().Columns()).To(Equal(50 - tini - horizon + 1))
		})

		It("rejects a trajectory shorter than tini+horizon", func() {
			_, short := offlineData(tini + horizon - 1)
			_, err := deepc.New(short, tini, horizon)
			Expect(err).To(MatchError(dynamo.ErrInsufficientData))
		})

		It("rejects invalid solver settings", func() {
			settings := qp.DefaultSettings()
			settings.Alpha = 3
			_, err := deepc.New(data, tini, horizon, deepc.WithSettings(settings))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Solve", func() {
		It("fails before the problem is built", func() {
			_, _, err := ctrl.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).To(MatchError(dynamo.ErrInvalidTransition))
		})

		It("validates the initial window", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())

			_, _, err := ctrl.Solve(ctx, dynamo.ZeroData(tini+1, 1, 1), false)
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))

			_, _, err = ctrl.Solve(ctx, dynamo.ZeroData(tini, 2, 1), false)
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("returns a horizon-long input inside the box", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())

			u, info, err := ctrl.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Status.String()).To(Equal("solved"))

			r, c := u.Dims()
			Expect([]int{r, c}).To(Equal([]int{horizon, 1}))
			Expect(mat.Max(u)).To(BeNumerically("<=", 1+1e-3))
			Expect(mat.Min(u)).To(BeNumerically(">=", -1-1e-3))
		})

		It("keeps predicted outputs consistent with Yf·g without slack", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())

			_, info, err := ctrl.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.SlackY).To(BeNil())
			Expect(info.SlackU).To(BeNil())

			var pred mat.Dense
			pred.Mul(ctrl.Structure().Yf, info.G)
			for t := 0; t < horizon; t++ {
				Expect(pred.At(t, 0)).To(BeNumerically("~", info.Y.At(t, 0), 1e-3))
			}
		})

		It("exposes slack variables when their weights are positive", func() {
			reg := deepc.Regularization{LambdaG: 1e-3, LambdaY: 1e3, LambdaU: 1e3}
			Expect(ctrl.BuildProblem(tracking, inputBox, reg)).To(Succeed())

			_, info, err := ctrl.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.SlackY).NotTo(BeNil())
			Expect(info.SlackU).NotTo(BeNil())
			r, _ := info.SlackY.Dims()
			Expect(r).To(Equal(tini))
		})

		It("produces the same input with and without warm start", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())
			window := dynamo.ZeroData(tini, 1, 1)

			cold, coldInfo, err := ctrl.Solve(ctx, window, false)
			Expect(err).NotTo(HaveOccurred())
			warm, warmInfo, err := ctrl.Solve(ctx, window, true)
			Expect(err).NotTo(HaveOccurred())

			Expect(mat.EqualApprox(cold, warm, 1e-3)).To(BeTrue())
			Expect(warmInfo.Iterations).To(BeNumerically("<=", coldInfo.Iterations))
		})

		It("times solves with the injected clock", func() {
			mock := clock.NewMock()
			c, err := deepc.New(data, tini, horizon, deepc.WithClock(mock))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())

			_, info, err := c.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.SolveTime).To(BeZero())
		})

		It("reports contradictory constraints as infeasible", func() {
			contradiction := func(u, _ cvx.Expr) []cvx.Constraint {
				return []cvx.Constraint{cvx.GreaterEq(u, 2), cvx.LessEq(u, 1)}
			}
			Expect(ctrl.BuildProblem(tracking, contradiction, deepc.Regularization{})).To(Succeed())

			_, _, err := ctrl.Solve(ctx, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).To(MatchError(dynamo.ErrInfeasible))
		})

		It("maps cancellation to a solver error", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, _, err := ctrl.Solve(cancelled, dynamo.ZeroData(tini, 1, 1), false)
			Expect(err).To(MatchError(dynamo.ErrSolver))
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("Regularization", func() {
		It("reports the first bad weight in declaration order", func() {
			reg := deepc.Regularization{LambdaG: -1, LambdaY: math.NaN(), LambdaU: -2}
			for i := 0; i < 10; i++ {
				err := reg.Validate()
				Expect(err).To(MatchError(dynamo.ErrMalformedConstraint))
				Expect(err.Error()).To(ContainSubstring("lambda_g"))
			}

			reg.LambdaG = 0
			Expect(reg.Validate()).To(MatchError(ContainSubstring("lambda_y")))
			reg.LambdaY = 0
			Expect(reg.Validate()).To(MatchError(ContainSubstring("lambda_u")))
			reg.LambdaU = 0
			Expect(reg.Validate()).To(Succeed())
		})
	})

	Describe("multi-input plant", func() {
		It("builds and solves the four-tank problem", func() {
			tank, err := plant.NewSimulator(plant.FourTank())
			Expect(err).NotTo(HaveOccurred())
			mimo, err := tank.ApplyInput(excitation.Uniform{Low: -1, High: 1, Seed: 7}.Generate(100, 2), 0)
			Expect(err).NotTo(HaveOccurred())

			c, err := deepc.New(mimo, 4, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BuildProblem(
				policy.Tracking([]float64{0.5}, 1, 0.01),
				policy.InputBox([]float64{-1}, []float64{1}),
				deepc.Regularization{},
			)).To(Succeed())

			u, _, err := c.Solve(ctx, dynamo.ZeroData(4, 2, 2), false)
			Expect(err).NotTo(HaveOccurred())
			r, cols := u.Dims()
			Expect([]int{r, cols}).To(Equal([]int{20, 2}))
			Expect(mat.Max(u)).To(BeNumerically("<=", 1+1e-3))
			Expect(mat.Min(u)).To(BeNumerically(">=", -1-1e-3))
		})
	})

	Describe("BuildProblem", func() {
		It("maps shape errors to dimension mismatch", func() {
			bad := func(u, y cvx.Expr) cvx.Objective {
				return cvx.SumSquares(u.AddMatrix(mat.NewDense(3, 3, nil)))
			}
			err := ctrl.BuildProblem(bad, nil, deepc.Regularization{})
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(ctrl.Built()).To(BeFalse())
		})

		It("maps malformed constraints", func() {
			constant := func(_, _ cvx.Expr) []cvx.Constraint {
				return []cvx.Constraint{cvx.LessEq(cvx.Scalar(3), 1)}
			}
			Expect(ctrl.BuildProblem(tracking, constant, deepc.Regularization{})).
				To(MatchError(dynamo.ErrMalformedConstraint))
		})

		It("rejects a concave objective", func() {
			concave := func(u, _ cvx.Expr) cvx.Objective {
				return cvx.SumSquares(u).Scale(-1)
			}
			Expect(ctrl.BuildProblem(concave, nil, deepc.Regularization{})).
				To(MatchError(dynamo.ErrMalformedConstraint))
		})

		It("rejects a missing loss and negative weights", func() {
			Expect(ctrl.BuildProblem(nil, nil, deepc.Regularization{})).
				To(MatchError(dynamo.ErrMalformedConstraint))
			Expect(ctrl.BuildProblem(tracking, nil, deepc.Regularization{LambdaG: -1})).
				To(MatchError(dynamo.ErrMalformedConstraint))
		})

		It("rejects variables from another space", func() {
			foreign := cvx.NewSpace().Var("v", horizon, 1).Expr()
			stray := func(_, _ cvx.Expr) []cvx.Constraint {
				return []cvx.Constraint{cvx.LessEq(foreign, 1)}
			}
			Expect(ctrl.BuildProblem(tracking, stray, deepc.Regularization{})).
				To(MatchError(dynamo.ErrMalformedConstraint))
		})
	})

	Describe("closed loop", func() {
		It("drives the scalar plant to the reference", func() {
			Expect(ctrl.BuildProblem(tracking, inputBox, deepc.Regularization{})).To(Succeed())

			window := dynamo.ZeroData(tini, 1, 1)
			Expect(sim.Reset(&window)).To(Succeed())

			for i := 0; i < 40; i++ {
				u, info, err := ctrl.Solve(ctx, window, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Status.String()).To(Equal("solved"))

				_, err = sim.ApplyInput(mat.DenseCopyOf(u.Slice(0, 1, 0, 1)), 0)
				Expect(err).NotTo(HaveOccurred())
				window, err = sim.LastSamples(tini)
				Expect(err).NotTo(HaveOccurred())
			}

			all := sim.AllSamples()
			Expect(all.Len()).To(Equal(tini + 40))
			last := all.Y.At(all.Len()-1, 0)
			// the input penalty leaves a small steady-state offset
			Expect(math.Abs(last - 0.5)).To(BeNumerically("<", 0.05))
			Expect(mat.Max(all.U)).To(BeNumerically("<=", 1+1e-3))
		})
	})
})
