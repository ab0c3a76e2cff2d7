package plant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

func scalarSystem(t *testing.T) *System {
	t.Helper()
	sys, err := NewSystem(
		mat.NewDense(1, 1, []float64{0.9}),
		mat.NewDense(1, 1, []float64{0.5}),
		mat.NewDense(1, 1, []float64{1}),
		nil, 1,
	)
	require.NoError(t, err)
	return sys
}

func TestNewSystemShapes(t *testing.T) {
	_, err := NewSystem(mat.NewDense(2, 3, nil), mat.NewDense(2, 1, nil), mat.NewDense(1, 2, nil), nil, 1)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = NewSystem(mat.NewDense(2, 2, nil), mat.NewDense(3, 1, nil), mat.NewDense(1, 2, nil), nil, 1)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = NewSystem(mat.NewDense(2, 2, nil), mat.NewDense(2, 1, nil), mat.NewDense(1, 2, nil), mat.NewDense(2, 2, nil), 1)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	sys, err := NewSystem(mat.NewDense(2, 2, nil), mat.NewDense(2, 1, nil), mat.NewDense(1, 2, nil), nil, 1)
	require.NoError(t, err)
	nx, nu, ny := sys.Dims()
	assert.Equal(t, []int{2, 1, 1}, []int{nx, nu, ny})
}

func TestApplyInputDynamics(t *testing.T) {
	sim, err := NewSimulator(scalarSystem(t))
	require.NoError(t, err)

	out, err := sim.ApplyInput(mat.NewDense(3, 1, []float64{1, 1, 1}), 0)
	require.NoError(t, err)

	// y0 = 0, x1 = 0.5, y1 = 0.5, x2 = 0.95, y2 = 0.95
	assert.InDeltaSlice(t, []float64{0, 0.5, 0.95}, mat.Col(nil, 0, out.Y), 1e-12)
	assert.InDeltaSlice(t, []float64{1.355}, sim.State(), 1e-12)
	assert.Equal(t, 3, sim.AllSamples().Len())
}

func TestApplyInputDeterministic(t *testing.T) {
	u := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		u.Set(i, 0, float64(i%3)-1)
	}

	a, err := NewSimulator(scalarSystem(t), WithInitialState([]float64{0.3}))
	require.NoError(t, err)
	b, err := NewSimulator(scalarSystem(t), WithInitialState([]float64{0.3}))
	require.NoError(t, err)

	ya, err := a.ApplyInput(u, 0)
	require.NoError(t, err)
	yb, err := b.ApplyInput(u, 0)
	require.NoError(t, err)

	assert.True(t, ya.Equal(yb), "noise-free runs must be bit-identical")
}

func TestApplyInputNoiseSeeded(t *testing.T) {
	u := mat.NewDense(10, 1, nil)

	a, err := NewSimulator(scalarSystem(t), WithSeed(7), WithNoise(NoiseBoth))
	require.NoError(t, err)
	b, err := NewSimulator(scalarSystem(t), WithSeed(7), WithNoise(NoiseBoth))
	require.NoError(t, err)

	ya, err := a.ApplyInput(u, 0.1)
	require.NoError(t, err)
	yb, err := b.ApplyInput(u, 0.1)
	require.NoError(t, err)

	assert.True(t, ya.Equal(yb), "equal seeds must reproduce noise")
	assert.NotZero(t, mat.Norm(ya.Y, 2))
}

func TestApplyInputErrors(t *testing.T) {
	sim, err := NewSimulator(scalarSystem(t))
	require.NoError(t, err)

	_, err = sim.ApplyInput(mat.NewDense(1, 1, nil), -0.1)
	assert.ErrorIs(t, err, dynamo.ErrInvalidNoise)

	_, err = sim.ApplyInput(mat.NewDense(1, 2, nil), 0)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	assert.Zero(t, sim.AllSamples().Len())
}

func TestResetAndWindow(t *testing.T) {
	sim, err := NewSimulator(scalarSystem(t))
	require.NoError(t, err)

	_, err = sim.ApplyInput(mat.NewDense(5, 1, []float64{1, 1, 1, 1, 1}), 0)
	require.NoError(t, err)

	initial := dynamo.ZeroData(2, 1, 1)
	require.NoError(t, sim.Reset(&initial))
	assert.Equal(t, 2, sim.AllSamples().Len())
	assert.Equal(t, []float64{0}, sim.State())

	_, err = sim.ApplyInput(mat.NewDense(3, 1, []float64{1, 0, -1}), 0)
	require.NoError(t, err)

	window, err := sim.LastSamples(2)
	require.NoError(t, err)
	tail, err := sim.AllSamples().Tail(2)
	require.NoError(t, err)
	assert.True(t, window.Equal(tail))

	_, err = sim.LastSamples(6)
	assert.ErrorIs(t, err, dynamo.ErrInsufficientHistory)

	bad := dynamo.ZeroData(2, 2, 1)
	assert.ErrorIs(t, sim.Reset(&bad), dynamo.ErrDimensionMismatch)
}

func TestParseNoiseMode(t *testing.T) {
	for in, want := range map[string]NoiseMode{"": NoiseMeasurement, "process": NoiseProcess, "both": NoiseBoth} {
		got, err := ParseNoiseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseNoiseMode("loud")
	assert.Error(t, err)
}
