package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/experiment"
)

func TestNewGridSearchValidates(t *testing.T) {
	_, err := NewGridSearch([]string{"lambda_g"}, nil)
	assert.Error(t, err)
	_, err = NewGridSearch([]string{"lambda_g"}, [][]float64{{}})
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	base := config.DefaultConfig()
	cfg, err := Apply(base, map[string]float64{"lambda_g": 2, "tini": 6})
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Controller.LambdaG)
	assert.Equal(t, 6, cfg.Controller.Tini)
	assert.Equal(t, 0.0, base.Controller.LambdaG)

	_, err = Apply(base, map[string]float64{"gain": 1})
	assert.Error(t, err)
	assert.Contains(t, Tunable(), "lambda_y")
}

func TestSearchVisitsWholeGrid(t *testing.T) {
	g, err := NewGridSearch([]string{"input_weight", "lambda_g"}, [][]float64{{0.01, 1}, {0, 0.1, 1}})
	require.NoError(t, err)

	base := config.GetPreset("scalar")
	base.Experiment.Steps = 20
	build := ExperimentBuilder(base, experiment.NewRegistry())

	best, val, trials, err := g.Search(context.Background(), build, "tracking_rms")
	require.NoError(t, err)
	assert.Len(t, trials, 6)
	for _, tr := range trials {
		require.NoError(t, tr.Err)
		assert.GreaterOrEqual(t, tr.Value, val)
	}
	// a cheaper input tracks the reference more closely
	assert.Equal(t, 0.01, best["input_weight"])
}

func TestSearchAllFailing(t *testing.T) {
	g, err := NewGridSearch([]string{"lambda_g"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, trials, err := g.Search(context.Background(), func(map[string]float64) (*experiment.Experiment, error) {
		return nil, boom
	}, "tracking_rms")
	assert.Error(t, err)
	require.Len(t, trials, 2)
	assert.ErrorIs(t, trials[0].Err, boom)
}

func TestSearchCancelled(t *testing.T) {
	g, err := NewGridSearch([]string{"lambda_g"}, [][]float64{{1}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err = g.Search(ctx, nil, "tracking_rms")
	assert.ErrorIs(t, err, context.Canceled)
}
