package experiment

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/logger"
	"github.com/san-kum/deepc/internal/sim"
)

// SweepOutcome is the result of one training length. Err holds the
// setup or closed-loop failure of that run, e.g. ErrInsufficientData
// for a T too short for Tini+horizon.
type SweepOutcome struct {
	Length int
	Result *sim.Result
	Err    error
}

// Sweep runs one independent experiment per training length in
// parallel. Individual failures are reported per outcome; the returned
// error is only set when ctx ends the sweep.
func Sweep(ctx context.Context, cfg *config.Config, registry *Registry, lengths []int) ([]SweepOutcome, error) {
	outcomes := make([]SweepOutcome, len(lengths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, T := range lengths {
		g.Go(func() error {
			runCfg := cfg.Clone()
			runCfg.Data.Length = T
			res, err := runOne(gctx, runCfg, registry)
			outcomes[i] = SweepOutcome{Length: T, Result: res, Err: err}
			if err != nil {
				logger.Log.Infow("sweep run failed", "length", T, "error", err)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func runOne(ctx context.Context, cfg *config.Config, registry *Registry) (*sim.Result, error) {
	exp, err := New(cfg, registry)
	if err != nil {
		return nil, err
	}
	if err := exp.Setup(registry.DefaultMetrics(cfg)...); err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}
