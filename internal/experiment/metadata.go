package experiment

import (
	"github.com/san-kum/deepc/internal/config"
	"github.com/san-kum/deepc/internal/sim"
	"github.com/san-kum/deepc/internal/storage"
)

// Metadata describes a finished run for storage. runErr marks the run
// as failed; res may be partial.
func Metadata(cfg *config.Config, preset string, res *sim.Result, runErr error) storage.RunMetadata {
	meta := storage.RunMetadata{
		Preset:     preset,
		Model:      cfg.Plant.Model,
		Seed:       cfg.Plant.Seed,
		DataLength: cfg.Data.Length,
		Tini:       cfg.Controller.Tini,
		Horizon:    cfg.Controller.Horizon,
		S:          cfg.Controller.S,
		LambdaG:    cfg.Controller.LambdaG,
		LambdaY:    cfg.Controller.LambdaY,
		LambdaU:    cfg.Controller.LambdaU,
		Status:     "completed",
		Metrics:    map[string]float64{},
	}
	if res != nil {
		meta.Iterations = res.StepsTaken
		meta.Metrics = res.Metrics
	}
	if runErr != nil {
		meta.Status = "failed"
		meta.Error = runErr.Error()
	}
	return meta
}
