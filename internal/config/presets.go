package config

import "sort"

// Presets are complete configurations selectable by name.
var Presets = map[string]func() *Config{
	// closed-loop tracking of the quadruple tank at 0.5
	"fourtank": DefaultConfig,

	"fourtank-noisy": func() *Config {
		cfg := DefaultConfig()
		cfg.Data.Length = 200
		cfg.Data.NoiseStd = 0.002
		cfg.Controller.LambdaG = 1
		cfg.Controller.LambdaY = 1e4
		cfg.Experiment.NoiseStd = 0.002
		return cfg
	},

	"fourtank-sweep": func() *Config {
		cfg := DefaultConfig()
		cfg.Data.Lengths = []int{50, 100, 200, 400}
		return cfg
	},

	"scalar": func() *Config {
		cfg := DefaultConfig()
		cfg.Plant.Model = "scalar"
		cfg.Data.Length = 50
		cfg.Controller.Tini = 2
		cfg.Controller.Horizon = 5
		cfg.Experiment.Steps = 40
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
