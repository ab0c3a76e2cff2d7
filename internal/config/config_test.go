package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Plant.Model != "fourtank" {
		t.Errorf("expected model fourtank, got %s", cfg.Plant.Model)
	}
	if cfg.Controller.Tini != 4 || cfg.Controller.Horizon != 20 {
		t.Errorf("unexpected tini/horizon %d/%d", cfg.Controller.Tini, cfg.Controller.Horizon)
	}
	if cfg.Iterations() != 100 {
		t.Errorf("expected 100 iterations, got %d", cfg.Iterations())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.S = 3
	if cfg.Iterations() != 33 {
		t.Errorf("expected 33 iterations, got %d", cfg.Iterations())
	}
	cfg.Controller.S = 0
	if cfg.Iterations() != 0 {
		t.Errorf("expected 0 iterations, got %d", cfg.Iterations())
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.Tini = 0
	cfg.Controller.S = 30
	cfg.Controller.LambdaY = -1
	cfg.Data.Excitation = "chirp"
	cfg.Solver.Alpha = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if n := len(multierr.Errors(err)); n != 5 {
		t.Errorf("expected 5 errors, got %d: %v", n, err)
	}
}

func TestValidateCustomModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plant.Model = CustomModel
	if err := cfg.Validate(); err == nil {
		t.Error("custom model without matrices should fail")
	}

	cfg.Plant.A = [][]float64{{0.9}}
	cfg.Plant.B = [][]float64{{0.5}}
	cfg.Plant.C = [][]float64{{1}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Controller.Tini = 6
	cfg.Controller.LambdaG = 0.5
	cfg.Policy.Reference = []float64{0.4, 0.6}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "lambda_g: 0.5") {
		t.Errorf("regularization should be inlined under controller:\n%s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Controller.Tini != 6 || loaded.Controller.LambdaG != 0.5 {
		t.Errorf("round trip lost controller fields: %+v", loaded.Controller)
	}
	if len(loaded.Policy.Reference) != 2 {
		t.Errorf("expected two references, got %v", loaded.Policy.Reference)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("controller:\n  horizon: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Controller.Horizon != 8 {
		t.Errorf("expected horizon 8, got %d", cfg.Controller.Horizon)
	}
	if cfg.Controller.Tini != DefaultTini || cfg.Solver.MaxIter == 0 {
		t.Error("unset fields should keep their defaults")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("scalar")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Plant.Model != "scalar" {
		t.Errorf("expected scalar plant, got %s", cfg.Plant.Model)
	}

	// presets are rebuilt on every call
	cfg.Controller.Tini = 99
	if GetPreset("scalar").Controller.Tini == 99 {
		t.Error("preset was mutated through a returned copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	if len(presets) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(presets))
	}
	for _, name := range presets {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s does not validate: %v", name, err)
		}
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cp := cfg.Clone()
	cp.Policy.Reference[0] = 9
	if cfg.Policy.Reference[0] == 9 {
		t.Error("clone shares the reference slice")
	}
}
