package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/safereach/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "pendulum" {
		t.Errorf("expected model pendulum, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.NSafe <= 0 {
		t.Error("n_safe should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("cartpole", "rl_nsafe4")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.NSafe != 4 || cfg.NPerf != 0 || cfg.R != 1 || cfg.BetaSafety != 2 {
		t.Errorf("unexpected horizon settings: %+v", cfg)
	}
}

func TestGetPreset_IsCopy(t *testing.T) {
	cfg := GetPreset("pendulum", "small")
	cfg.InitState.Center[0] = 99
	cfg.Lipschitz.Mean[1] = 99

	again := GetPreset("pendulum", "small")
	if again.InitState.Center[0] == 99 || again.Lipschitz.Mean[1] == 99 {
		t.Error("mutating a preset copy changed the stored preset")
	}
	if diff := cmp.Diff(Presets["pendulum"]["small"], again); diff != "" {
		t.Errorf("preset copy differs (-stored +copy):\n%s", diff)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("pendulum", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "small")
	if cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("pendulum")
	if diff := cmp.Diff([]string{"gp", "large", "small"}, presets); diff != "" {
		t.Errorf("pendulum presets (-want +got):\n%s", diff)
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent model")
	}

	if diff := cmp.Diff([]string{"cartpole", "linear", "pendulum"}, ListModels()); diff != "" {
		t.Errorf("models (-want +got):\n%s", diff)
	}
}

func TestPresetsValidate(t *testing.T) {
	for model, presets := range Presets {
		for name, cfg := range presets {
			t.Run(model+"/"+name, func(t *testing.T) {
				if err := cfg.Validate(); err != nil {
					t.Errorf("preset does not validate: %v", err)
				}
				if cfg.Model != model {
					t.Errorf("preset filed under %s has model %s", model, cfg.Model)
				}
			})
		}
	}
}

func TestDims(t *testing.T) {
	tests := []struct {
		model  string
		ns, nu int
	}{
		{"pendulum", 2, 1},
		{"cartpole", 4, 1},
		{"unknown", 0, 0},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Model = tt.model
		if cfg.StateDim() != tt.ns || cfg.ControlDim() != tt.nu {
			t.Errorf("model %s: expected dims %d/%d, got %d/%d", tt.model, tt.ns, tt.nu, cfg.StateDim(), cfg.ControlDim())
		}
	}

	lin := GetPreset("linear", "constant")
	if lin.StateDim() != 2 || lin.ControlDim() != 1 {
		t.Errorf("linear preset dims %d/%d", lin.StateDim(), lin.ControlDim())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero dt", func(c *Config) { c.Dt = 0 }, dynamo.ErrParameterBounds},
		{"zero horizon", func(c *Config) { c.NSafe = 0 }, dynamo.ErrParameterBounds},
		{"negative n_perf", func(c *Config) { c.NPerf = -1 }, dynamo.ErrParameterBounds},
		{"r beyond horizon", func(c *Config) { c.R = c.NSafe + 1 }, dynamo.ErrParameterBounds},
		{"zero beta", func(c *Config) { c.BetaSafety = 0 }, dynamo.ErrParameterBounds},
		{"short lipschitz", func(c *Config) { c.Lipschitz.Mean = []float64{1} }, dynamo.ErrDimensionMismatch},
		{"negative lipschitz", func(c *Config) { c.Lipschitz.Std = []float64{0, -1} }, dynamo.ErrParameterBounds},
		{"short center", func(c *Config) { c.InitState.Center = []float64{0, 0, 0} }, dynamo.ErrDimensionMismatch},
		{"negative shape", func(c *Config) { c.InitState.ShapeDiag = []float64{-1, 0} }, dynamo.ErrNotPSD},
		{"short variance", func(c *Config) { c.ProcessVariance = nil }, dynamo.ErrDimensionMismatch},
		{"half safe box", func(c *Config) { c.SafeBox = SafeBoxConfig{Lower: []float64{0, 0}} }, dynamo.ErrDimensionMismatch},
		{"inverted safe box", func(c *Config) {
			c.SafeBox = SafeBoxConfig{Lower: []float64{1, 0}, Upper: []float64{0, 1}}
		}, dynamo.ErrParameterBounds},
		{"bad offset", func(c *Config) { c.Controller.Offset = []float64{1, 2} }, dynamo.ErrDimensionMismatch},
		{"gp without samples", func(c *Config) { c.Backend = "gp" }, dynamo.ErrParameterBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_Unknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "lorenz"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown model")
	}

	cfg = DefaultConfig()
	cfg.Backend = "neural"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = GetPreset("linear", "constant")
	cfg.Backend = "gp"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for gp on a linear model")
	}

	cfg = GetPreset("linear", "constant")
	cfg.Linear.B = [][]float64{{0}}
	if err := cfg.Validate(); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gp.yaml")
	want := GetPreset("pendulum", "gp")
	want.Params = map[string]float64{"damping": 0.2}

	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("n_safe: 3\nbeta_safety: 1.5\ninit_state:\n  center: [0.5, 0.1]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.NSafe = 3
	want.BetaSafety = 1.5
	want.InitState.Center = []float64{0.5, 0.1}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("n_safe: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	for verbose, want := range map[int]slog.Level{0: slog.LevelWarn, 1: slog.LevelInfo, 2: slog.LevelDebug, 5: slog.LevelDebug} {
		cfg.Verbose = verbose
		if got := cfg.LogLevel(); got != want {
			t.Errorf("verbose %d: got %v, want %v", verbose, got, want)
		}
	}
}
