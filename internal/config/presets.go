package config

import (
	"maps"
	"slices"
)

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"small": {
			Model: "pendulum", Backend: "simulated", Integrator: "rk4", Dt: 0.05,
			NSafe: 5, R: 1, BetaSafety: 2.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.05, 0.5}, Std: []float64{0, 0}},
			InitState:       InitStateConfig{Center: []float64{0.2, 0}, ShapeDiag: []float64{0.01, 0.01}},
			Controller:      ControllerConfig{Type: "lqr"},
			ProcessVariance: []float64{1e-4, 1e-4},
			SafeBox:         SafeBoxConfig{Lower: []float64{-1, -3}, Upper: []float64{1, 3}},
		},
		"large": {
			Model: "pendulum", Backend: "simulated", Integrator: "rk4", Dt: 0.05,
			NSafe: 10, R: 2, BetaSafety: 2.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.05, 0.5}, Std: []float64{0, 0}},
			InitState:       InitStateConfig{Center: []float64{1.5, 0}, ShapeDiag: []float64{0.05, 0.05}},
			Controller:      ControllerConfig{Type: "lqr"},
			ProcessVariance: []float64{1e-4, 1e-4},
			SafeBox:         SafeBoxConfig{Lower: []float64{-3, -6}, Upper: []float64{3, 6}},
		},
		"gp": {
			Model: "pendulum", Backend: "gp", Integrator: "rk4", Dt: 0.05,
			NSafe: 5, R: 1, BetaSafety: 2.0,
			Seed:            1,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.1, 0.6}, Std: []float64{0.05, 0.05}},
			InitState:       InitStateConfig{Center: []float64{0.2, 0}, ShapeDiag: []float64{0.01, 0.01}},
			Controller:      ControllerConfig{Type: "lqr"},
			ProcessVariance: []float64{1e-5, 1e-5},
			SafeBox:         SafeBoxConfig{Lower: []float64{-1, -3}, Upper: []float64{1, 3}},
			GP: GPConfig{
				Samples:        DefaultGPSamples,
				LengthScales:   []float64{0.8, 1.5, 4},
				SignalVariance: 0.1,
				Noise:          1e-5,
				SampleLower:    []float64{-1, -2, -10},
				SampleUpper:    []float64{1, 2, 10},
			},
		},
	},
	"cartpole": {
		"rl_nsafe4": {
			Model: "cartpole", Backend: "simulated", Integrator: "rk4", Dt: 0.05,
			NSafe: 4, NPerf: 0, R: 1, BetaSafety: 2.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.05, 0.2, 0.05, 0.6}, Std: []float64{0, 0, 0, 0}},
			InitState:       InitStateConfig{Center: []float64{0, 0, 0.1, 0}, ShapeDiag: []float64{1e-3, 1e-3, 1e-3, 1e-3}},
			Controller:      ControllerConfig{Type: "lqr"},
			ProcessVariance: []float64{1e-5, 1e-5, 1e-5, 1e-5},
			SafeBox:         SafeBoxConfig{Lower: []float64{-2, -3, -0.5, -3}, Upper: []float64{2, 3, 0.5, 3}},
		},
		"balance": {
			Model: "cartpole", Backend: "simulated", Integrator: "rk4", Dt: 0.02,
			NSafe: 10, R: 1, BetaSafety: 1.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.02, 0.1, 0.02, 0.3}, Std: []float64{0, 0, 0, 0}},
			InitState:       InitStateConfig{Center: []float64{0, 0, 0.05, 0}},
			Controller:      ControllerConfig{Type: "lqr"},
			ProcessVariance: []float64{1e-6, 1e-6, 1e-6, 1e-6},
			SafeBox:         SafeBoxConfig{Lower: []float64{-2, -3, -0.5, -3}, Upper: []float64{2, 3, 0.5, 3}},
		},
		"freefall": {
			Model: "cartpole", Backend: "simulated", Integrator: "rk4", Dt: 0.05,
			NSafe: 6, R: 1, BetaSafety: 2.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0.05, 0.2, 0.05, 0.6}, Std: []float64{0, 0, 0, 0}},
			InitState:       InitStateConfig{Center: []float64{0, 0, 0.1, 0}, ShapeDiag: []float64{1e-3, 1e-3, 1e-3, 1e-3}},
			Controller:      ControllerConfig{Type: "none"},
			ProcessVariance: []float64{1e-5, 1e-5, 1e-5, 1e-5},
			SafeBox:         SafeBoxConfig{Lower: []float64{-2, -3, -0.5, -3}, Upper: []float64{2, 3, 0.5, 3}},
		},
	},
	"linear": {
		"constant": {
			Model: "linear", Backend: "simulated", Dt: 1,
			NSafe: 1, R: 1, BetaSafety: 1.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0, 0}, Std: []float64{0, 0}},
			InitState:       InitStateConfig{Center: []float64{0, 0}, ShapeDiag: []float64{0.04, 0.04}},
			Controller:      ControllerConfig{Type: "none"},
			ProcessVariance: []float64{0.01, 0.01},
			Linear: LinearConfig{
				A: [][]float64{{0, 0}, {0, 0}},
				B: [][]float64{{0}, {0}},
				C: []float64{0.1, -0.05},
			},
		},
		"damped": {
			Model: "linear", Backend: "simulated", Dt: 1,
			NSafe: 8, R: 2, BetaSafety: 2.0,
			Lipschitz:       LipschitzConfig{Mean: []float64{0, 0}, Std: []float64{0, 0}},
			InitState:       InitStateConfig{Center: []float64{1, 0}, ShapeDiag: []float64{0.01, 0.01}},
			Controller:      ControllerConfig{Type: "affine", Gains: [][]float64{{-0.5, -0.5}}},
			ProcessVariance: []float64{1e-4, 1e-4},
			SafeBox:         SafeBoxConfig{Lower: []float64{-2, -2}, Upper: []float64{2, 2}},
			Linear: LinearConfig{
				A: [][]float64{{-0.1, 0.1}, {0, -0.2}},
				B: [][]float64{{0}, {0.1}},
			},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(modelPresets))
}

// ListModels returns the models that have presets.
func ListModels() []string {
	return slices.Sorted(maps.Keys(Presets))
}
