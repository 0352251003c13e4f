package config

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/san-kum/safereach/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt         = 0.05
	DefaultNSafe      = 5
	DefaultR          = 1
	DefaultBetaSafety = 2.0
	DefaultVariance   = 1e-4
	DefaultGPSamples  = 150
)

type Config struct {
	Model      string  `yaml:"model"`
	Backend    string  `yaml:"backend"`
	Integrator string  `yaml:"integrator"`
	Dt         float64 `yaml:"dt"`

	// NSafe is the number of feedback laws in the safety horizon. NPerf and
	// R describe the surrounding MPC loop: R is how many of the safe steps
	// are committed before replanning.
	NSafe      int     `yaml:"n_safe"`
	NPerf      int     `yaml:"n_perf"`
	R          int     `yaml:"r"`
	BetaSafety float64 `yaml:"beta_safety"`

	Seed    int64 `yaml:"seed"`
	Verbose int   `yaml:"verbose"`

	Params          map[string]float64 `yaml:"params,omitempty"`
	Lipschitz       LipschitzConfig    `yaml:"lipschitz"`
	InitState       InitStateConfig    `yaml:"init_state"`
	Controller      ControllerConfig   `yaml:"controller"`
	ProcessVariance []float64          `yaml:"process_variance"`
	SafeBox         SafeBoxConfig      `yaml:"safe_box,omitempty"`
	GP              GPConfig           `yaml:"gp,omitempty"`
	Linear          LinearConfig       `yaml:"linear,omitempty"`
}

type LipschitzConfig struct {
	Mean []float64 `yaml:"mean"`
	Std  []float64 `yaml:"std"`
}

// InitStateConfig is the start set. An empty ShapeDiag means a point.
type InitStateConfig struct {
	Center    []float64 `yaml:"center"`
	ShapeDiag []float64 `yaml:"shape_diag,omitempty"`
}

type ControllerConfig struct {
	Type   string      `yaml:"type"`
	Gains  [][]float64 `yaml:"gains,omitempty"`
	Target []float64   `yaml:"target,omitempty"`
	Offset []float64   `yaml:"offset,omitempty"`
	// Params are applied to controllers that expose tunable parameters.
	Params map[string]float64 `yaml:"params,omitempty"`
}

type SafeBoxConfig struct {
	Lower []float64 `yaml:"lower,omitempty"`
	Upper []float64 `yaml:"upper,omitempty"`
}

// GPConfig controls the GP backend: Samples transitions are drawn from the
// simulated system inside [SampleLower, SampleUpper] over z = [x; u].
type GPConfig struct {
	Samples        int       `yaml:"samples,omitempty"`
	LengthScales   []float64 `yaml:"length_scales,omitempty"`
	SignalVariance float64   `yaml:"signal_variance,omitempty"`
	Noise          float64   `yaml:"noise,omitempty"`
	SampleLower    []float64 `yaml:"sample_lower,omitempty"`
	SampleUpper    []float64 `yaml:"sample_upper,omitempty"`
}

// LinearConfig is the affine increment model A·x + B·u + C.
type LinearConfig struct {
	A [][]float64 `yaml:"a,omitempty"`
	B [][]float64 `yaml:"b,omitempty"`
	C []float64   `yaml:"c,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "pendulum",
		Backend:    "simulated",
		Integrator: "rk4",
		Dt:         DefaultDt,
		NSafe:      DefaultNSafe,
		R:          DefaultR,
		BetaSafety: DefaultBetaSafety,
		Lipschitz: LipschitzConfig{
			Mean: []float64{0.05, 0.5},
			Std:  []float64{0, 0},
		},
		InitState: InitStateConfig{
			Center:    []float64{0.2, 0},
			ShapeDiag: []float64{0.01, 0.01},
		},
		Controller:      ControllerConfig{Type: "lqr"},
		ProcessVariance: []float64{DefaultVariance, DefaultVariance},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StateDim returns the state dimension implied by the model, or 0 for an
// unknown model.
func (c *Config) StateDim() int {
	switch c.Model {
	case "pendulum":
		return 2
	case "cartpole":
		return 4
	case "linear":
		return len(c.Linear.A)
	}
	return 0
}

// ControlDim returns the input dimension implied by the model.
func (c *Config) ControlDim() int {
	switch c.Model {
	case "pendulum", "cartpole":
		return 1
	case "linear":
		if len(c.Linear.B) == 0 {
			return 0
		}
		return len(c.Linear.B[0])
	}
	return 0
}

// Validate checks ranges and that every vector matches the model's
// dimensions.
func (c *Config) Validate() error {
	ns, nu := c.StateDim(), c.ControlDim()
	if ns == 0 {
		return fmt.Errorf("unknown model: %q", c.Model)
	}
	if nu == 0 {
		return fmt.Errorf("%w: model %s has no inputs", dynamo.ErrDimensionMismatch, c.Model)
	}

	switch {
	case !(c.Dt > 0):
		return fmt.Errorf("%w: dt must be positive, got %v", dynamo.ErrParameterBounds, c.Dt)
	case c.NSafe < 1:
		return fmt.Errorf("%w: n_safe must be at least 1, got %d", dynamo.ErrParameterBounds, c.NSafe)
	case c.NPerf < 0:
		return fmt.Errorf("%w: n_perf must be non-negative, got %d", dynamo.ErrParameterBounds, c.NPerf)
	case c.R < 1 || c.R > c.NSafe:
		return fmt.Errorf("%w: r must be in [1, n_safe], got %d", dynamo.ErrParameterBounds, c.R)
	case !(c.BetaSafety > 0):
		return fmt.Errorf("%w: beta_safety must be positive, got %v", dynamo.ErrParameterBounds, c.BetaSafety)
	}

	vectors := []struct {
		name string
		v    []float64
		n    int
		opt  bool
	}{
		{"lipschitz.mean", c.Lipschitz.Mean, ns, false},
		{"lipschitz.std", c.Lipschitz.Std, ns, false},
		{"init_state.center", c.InitState.Center, ns, false},
		{"init_state.shape_diag", c.InitState.ShapeDiag, ns, true},
		{"process_variance", c.ProcessVariance, ns, false},
		{"safe_box.lower", c.SafeBox.Lower, ns, true},
		{"safe_box.upper", c.SafeBox.Upper, ns, true},
		{"controller.target", c.Controller.Target, ns, true},
		{"controller.offset", c.Controller.Offset, nu, true},
	}
	for _, vec := range vectors {
		if vec.opt && len(vec.v) == 0 {
			continue
		}
		if len(vec.v) != vec.n {
			return fmt.Errorf("%w: %s has %d entries, want %d", dynamo.ErrDimensionMismatch, vec.name, len(vec.v), vec.n)
		}
	}
	for _, vec := range vectors[:2] {
		if slices.ContainsFunc(vec.v, func(x float64) bool { return x < 0 }) {
			return fmt.Errorf("%w: %s must be non-negative", dynamo.ErrParameterBounds, vec.name)
		}
	}
	if slices.ContainsFunc(c.InitState.ShapeDiag, func(x float64) bool { return x < 0 }) {
		return fmt.Errorf("%w: init_state.shape_diag must be non-negative", dynamo.ErrNotPSD)
	}
	if (len(c.SafeBox.Lower) == 0) != (len(c.SafeBox.Upper) == 0) {
		return fmt.Errorf("%w: safe_box needs both bounds", dynamo.ErrDimensionMismatch)
	}
	for i := range c.SafeBox.Lower {
		if c.SafeBox.Lower[i] > c.SafeBox.Upper[i] {
			return fmt.Errorf("%w: safe_box lower > upper in dim %d", dynamo.ErrParameterBounds, i)
		}
	}

	if c.Model == "linear" {
		if c.Backend == "gp" {
			return fmt.Errorf("gp backend needs a physics model, got %q", c.Model)
		}
		return c.validateLinear(ns, nu)
	}
	switch c.Backend {
	case "simulated", "":
		return nil
	case "gp":
		return c.validateGP(ns, nu)
	}
	return fmt.Errorf("unknown backend: %q", c.Backend)
}

func (c *Config) validateLinear(ns, nu int) error {
	for i, row := range c.Linear.A {
		if len(row) != ns {
			return fmt.Errorf("%w: linear.a row %d has %d entries, want %d", dynamo.ErrDimensionMismatch, i, len(row), ns)
		}
	}
	if len(c.Linear.B) != ns {
		return fmt.Errorf("%w: linear.b has %d rows, want %d", dynamo.ErrDimensionMismatch, len(c.Linear.B), ns)
	}
	for i, row := range c.Linear.B {
		if len(row) != nu {
			return fmt.Errorf("%w: linear.b row %d has %d entries, want %d", dynamo.ErrDimensionMismatch, i, len(row), nu)
		}
	}
	if len(c.Linear.C) != 0 && len(c.Linear.C) != ns {
		return fmt.Errorf("%w: linear.c has %d entries, want %d", dynamo.ErrDimensionMismatch, len(c.Linear.C), ns)
	}
	return nil
}

func (c *Config) validateGP(ns, nu int) error {
	g := c.GP
	if g.Samples < 1 {
		return fmt.Errorf("%w: gp.samples must be at least 1, got %d", dynamo.ErrParameterBounds, g.Samples)
	}
	if len(g.LengthScales) != ns+nu {
		return fmt.Errorf("%w: gp.length_scales has %d entries, want %d", dynamo.ErrDimensionMismatch, len(g.LengthScales), ns+nu)
	}
	if len(g.SampleLower) != ns+nu || len(g.SampleUpper) != ns+nu {
		return fmt.Errorf("%w: gp sampling box must have %d entries", dynamo.ErrDimensionMismatch, ns+nu)
	}
	if !(g.SignalVariance > 0) || g.Noise < 0 {
		return fmt.Errorf("%w: gp signal_variance must be positive and noise non-negative", dynamo.ErrParameterBounds)
	}
	return nil
}

// LogLevel maps Verbose to a slog level: warnings only by default, info at 1,
// debug from 2 on.
func (c *Config) LogLevel() slog.Level {
	switch {
	case c.Verbose >= 2:
		return slog.LevelDebug
	case c.Verbose == 1:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	out.Lipschitz.Mean = slices.Clone(c.Lipschitz.Mean)
	out.Lipschitz.Std = slices.Clone(c.Lipschitz.Std)
	out.InitState.Center = slices.Clone(c.InitState.Center)
	out.InitState.ShapeDiag = slices.Clone(c.InitState.ShapeDiag)
	out.Controller.Gains = cloneRows(c.Controller.Gains)
	out.Controller.Target = slices.Clone(c.Controller.Target)
	out.Controller.Offset = slices.Clone(c.Controller.Offset)
	out.Controller.Params = maps.Clone(c.Controller.Params)
	out.ProcessVariance = slices.Clone(c.ProcessVariance)
	out.SafeBox.Lower = slices.Clone(c.SafeBox.Lower)
	out.SafeBox.Upper = slices.Clone(c.SafeBox.Upper)
	out.GP.LengthScales = slices.Clone(c.GP.LengthScales)
	out.GP.SampleLower = slices.Clone(c.GP.SampleLower)
	out.GP.SampleUpper = slices.Clone(c.GP.SampleUpper)
	out.Linear.A = cloneRows(c.Linear.A)
	out.Linear.B = cloneRows(c.Linear.B)
	out.Linear.C = slices.Clone(c.Linear.C)
	return &out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}
