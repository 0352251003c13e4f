package experiment

import (
	"fmt"
	"maps"
	"slices"

	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/control"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/integrators"
	"github.com/san-kum/safereach/internal/metrics"
	"github.com/san-kum/safereach/internal/models"
	"github.com/san-kum/safereach/internal/physics"
	"gonum.org/v1/gonum/mat"
)

type Registry struct {
	systems map[string]func() dynamo.System
}

func NewRegistry() *Registry {
	r := &Registry{
		systems: make(map[string]func() dynamo.System),
	}

	r.systems["pendulum"] = func() dynamo.System { return physics.NewPendulum() }
	r.systems["cartpole"] = func() dynamo.System { return physics.NewCartPole() }

	return r
}

func (r *Registry) GetSystem(name string) (dynamo.System, error) {
	fn, ok := r.systems[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

// ListModels returns the physics systems plus the linear model.
func (r *Registry) ListModels() []string {
	names := append(slices.Collect(maps.Keys(r.systems)), "linear")
	slices.Sort(names)
	return names
}

// BuildModel returns the predictive model described by cfg. The GP backend
// samples cfg.GP.Samples transitions from the simulated system and
// conditions a GP on them.
func (r *Registry) BuildModel(cfg *config.Config) (dynamo.Predictive, error) {
	if cfg.Model == "linear" {
		return linearModel(cfg)
	}

	sys, err := r.GetSystem(cfg.Model)
	if err != nil {
		return nil, err
	}
	if c, ok := sys.(dynamo.Configurable); ok {
		for _, name := range slices.Sorted(maps.Keys(cfg.Params)) {
			if err := c.SetParam(name, cfg.Params[name]); err != nil {
				return nil, fmt.Errorf("model %s: %w", cfg.Model, err)
			}
		}
	} else if len(cfg.Params) > 0 {
		return nil, fmt.Errorf("model %s has no tunable params", cfg.Model)
	}

	newInteg, ok := integrators.ByName(cfg.Integrator)
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", cfg.Integrator)
	}
	sim, err := models.NewSimulated(sys, newInteg, cfg.Dt, cfg.ProcessVariance)
	if err != nil {
		return nil, err
	}
	if cfg.Backend != "gp" {
		return sim, nil
	}

	x, y, err := models.SampleTransitions(sim, cfg.GP.Samples, cfg.GP.SampleLower, cfg.GP.SampleUpper, uint64(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("sample training data: %w", err)
	}
	kernel := models.RBF{LengthScales: cfg.GP.LengthScales, SignalVariance: cfg.GP.SignalVariance}
	return models.FitGP(x, y, kernel, cfg.GP.Noise, sys.ControlDim())
}

func linearModel(cfg *config.Config) (*models.Linear, error) {
	ns, nu := cfg.StateDim(), cfg.ControlDim()
	a := mat.NewDense(ns, ns, nil)
	for i, row := range cfg.Linear.A {
		a.SetRow(i, row)
	}
	b := mat.NewDense(ns, nu, nil)
	for i, row := range cfg.Linear.B {
		b.SetRow(i, row)
	}
	var c *mat.VecDense
	if len(cfg.Linear.C) > 0 {
		c = mat.NewVecDense(ns, slices.Clone(cfg.Linear.C))
	}
	return models.NewLinear(a, b, c, mat.NewVecDense(ns, slices.Clone(cfg.ProcessVariance)))
}

// BuildLaws expands the configured controller into cfg.NSafe affine laws.
// An lqr controller without gains uses the stored gains for the model.
func (r *Registry) BuildLaws(cfg *config.Config) ([]dynamo.AffineLaw, error) {
	gains := cfg.Controller.Gains
	if len(gains) == 0 && cfg.Controller.Type == "lqr" {
		g, ok := control.DefaultGains(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("no stored lqr gains for model %s", cfg.Model)
		}
		gains = g
	}
	policy, err := control.ByName(cfg.Controller.Type, gains, cfg.Controller.Target, cfg.Controller.Offset, cfg.ControlDim())
	if err != nil {
		return nil, err
	}
	if c, ok := policy.(dynamo.Configurable); ok {
		for _, name := range slices.Sorted(maps.Keys(cfg.Controller.Params)) {
			if err := c.SetParam(name, cfg.Controller.Params[name]); err != nil {
				return nil, fmt.Errorf("controller %s: %w", cfg.Controller.Type, err)
			}
		}
	} else if len(cfg.Controller.Params) > 0 {
		return nil, fmt.Errorf("controller %s has no tunable params", cfg.Controller.Type)
	}
	return control.Repeat(policy, cfg.StateDim(), cfg.NSafe)
}

func (r *Registry) DefaultMetrics(cfg *config.Config) []metrics.Metric {
	return metrics.Defaults(cfg.SafeBox.Lower, cfg.SafeBox.Upper)
}
