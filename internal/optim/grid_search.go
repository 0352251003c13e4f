package optim

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/control"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/experiment"
)

// Setter applies one grid value to a config.
type Setter func(cfg *config.Config, v float64) error

// Setters are the tunable parameters.
var Setters = map[string]Setter{
	"beta_safety":     setBeta,
	"gain_scale":      scaleGains,
	"lipschitz_scale": scaleLipschitz,
}

func setBeta(cfg *config.Config, v float64) error {
	cfg.BetaSafety = v
	return nil
}

// scaleGains multiplies the controller gains and offset. An lqr controller
// without explicit gains scales the stored gains of its model.
func scaleGains(cfg *config.Config, v float64) error {
	gains := cfg.Controller.Gains
	if len(gains) == 0 && cfg.Controller.Type == "lqr" {
		g, ok := control.DefaultGains(cfg.Model)
		if !ok {
			return fmt.Errorf("no stored lqr gains for model %s", cfg.Model)
		}
		gains = g
	}
	scaled := make([][]float64, len(gains))
	for i, row := range gains {
		scaled[i] = make([]float64, len(row))
		for j, g := range row {
			scaled[i][j] = v * g
		}
	}
	cfg.Controller.Gains = scaled
	for i := range cfg.Controller.Offset {
		cfg.Controller.Offset[i] *= v
	}
	return nil
}

func scaleLipschitz(cfg *config.Config, v float64) error {
	if v < 0 {
		return fmt.Errorf("%w: negative lipschitz scale %v", dynamo.ErrParameterBounds, v)
	}
	for i := range cfg.Lipschitz.Mean {
		cfg.Lipschitz.Mean[i] *= v
	}
	for i := range cfg.Lipschitz.Std {
		cfg.Lipschitz.Std[i] *= v
	}
	return nil
}

// ParamNames lists the tunable parameters.
func ParamNames() []string {
	return slices.Sorted(maps.Keys(Setters))
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters with %d ranges", dynamo.ErrDimensionMismatch, len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := Setters[name]; !ok {
			return nil, fmt.Errorf("unknown parameter %q (available: %v)", name, ParamNames())
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: empty range for %s", dynamo.ErrParameterBounds, name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Candidate is one evaluated grid point.
type Candidate struct {
	Params map[string]float64
	Value  float64
	Result *experiment.Result
}

// Search evaluates every grid point on a copy of base and returns the
// committed-safe candidate with the lowest value of metricName, plus how
// many points were evaluated.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string, opts ...experiment.Option) (*Candidate, int, error) {
	var best *Candidate
	evaluated := 0

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) error {
		cfg := base.Clone()
		for _, name := range g.paramNames {
			if err := Setters[name](cfg, params[name]); err != nil {
				return fmt.Errorf("%s=%v: %w", name, params[name], err)
			}
		}

		exp := experiment.New(cfg, opts...)
		if err := exp.Setup(); err != nil {
			return fmt.Errorf("%v: %w", params, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return fmt.Errorf("%v: %w", params, err)
		}
		evaluated++

		val, ok := result.Tube.Metrics[metricName]
		if !ok {
			return fmt.Errorf("unknown metric %q", metricName)
		}
		if !result.CommittedSafe || math.IsNaN(val) {
			return nil
		}
		if best == nil || val < best.Value {
			best = &Candidate{Params: maps.Clone(params), Value: val, Result: result}
		}
		return nil
	})
	if err != nil {
		return nil, evaluated, err
	}
	if best == nil {
		return nil, evaluated, fmt.Errorf("none of %d candidates is safe over the committed steps", evaluated)
	}
	return best, evaluated, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, eval func(map[string]float64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		return eval(current)
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := maps.Clone(current)
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, eval); err != nil {
			return err
		}
	}
	return nil
}
