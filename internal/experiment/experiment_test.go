package experiment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func setup(t *testing.T, cfg *config.Config) *Experiment {
	t.Helper()
	e := New(cfg)
	require.NoError(t, e.Setup())
	return e
}

func TestRunConstantModel(t *testing.T) {
	res, err := setup(t, config.GetPreset("linear", "constant")).Run(context.Background())
	require.NoError(t, err)

	final := res.Tube.Final()
	assert.InDelta(t, 0.1, final.Center.AtVec(0), 1e-12)
	assert.InDelta(t, -0.05, final.Center.AtVec(1), 1e-12)
	assert.True(t, mat.EqualApprox(final.Shape, mat.NewSymDense(2, []float64{0.09, 0, 0, 0.09}), 1e-12),
		"got %v", mat.Formatted(final.Shape))
	assert.Equal(t, -1, res.FirstViolation)
	assert.True(t, res.CommittedSafe)
}

func TestRunPresets(t *testing.T) {
	tests := []struct {
		model, preset string
		horizon       int
	}{
		{"pendulum", "small", 5},
		{"cartpole", "rl_nsafe4", 4},
		{"cartpole", "balance", 10},
		{"linear", "damped", 8},
	}

	for _, tt := range tests {
		t.Run(tt.model+"/"+tt.preset, func(t *testing.T) {
			cfg := config.GetPreset(tt.model, tt.preset)
			res, err := setup(t, cfg).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.horizon, res.Tube.Horizon())
			assert.Contains(t, res.Tube.Metrics, "max_semi_axis")
			assert.Contains(t, res.Tube.Metrics, "safety_violations")
			for i, step := range res.Tube.Steps {
				assert.Equal(t, cfg.StateDim(), step.Dim(), "step %d", i)
				assert.False(t, step.IsPoint(), "step %d", i)
			}
		})
	}
}

func TestRunGPBackend(t *testing.T) {
	cfg := config.GetPreset("pendulum", "gp")
	cfg.GP.Samples = 60

	res, err := setup(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.NSafe, res.Tube.Horizon())
	for _, v := range res.Tube.Metrics {
		assert.False(t, math.IsNaN(v))
	}
}

func TestGrowingUncertaintyTripsSafeBox(t *testing.T) {
	cfg := config.GetPreset("cartpole", "freefall")
	cfg.SafeBox.Lower = []float64{-1, -1, -0.11, -1}
	cfg.SafeBox.Upper = []float64{1, 1, 0.11, 1}

	res, err := setup(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.FirstViolation, 0)
	assert.Equal(t, res.FirstViolation >= cfg.R, res.CommittedSafe)
	assert.Positive(t, res.Tube.Metrics["safety_violations"])
}

func TestSweep(t *testing.T) {
	cfg := config.GetPreset("pendulum", "small")
	e := setup(t, cfg)

	results, err := e.Sweep(context.Background(), []float64{0, 0.5, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	base, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, mat.Equal(base.Tube.Final().Shape, results[2].Tube.Final().Shape))

	// Zero gain means zero input at every step.
	for _, u := range results[0].Tube.Actions {
		assert.Equal(t, dynamo.Control{0}, u)
	}
}

func TestNotSetup(t *testing.T) {
	e := New(config.DefaultConfig())
	_, err := e.Run(context.Background())
	assert.Error(t, err)
	_, err = e.Sweep(context.Background(), []float64{1}, 1)
	assert.Error(t, err)
}

func TestSetupErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.NSafe = 0
	assert.ErrorIs(t, New(cfg).Setup(), dynamo.ErrParameterBounds)

	cfg = config.DefaultConfig()
	cfg.Params = map[string]float64{"bogus": 1}
	assert.Error(t, New(cfg).Setup())

	cfg = config.DefaultConfig()
	cfg.Integrator = "leapfrog"
	assert.Error(t, New(cfg).Setup())

	cfg = config.GetPreset("linear", "constant")
	cfg.Controller.Type = "lqr"
	assert.Error(t, New(cfg).Setup())
}

func TestRunCancelled(t *testing.T) {
	e := setup(t, config.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"cartpole", "linear", "pendulum"}, r.ListModels())

	_, err := r.GetSystem("lorenz")
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Params = map[string]float64{"damping": 0.5, "mass": 2}
	model, err := r.BuildModel(cfg)
	require.NoError(t, err)
	_, _, err = model.Predict(mat.NewVecDense(3, nil))
	assert.NoError(t, err)

	laws, err := r.BuildLaws(cfg)
	require.NoError(t, err)
	assert.Len(t, laws, cfg.NSafe)
	nu, ns := laws[0].Dims()
	assert.Equal(t, 1, nu)
	assert.Equal(t, 2, ns)

	assert.Len(t, r.DefaultMetrics(cfg), 3)
	assert.Len(t, r.DefaultMetrics(config.GetPreset("pendulum", "small")), 4)
}

func TestBuildLawsAppliesControllerParams(t *testing.T) {
	r := NewRegistry()
	cfg := config.DefaultConfig()
	cfg.Controller = config.ControllerConfig{
		Type:   "pd",
		Gains:  [][]float64{{10, 2}},
		Params: map[string]float64{"Kp": 20, "Target": 0.1},
	}

	laws, err := r.BuildLaws(cfg)
	require.NoError(t, err)
	for _, law := range laws {
		assert.True(t, mat.Equal(law.K, mat.NewDense(1, 2, []float64{-20, -2})), "got %v", mat.Formatted(law.K))
		assert.InDelta(t, 2, law.Offset().AtVec(0), 1e-12)
	}

	cfg.Controller.Params = map[string]float64{"Ki": 1}
	_, err = r.BuildLaws(cfg)
	assert.Error(t, err)

	cfg.Controller = config.ControllerConfig{Type: "lqr", Params: map[string]float64{"Kp": 1}}
	_, err = r.BuildLaws(cfg)
	assert.Error(t, err)
}
