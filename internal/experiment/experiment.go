package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/metrics"
	"github.com/san-kum/safereach/internal/reach"
	"gonum.org/v1/gonum/mat"
)

// Result is one reachability run.
type Result struct {
	Config   *config.Config
	Tube     *reach.Tube
	Duration time.Duration
	// FirstViolation is the first step leaving the safe box, or -1.
	FirstViolation int
	// CommittedSafe reports whether the first R steps stay in the safe box.
	CommittedSafe bool
}

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *slog.Logger

	propagator *reach.Propagator
	laws       []dynamo.AffineLaw
	start      ellipsoid.Ellipsoid
}

type Option func(*Experiment)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Experiment) {
		e.logger = logger
	}
}

func New(cfg *config.Config, opts ...Option) *Experiment {
	e := &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Setup validates the config and builds the model, the feedback laws and
// the start set.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	model, err := e.registry.BuildModel(e.cfg)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	laws, err := e.registry.BuildLaws(e.cfg)
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	lip := reach.Lipschitz{Mean: e.cfg.Lipschitz.Mean, Std: e.cfg.Lipschitz.Std}
	e.propagator = reach.New(model, lip,
		reach.WithSafety(e.cfg.BetaSafety),
		reach.WithLogger(e.logger),
	)
	e.laws = laws
	e.start = startSet(e.cfg.InitState)

	e.logger.Info("experiment ready",
		"model", e.cfg.Model,
		"backend", e.cfg.Backend,
		"n_safe", e.cfg.NSafe,
		"c_safety", e.cfg.BetaSafety,
	)
	return nil
}

func startSet(init config.InitStateConfig) ellipsoid.Ellipsoid {
	if len(init.ShapeDiag) == 0 {
		return ellipsoid.Point(mat.NewVecDense(len(init.Center), append([]float64(nil), init.Center...)))
	}
	return ellipsoid.Diag(init.Center, init.ShapeDiag)
}

func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.propagator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	began := time.Now()
	tube, err := e.propagator.MultiStep(ctx, e.start, e.laws, e.registry.DefaultMetrics(e.cfg)...)
	if err != nil {
		return nil, err
	}
	return e.result(tube, time.Since(began)), nil
}

// Sweep scales the whole feedback law, K and k, by each factor and
// evaluates the candidates concurrently. Results keep the order of scales.
func (e *Experiment) Sweep(ctx context.Context, scales []float64, workers int) ([]*Result, error) {
	if e.propagator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	candidates := make([][]dynamo.AffineLaw, len(scales))
	for i, s := range scales {
		candidates[i] = make([]dynamo.AffineLaw, len(e.laws))
		for t, law := range e.laws {
			candidates[i][t] = scaleLaw(law, s)
		}
	}

	began := time.Now()
	tubes, err := reach.EvaluateBatch(ctx, e.propagator, e.start, candidates, workers, func() []metrics.Metric {
		return e.registry.DefaultMetrics(e.cfg)
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(began)

	results := make([]*Result, len(tubes))
	for i, tube := range tubes {
		results[i] = e.result(tube, elapsed)
	}
	return results, nil
}

func (e *Experiment) result(tube *reach.Tube, d time.Duration) *Result {
	res := &Result{
		Config:         e.cfg,
		Tube:           tube,
		Duration:       d,
		FirstViolation: -1,
		CommittedSafe:  true,
	}
	if box := e.cfg.SafeBox; len(box.Lower) > 0 {
		res.FirstViolation = tube.FirstViolation(box.Lower, box.Upper)
		res.CommittedSafe = res.FirstViolation < 0 || res.FirstViolation >= e.cfg.R
	}
	return res
}

func scaleLaw(law dynamo.AffineLaw, s float64) dynamo.AffineLaw {
	var K mat.Dense
	K.Scale(s, law.K)
	var k mat.VecDense
	k.ScaleVec(s, law.Offset())
	return dynamo.NewAffineLaw(&K, &k)
}
