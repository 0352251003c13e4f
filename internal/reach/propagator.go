package reach

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"gonum.org/v1/gonum/mat"
)

// Lipschitz holds per-dimension constants of the predictive model: Mean
// bounds the gradient of the predictive mean, Std bounds the predictive
// standard deviation.
type Lipschitz struct {
	Mean []float64
	Std  []float64
}

// Propagator overapproximates the next-state confidence region of a
// predictive model under affine feedback. It only holds configuration, so a
// single value can be shared between goroutines when the model is reentrant.
type Propagator struct {
	model    dynamo.Predictive
	lip      Lipschitz
	safety   float64
	logger   *slog.Logger
	validate bool
}

type Option func(*Propagator)

// WithSafety sets c_safety, the factor applied to predictive variances.
func WithSafety(c float64) Option {
	return func(p *Propagator) { p.safety = c }
}

// WithLogger routes the intermediate ellipsoids of every step to logger at
// debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Propagator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithValidation toggles the positive-semidefinite check of input shapes.
func WithValidation(on bool) Option {
	return func(p *Propagator) { p.validate = on }
}

func New(model dynamo.Predictive, lip Lipschitz, opts ...Option) *Propagator {
	p := &Propagator{
		model:    model,
		lip:      lip,
		safety:   1.0,
		logger:   slog.New(slog.DiscardHandler),
		validate: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Propagator) Safety() float64 { return p.safety }

// OneStep returns an ellipsoid containing the c_safety confidence region of
// the state after applying law once from any state in `in`.
//
// A point input is pushed through the model directly and only carries the
// predictive variance. A set input is handled by linearizing the predictive
// mean at the center, bounding both Taylor remainders over the set, and
// summing the resulting ellipsoids with the input set.
func (p *Propagator) OneStep(in ellipsoid.Ellipsoid, law dynamo.AffineLaw) (ellipsoid.Ellipsoid, error) {
	if err := p.check(in, law); err != nil {
		return ellipsoid.Ellipsoid{}, err
	}
	if in.IsPoint() {
		return p.pointStep(in, law)
	}
	return p.setStep(in, law)
}

func (p *Propagator) check(in ellipsoid.Ellipsoid, law dynamo.AffineLaw) error {
	if p.model == nil {
		return fmt.Errorf("reach: no predictive model")
	}
	if !(p.safety > 0) || math.IsInf(p.safety, 0) {
		return fmt.Errorf("%w: c_safety must be positive, got %v", dynamo.ErrParameterBounds, p.safety)
	}
	if in.Center == nil {
		return fmt.Errorf("%w: input ellipsoid without center", dynamo.ErrDimensionMismatch)
	}
	ns := in.Dim()
	if err := law.Validate(ns); err != nil {
		return err
	}
	if len(p.lip.Mean) != ns || len(p.lip.Std) != ns {
		return fmt.Errorf("%w: lipschitz constants have lengths %d and %d for %d states",
			dynamo.ErrDimensionMismatch, len(p.lip.Mean), len(p.lip.Std), ns)
	}
	for i := 0; i < ns; i++ {
		if !(p.lip.Mean[i] >= 0) || !(p.lip.Std[i] >= 0) {
			return fmt.Errorf("%w: lipschitz constants must be non-negative, got mean %v and std %v in dim %d",
				dynamo.ErrParameterBounds, p.lip.Mean[i], p.lip.Std[i], i)
		}
	}
	if p.validate {
		if err := ellipsoid.Validate(in, ellipsoid.DefaultTolerance); err != nil {
			return fmt.Errorf("input set: %w", err)
		}
	}
	return nil
}

func (p *Propagator) pointStep(in ellipsoid.Ellipsoid, law dynamo.AffineLaw) (ellipsoid.Ellipsoid, error) {
	ns := in.Dim()
	u := law.Action(in.Center)
	p.logger.Debug("applying action", "u", vecSlice(u))

	mean, variance, err := p.predict(dynamo.Stack(in.Center, u), ns)
	if err != nil {
		return ellipsoid.Ellipsoid{}, err
	}

	center := mat.NewVecDense(ns, nil)
	center.AddVec(in.Center, mean)
	shape := mat.NewSymDense(ns, nil)
	for i := 0; i < ns; i++ {
		shape.SetSym(i, i, p.safety*variance.AtVec(i))
	}

	out := ellipsoid.New(center, shape)
	p.logger.Debug("uncertainty first state", "ellipsoid", out)
	return out, nil
}

func (p *Propagator) setStep(in ellipsoid.Ellipsoid, law dynamo.AffineLaw) (ellipsoid.Ellipsoid, error) {
	ns := in.Dim()
	nu, _ := law.Dims()
	p.logger.Debug("initial uncertainty ellipsoid", "ellipsoid", in)

	// Linearize at the action the law applies at the center, so the
	// deviation of z from z̄ is [d; K·d] for every d in the set.
	uBar := law.Action(in.Center)
	zBar := dynamo.Stack(in.Center, uBar)
	p.logger.Debug("applying action", "u", vecSlice(uBar))

	mu0, sigma0, err := p.predict(zBar, ns)
	if err != nil {
		return ellipsoid.Ellipsoid{}, err
	}
	p.logger.Debug("predictive distribution", "ellipsoid", ellipsoid.New(mu0, ellipsoid.DiagShape(sigma0.RawVector().Data)))

	jac, err := p.model.PredictiveGradients(zBar)
	if err != nil {
		return ellipsoid.Ellipsoid{}, fmt.Errorf("predictive gradients: %w", err)
	}
	if r, c := jac.Dims(); r != ns || c != ns+nu {
		return ellipsoid.Ellipsoid{}, fmt.Errorf("%w: jacobian is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, r, c, ns, ns+nu)
	}
	aMu := jac.Slice(0, ns, 0, ns)
	bMu := jac.Slice(0, ns, ns, ns+nu)

	var h mat.Dense
	h.Mul(bMu, law.K)
	h.Add(aMu, &h)

	// p0 = μ0 + B·(K·p + k - ū), and the bracket vanishes at this ū.
	p0 := mat.VecDenseCopyOf(mu0)
	linear := ellipsoid.New(p0, ellipsoid.Transform(&h, in.Shape))
	p.logger.Debug("linear transformation uncertainty", "ellipsoid", linear)

	lbMean, ubMean, err := ellipsoid.LagrangeRemainderBox(in.Shape, p.lip.Mean, law.K, 2)
	if err != nil {
		return ellipsoid.Ellipsoid{}, fmt.Errorf("mean remainder: %w", err)
	}
	_, ubStd, err := ellipsoid.LagrangeRemainderBox(in.Shape, p.lip.Std, law.K, 1)
	if err != nil {
		return ellipsoid.Ellipsoid{}, fmt.Errorf("std remainder: %w", err)
	}

	qStd := mat.NewSymDense(ns, nil)
	for i := 0; i < ns; i++ {
		s := math.Sqrt(sigma0.AtVec(i)) + ubStd[i]
		qStd.SetSym(i, i, p.safety*s*s)
	}
	lagrangeStd := ellipsoid.New(mat.NewVecDense(ns, nil), qStd)
	p.logger.Debug("overapproximation lagrangian sigma", "ellipsoid", lagrangeStd)

	qMean, err := ellipsoid.FromBox(lbMean, ubMean)
	if err != nil {
		return ellipsoid.Ellipsoid{}, fmt.Errorf("mean remainder: %w", err)
	}
	lagrangeMean := ellipsoid.New(mat.NewVecDense(ns, nil), qMean)
	p.logger.Debug("overapproximation lagrangian mu", "ellipsoid", lagrangeMean)

	remainder, err := ellipsoid.Sum(lagrangeStd, lagrangeMean)
	if err != nil {
		return ellipsoid.Ellipsoid{}, err
	}
	step, err := ellipsoid.Sum(remainder, linear)
	if err != nil {
		return ellipsoid.Ellipsoid{}, err
	}
	p.logger.Debug("accumulated uncertainty current step", "ellipsoid", step)

	out, err := ellipsoid.Sum(step, in)
	if err != nil {
		return ellipsoid.Ellipsoid{}, err
	}
	p.logger.Debug("sum old and new uncertainty", "ellipsoid", out)
	return out, nil
}

// predict queries the model and checks the output shapes. Round-off below
// zero in the variance is clipped.
func (p *Propagator) predict(z *mat.VecDense, ns int) (mean, variance *mat.VecDense, err error) {
	mean, variance, err = p.model.Predict(z)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %w", err)
	}
	if mean == nil || variance == nil || mean.Len() != ns || variance.Len() != ns {
		return nil, nil, fmt.Errorf("%w: model returned mean/variance of lengths %d/%d for %d states",
			dynamo.ErrDimensionMismatch, vecLen(mean), vecLen(variance), ns)
	}
	clipped := mat.NewVecDense(ns, nil)
	for i := 0; i < ns; i++ {
		m, v := mean.AtVec(i), variance.AtVec(i)
		if math.IsNaN(m) || math.IsInf(m, 0) || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: model output in dim %d (mean %v, variance %v)", dynamo.ErrInvalidState, i, m, v)
		}
		clipped.SetVec(i, math.Max(v, 0))
	}
	return mean, clipped, nil
}

func vecLen(v *mat.VecDense) int {
	if v == nil {
		return 0
	}
	return v.Len()
}

func vecSlice(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
