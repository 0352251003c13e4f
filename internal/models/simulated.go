package models

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Simulated turns a nominal continuous-time system into a predictive model:
// the mean is one integrator step minus the current state, the variance is
// a fixed process noise.
type Simulated struct {
	System dynamo.System
	// NewIntegrator is called once per query; integrators may keep scratch
	// buffers and must not be shared between goroutines.
	NewIntegrator func() dynamo.Integrator
	Dt            float64
	Variance      []float64
}

func NewSimulated(sys dynamo.System, newIntegrator func() dynamo.Integrator, dt float64, variance []float64) (*Simulated, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: dt must be positive, got %v", dynamo.ErrParameterBounds, dt)
	}
	if len(variance) != sys.StateDim() {
		return nil, fmt.Errorf("%w: %d variances for %d states", dynamo.ErrDimensionMismatch, len(variance), sys.StateDim())
	}
	for i, v := range variance {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative variance %v in dim %d", dynamo.ErrParameterBounds, v, i)
		}
	}
	return &Simulated{
		System:        sys,
		NewIntegrator: newIntegrator,
		Dt:            dt,
		Variance:      append([]float64(nil), variance...),
	}, nil
}

func (s *Simulated) StateDim() int   { return s.System.StateDim() }
func (s *Simulated) ControlDim() int { return s.System.ControlDim() }

// Increment returns step(x, u) - x.
func (s *Simulated) Increment(x dynamo.State, u dynamo.Control) (dynamo.State, error) {
	next := s.NewIntegrator().Step(s.System, x, u, 0, s.Dt)
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: integrating from %v with %v", dynamo.ErrInvalidState, x, u)
	}
	for i := range next {
		next[i] -= x[i]
	}
	return next, nil
}

func (s *Simulated) Predict(z mat.Vector) (mean, variance *mat.VecDense, err error) {
	x, u, err := s.unstack(z)
	if err != nil {
		return nil, nil, err
	}
	dx, err := s.Increment(x, u)
	if err != nil {
		return nil, nil, err
	}
	return mat.NewVecDense(len(dx), dx), mat.NewVecDense(len(s.Variance), append([]float64(nil), s.Variance...)), nil
}

// PredictiveGradients approximates the Jacobian of the mean increment with
// central differences.
func (s *Simulated) PredictiveGradients(z mat.Vector) (*mat.Dense, error) {
	x, u, err := s.unstack(z)
	if err != nil {
		return nil, err
	}
	ns, nu := len(x), len(u)

	at := append(x.Clone(), u...)
	var failed error
	f := func(y, q []float64) {
		dx, err := s.Increment(dynamo.State(q[:ns]), dynamo.Control(q[ns:]))
		if err != nil {
			failed = err
			return
		}
		copy(y, dx)
	}

	jac := mat.NewDense(ns, ns+nu, nil)
	fd.Jacobian(jac, f, at, &fd.JacobianSettings{Formula: fd.Central})
	if failed != nil {
		return nil, fmt.Errorf("finite differences: %w", failed)
	}
	return jac, nil
}

func (s *Simulated) unstack(z mat.Vector) (dynamo.State, dynamo.Control, error) {
	ns, nu := s.StateDim(), s.ControlDim()
	if z.Len() != ns+nu {
		return nil, nil, fmt.Errorf("%w: query has length %d, want %d", dynamo.ErrDimensionMismatch, z.Len(), ns+nu)
	}
	x := make(dynamo.State, ns)
	u := make(dynamo.Control, nu)
	for i := range x {
		x[i] = z.AtVec(i)
	}
	for i := range u {
		u[i] = z.AtVec(ns + i)
	}
	return x, u, nil
}

// SampleTransitions draws n inputs uniformly from the box [lo, hi] over
// z = [x; u] and records the simulated increments with Gaussian noise of the
// model's variance. The same seed gives the same data.
func SampleTransitions(s *Simulated, n int, lo, hi []float64, seed uint64) (x, y *mat.Dense, err error) {
	ns, nu := s.StateDim(), s.ControlDim()
	if len(lo) != ns+nu || len(hi) != ns+nu {
		return nil, nil, fmt.Errorf("%w: sampling box has dims %d/%d, want %d", dynamo.ErrDimensionMismatch, len(lo), len(hi), ns+nu)
	}
	if n <= 0 {
		return nil, nil, fmt.Errorf("%w: sample count %d", dynamo.ErrParameterBounds, n)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	x = mat.NewDense(n, ns+nu, nil)
	y = mat.NewDense(n, ns, nil)
	z := make([]float64, ns+nu)
	for r := 0; r < n; r++ {
		for i := range z {
			z[i] = lo[i] + rng.Float64()*(hi[i]-lo[i])
		}
		dx, err := s.Increment(dynamo.State(z[:ns]).Clone(), dynamo.Control(z[ns:]))
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", r, err)
		}
		for i := range dx {
			dx[i] += rng.NormFloat64() * math.Sqrt(s.Variance[i])
		}
		x.SetRow(r, z)
		y.SetRow(r, dx)
	}
	return x, y, nil
}
