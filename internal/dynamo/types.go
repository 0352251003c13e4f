package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Vec() *mat.VecDense {
	return mat.NewVecDense(len(s), s.Clone())
}

type Control []float64

// Predictive is a probabilistic one-step transition model. At z = [x; u] it
// returns the predictive mean and the diagonal predictive variance of the
// state increment, and the Jacobian of the mean with respect to z.
type Predictive interface {
	Predict(z mat.Vector) (mean, variance *mat.VecDense, err error)
	PredictiveGradients(z mat.Vector) (*mat.Dense, error)
}

// System is a continuous-time nominal model dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Configurable systems expose named physical parameters for overrides.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// AffineLaw is the feedback u = K·x + k.
type AffineLaw struct {
	K *mat.Dense
	k *mat.VecDense
}

func NewAffineLaw(K *mat.Dense, k *mat.VecDense) AffineLaw {
	return AffineLaw{K: K, k: k}
}

// Offset returns k.
func (a AffineLaw) Offset() *mat.VecDense { return a.k }

func (a AffineLaw) Dims() (nu, ns int) {
	if a.K == nil {
		return 0, 0
	}
	return a.K.Dims()
}

// Validate checks that K is n_u × ns and k has length n_u.
func (a AffineLaw) Validate(ns int) error {
	if a.K == nil || a.k == nil {
		return fmt.Errorf("%w: affine law needs both K and k", ErrDimensionMismatch)
	}
	nu, cols := a.K.Dims()
	if cols != ns {
		return fmt.Errorf("%w: K is %dx%d, state has %d dims", ErrDimensionMismatch, nu, cols, ns)
	}
	if a.k.Len() != nu {
		return fmt.Errorf("%w: K has %d rows, k has length %d", ErrDimensionMismatch, nu, a.k.Len())
	}
	return nil
}

// Action evaluates K·x + k.
func (a AffineLaw) Action(x mat.Vector) *mat.VecDense {
	nu, _ := a.K.Dims()
	u := mat.NewVecDense(nu, nil)
	u.MulVec(a.K, x)
	u.AddVec(u, a.k)
	return u
}

// Stack returns z = [x; u].
func Stack(x, u mat.Vector) *mat.VecDense {
	ns, nu := x.Len(), u.Len()
	z := mat.NewVecDense(ns+nu, nil)
	for i := 0; i < ns; i++ {
		z.SetVec(i, x.AtVec(i))
	}
	for i := 0; i < nu; i++ {
		z.SetVec(ns+i, u.AtVec(i))
	}
	return z
}
