package models

import (
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Linear predicts the state increment A·x + B·u + C with a constant
// diagonal variance.
type Linear struct {
	A        *mat.Dense
	B        *mat.Dense
	C        *mat.VecDense
	Variance *mat.VecDense
}

// NewLinear checks that A is ns×ns, B is ns×nu and that C and Variance have
// length ns. A nil C is treated as zero.
func NewLinear(a, b *mat.Dense, c, variance *mat.VecDense) (*Linear, error) {
	ns, cols := a.Dims()
	if ns != cols {
		return nil, fmt.Errorf("%w: A is %dx%d", dynamo.ErrDimensionMismatch, ns, cols)
	}
	if r, _ := b.Dims(); r != ns {
		return nil, fmt.Errorf("%w: B has %d rows, A has %d", dynamo.ErrDimensionMismatch, r, ns)
	}
	if c == nil {
		c = mat.NewVecDense(ns, nil)
	}
	if c.Len() != ns || variance == nil || variance.Len() != ns {
		return nil, fmt.Errorf("%w: offset and variance must have length %d", dynamo.ErrDimensionMismatch, ns)
	}
	for i := 0; i < ns; i++ {
		if variance.AtVec(i) < 0 {
			return nil, fmt.Errorf("%w: negative variance %v in dim %d", dynamo.ErrParameterBounds, variance.AtVec(i), i)
		}
	}
	return &Linear{A: a, B: b, C: c, Variance: variance}, nil
}

func (l *Linear) StateDim() int {
	r, _ := l.A.Dims()
	return r
}

func (l *Linear) ControlDim() int {
	_, c := l.B.Dims()
	return c
}

func (l *Linear) Predict(z mat.Vector) (mean, variance *mat.VecDense, err error) {
	x, u, err := split(z, l.StateDim(), l.ControlDim())
	if err != nil {
		return nil, nil, err
	}

	mean = mat.NewVecDense(l.StateDim(), nil)
	var bu mat.VecDense
	mean.MulVec(l.A, x)
	bu.MulVec(l.B, u)
	mean.AddVec(mean, &bu)
	mean.AddVec(mean, l.C)

	return mean, mat.VecDenseCopyOf(l.Variance), nil
}

// PredictiveGradients returns [A B] independent of z.
func (l *Linear) PredictiveGradients(z mat.Vector) (*mat.Dense, error) {
	ns, nu := l.StateDim(), l.ControlDim()
	if z.Len() != ns+nu {
		return nil, fmt.Errorf("%w: query has length %d, want %d", dynamo.ErrDimensionMismatch, z.Len(), ns+nu)
	}
	j := mat.NewDense(ns, ns+nu, nil)
	j.Augment(l.A, l.B)
	return j, nil
}

// split copies z = [x; u] into its two parts.
func split(z mat.Vector, ns, nu int) (x, u *mat.VecDense, err error) {
	if z.Len() != ns+nu {
		return nil, nil, fmt.Errorf("%w: query has length %d, want %d", dynamo.ErrDimensionMismatch, z.Len(), ns+nu)
	}
	x = mat.NewVecDense(ns, nil)
	for i := 0; i < ns; i++ {
		x.SetVec(i, z.AtVec(i))
	}
	u = mat.NewVecDense(nu, nil)
	for i := 0; i < nu; i++ {
		u.SetVec(i, z.AtVec(ns+i))
	}
	return x, u, nil
}
