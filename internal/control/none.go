package control

import (
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// None applies zero input.
type None struct {
	dim int
}

func NewNone(dim int) *None {
	return &None{
		dim: dim,
	}
}

func (n *None) Compute(x dynamo.State, t float64) dynamo.Control {
	return make(dynamo.Control, n.dim)
}

func (n *None) Law(ns int) (dynamo.AffineLaw, error) {
	if n.dim <= 0 {
		return dynamo.AffineLaw{}, fmt.Errorf("%w: control dimension %d", dynamo.ErrDimensionMismatch, n.dim)
	}
	return dynamo.NewAffineLaw(mat.NewDense(n.dim, ns, nil), mat.NewVecDense(n.dim, nil)), nil
}

// Static is a fixed affine law u = K·x + k given directly.
type Static struct {
	K      [][]float64
	Offset []float64
}

func NewStatic(k [][]float64, offset []float64) *Static {
	return &Static{K: k, Offset: offset}
}

func (s *Static) Law(ns int) (dynamo.AffineLaw, error) {
	K, err := gainMatrix(s.K, ns)
	if err != nil {
		return dynamo.AffineLaw{}, err
	}
	nu, _ := K.Dims()
	if s.Offset == nil {
		return dynamo.NewAffineLaw(K, mat.NewVecDense(nu, nil)), nil
	}
	if len(s.Offset) != nu {
		return dynamo.AffineLaw{}, fmt.Errorf("%w: offset has %d entries for %d inputs", dynamo.ErrDimensionMismatch, len(s.Offset), nu)
	}
	return dynamo.NewAffineLaw(K, mat.NewVecDense(nu, append([]float64(nil), s.Offset...))), nil
}
