package ellipsoid

import (
	"fmt"
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Sum returns an ellipsoid containing every x1 + x2 with x1 in a and x2 in b.
//
// The shape is (1 + 1/c)·Q1 + (1 + c)·Q2 with c = sqrt(tr Q1 / tr Q2), the
// member of the outer-bounding family with the smallest trace. When one of the
// shapes is a point or has zero trace the other shape is returned as is.
func Sum(a, b Ellipsoid) (Ellipsoid, error) {
	center, err := addCenters(a, b)
	if err != nil {
		return Ellipsoid{}, err
	}

	ta, tb := trace(a.Shape), trace(b.Shape)
	switch {
	case a.Shape == nil && b.Shape == nil:
		return Point(center), nil
	case ta <= 0 && tb <= 0:
		return New(center, mat.NewSymDense(center.Len(), nil)), nil
	case ta <= 0:
		return New(center, copySym(b.Shape)), nil
	case tb <= 0:
		return New(center, copySym(a.Shape)), nil
	}

	return New(center, scaledSum(a.Shape, b.Shape, math.Sqrt(ta/tb))), nil
}

// SumScaled is Sum with an explicit balancing parameter c > 0.
func SumScaled(a, b Ellipsoid, c float64) (Ellipsoid, error) {
	if !(c > 0) || math.IsInf(c, 0) {
		return Ellipsoid{}, fmt.Errorf("%w: balancing parameter must be positive and finite, got %v", dynamo.ErrParameterBounds, c)
	}
	center, err := addCenters(a, b)
	if err != nil {
		return Ellipsoid{}, err
	}
	if a.Shape == nil && b.Shape == nil {
		return Point(center), nil
	}
	n := center.Len()
	qa, qb := a.Shape, b.Shape
	if qa == nil {
		qa = mat.NewSymDense(n, nil)
	}
	if qb == nil {
		qb = mat.NewSymDense(n, nil)
	}
	return New(center, scaledSum(qa, qb, c)), nil
}

func scaledSum(qa, qb *mat.SymDense, c float64) *mat.SymDense {
	n := qa.SymmetricDim()
	left := mat.NewSymDense(n, nil)
	left.ScaleSym(1+1/c, qa)
	right := mat.NewSymDense(n, nil)
	right.ScaleSym(1+c, qb)
	out := mat.NewSymDense(n, nil)
	out.AddSym(left, right)
	return out
}

func addCenters(a, b Ellipsoid) (*mat.VecDense, error) {
	if a.Center == nil || b.Center == nil {
		return nil, fmt.Errorf("%w: ellipsoid without center", dynamo.ErrDimensionMismatch)
	}
	if a.Dim() != b.Dim() {
		return nil, fmt.Errorf("%w: cannot sum ellipsoids of dims %d and %d", dynamo.ErrDimensionMismatch, a.Dim(), b.Dim())
	}
	for _, e := range []Ellipsoid{a, b} {
		if e.Shape != nil && e.Shape.SymmetricDim() != e.Dim() {
			return nil, fmt.Errorf("%w: shape is %dx%d for a %d-dim center",
				dynamo.ErrDimensionMismatch, e.Shape.SymmetricDim(), e.Shape.SymmetricDim(), e.Dim())
		}
	}
	center := mat.NewVecDense(a.Dim(), nil)
	center.AddVec(a.Center, b.Center)
	return center, nil
}

// FromBox returns the diagonal shape matrix of a zero-centered ellipsoid
// containing the box [lb, ub]. With d_i = max(|lb_i|, |ub_i|) the shape is
// diag(n·d_i²), so the corners of [-d, d] lie on its boundary.
func FromBox(lb, ub []float64) (*mat.SymDense, error) {
	if len(lb) != len(ub) {
		return nil, fmt.Errorf("%w: box bounds have lengths %d and %d", dynamo.ErrDimensionMismatch, len(lb), len(ub))
	}
	if len(lb) == 0 {
		return nil, fmt.Errorf("%w: empty box", dynamo.ErrDimensionMismatch)
	}
	n := float64(len(lb))
	q := mat.NewSymDense(len(lb), nil)
	for i := range lb {
		if math.IsNaN(lb[i]) || math.IsNaN(ub[i]) || lb[i] > ub[i] {
			return nil, fmt.Errorf("%w: invalid box bound [%v, %v] in dim %d", dynamo.ErrParameterBounds, lb[i], ub[i], i)
		}
		d := math.Max(math.Abs(lb[i]), math.Abs(ub[i]))
		q.SetSym(i, i, n*d*d)
	}
	return q, nil
}

// BoundingBox returns the tightest axis-aligned box around e: p_i ± sqrt(Q_ii).
func BoundingBox(e Ellipsoid) (lb, ub []float64) {
	n := e.Dim()
	lb, ub = make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		r := 0.0
		if e.Shape != nil {
			r = math.Sqrt(math.Max(e.Shape.At(i, i), 0))
		}
		lb[i] = e.Center.AtVec(i) - r
		ub[i] = e.Center.AtVec(i) + r
	}
	return lb, ub
}

// LagrangeRemainderBox bounds the Taylor remainder of a per-dimension function
// over the ellipsoid with the given shape, when the input is z = [x; K·x + k]
// and the expansion point is the image of the ellipsoid center.
//
// The deviation z - z̄ = [d; K·d] with d in E(0, Q) satisfies
// |z - z̄|² ≤ λmax(Q) + λmax(K Q Kᵀ) = ρ². For order 2 the lipschitz values
// bound the gradient and the remainder is L_i·ρ²/2; for order 1 they bound the
// function itself and the remainder is L_i·ρ. A nil shape (a point) yields a
// zero box.
func LagrangeRemainderBox(shape *mat.SymDense, lipschitz []float64, K mat.Matrix, order int) (lb, ub []float64, err error) {
	if order != 1 && order != 2 {
		return nil, nil, fmt.Errorf("%w: %d", dynamo.ErrUnsupportedOrder, order)
	}
	n := len(lipschitz)
	lb, ub = make([]float64, n), make([]float64, n)
	if shape == nil {
		return lb, ub, nil
	}
	if shape.SymmetricDim() != n {
		return nil, nil, fmt.Errorf("%w: %d lipschitz constants for a %d-dim shape",
			dynamo.ErrDimensionMismatch, n, shape.SymmetricDim())
	}

	rho2, err := maxEigen(shape)
	if err != nil {
		return nil, nil, err
	}
	if K != nil {
		_, cols := K.Dims()
		if cols != n {
			return nil, nil, fmt.Errorf("%w: K has %d columns for a %d-dim shape", dynamo.ErrDimensionMismatch, cols, n)
		}
		kq, err := maxEigen(Transform(K, shape))
		if err != nil {
			return nil, nil, err
		}
		rho2 += kq
	}

	scale := math.Sqrt(rho2)
	if order == 2 {
		scale = rho2 / 2
	}
	for i, l := range lipschitz {
		if l < 0 || math.IsNaN(l) {
			return nil, nil, fmt.Errorf("%w: lipschitz constant %v in dim %d", dynamo.ErrParameterBounds, l, i)
		}
		ub[i] = l * scale
		lb[i] = -ub[i]
	}
	return lb, ub, nil
}

// Transform returns the symmetric matrix H·Q·Hᵀ.
func Transform(h mat.Matrix, q *mat.SymDense) *mat.SymDense {
	var hq, hqh mat.Dense
	hq.Mul(h, q)
	hqh.Mul(&hq, h.T())
	return symmetrize(&hqh)
}

func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return out
}

func trace(q *mat.SymDense) float64 {
	if q == nil {
		return 0
	}
	return mat.Trace(q)
}

func copySym(q *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(q.SymmetricDim(), nil)
	out.CopySym(q)
	return out
}
