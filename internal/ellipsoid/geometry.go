package ellipsoid

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is the relative eigenvalue slack accepted by Validate.
const DefaultTolerance = 1e-9

// Validate checks dimensions, finiteness and positive semidefiniteness. The
// smallest eigenvalue may undershoot zero by tol·max(1, λmax).
func Validate(e Ellipsoid, tol float64) error {
	if e.Center == nil {
		return fmt.Errorf("%w: ellipsoid without center", dynamo.ErrDimensionMismatch)
	}
	for i := 0; i < e.Center.Len(); i++ {
		v := e.Center.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: center[%d] = %v", dynamo.ErrInvalidState, i, v)
		}
	}
	if e.Shape == nil {
		return nil
	}
	n := e.Shape.SymmetricDim()
	if n != e.Center.Len() {
		return fmt.Errorf("%w: shape is %dx%d for a %d-dim center", dynamo.ErrDimensionMismatch, n, n, e.Center.Len())
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := e.Shape.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: shape[%d][%d] = %v", dynamo.ErrInvalidState, i, j, v)
			}
		}
	}
	vals, err := eigenvalues(e.Shape)
	if err != nil {
		return err
	}
	lo, hi := vals[0], vals[len(vals)-1]
	if lo < -tol*math.Max(1, math.Abs(hi)) {
		return fmt.Errorf("%w: smallest eigenvalue %g", dynamo.ErrNotPSD, lo)
	}
	return nil
}

// Contains reports whether x lies in e, up to a small relative slack.
// Degenerate shapes are regularized with a tiny ridge.
func Contains(e Ellipsoid, x []float64) bool {
	n := e.Dim()
	if len(x) != n {
		return false
	}
	d := mat.NewVecDense(n, nil)
	for i := range x {
		d.SetVec(i, x[i]-e.Center.AtVec(i))
	}
	if e.Shape == nil {
		return mat.Norm(d, 2) <= 1e-12
	}

	ridge := 1e-12 * math.Max(1, mat.Trace(e.Shape))
	reg := mat.NewSymDense(n, nil)
	reg.CopySym(e.Shape)
	for i := 0; i < n; i++ {
		reg.SetSym(i, i, reg.At(i, i)+ridge)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(reg); !ok {
		return false
	}
	y := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(y, d); err != nil {
		return false
	}
	return mat.Dot(d, y) <= 1+1e-9
}

// InsideBox reports whether the bounding box of e lies within [lb, ub].
func InsideBox(e Ellipsoid, lb, ub []float64) bool {
	elb, eub := BoundingBox(e)
	if len(lb) != len(elb) || len(ub) != len(eub) {
		return false
	}
	for i := range elb {
		if elb[i] < lb[i] || eub[i] > ub[i] {
			return false
		}
	}
	return true
}

// SemiAxes returns the semi-axis lengths in descending order. A point has all
// zero semi-axes; nil is returned if the eigendecomposition fails.
func SemiAxes(e Ellipsoid) []float64 {
	n := e.Dim()
	if e.Shape == nil {
		return make([]float64, n)
	}
	vals, err := eigenvalues(e.Shape)
	if err != nil {
		return nil
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Sqrt(math.Max(v, 0))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// LogVolume returns the natural log of the volume of e. Degenerate sets give -Inf.
func LogVolume(e Ellipsoid) float64 {
	axes := SemiAxes(e)
	if len(axes) == 0 {
		return math.Inf(-1)
	}
	n := float64(len(axes))
	lg, _ := math.Lgamma(n/2 + 1)
	logBall := n/2*math.Log(math.Pi) - lg
	sum := logBall
	for _, a := range axes {
		if a <= 0 {
			return math.Inf(-1)
		}
		sum += math.Log(a)
	}
	return sum
}

// Project returns the shadow of e on the coordinate plane (i, j).
func Project(e Ellipsoid, i, j int) (Ellipsoid, error) {
	n := e.Dim()
	if i < 0 || j < 0 || i >= n || j >= n || i == j {
		return Ellipsoid{}, fmt.Errorf("%w: cannot project %d-dim ellipsoid on (%d, %d)", dynamo.ErrDimensionMismatch, n, i, j)
	}
	center := mat.NewVecDense(2, []float64{e.Center.AtVec(i), e.Center.AtVec(j)})
	if e.Shape == nil {
		return Point(center), nil
	}
	q := mat.NewSymDense(2, []float64{
		e.Shape.At(i, i), e.Shape.At(i, j),
		e.Shape.At(j, i), e.Shape.At(j, j),
	})
	return New(center, q), nil
}

func eigenvalues(q *mat.SymDense) ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(q, false); !ok {
		return nil, fmt.Errorf("ellipsoid: eigendecomposition of %dx%d shape failed", q.SymmetricDim(), q.SymmetricDim())
	}
	return es.Values(nil), nil
}

func maxEigen(q *mat.SymDense) (float64, error) {
	vals, err := eigenvalues(q)
	if err != nil {
		return 0, err
	}
	return math.Max(vals[len(vals)-1], 0), nil
}
