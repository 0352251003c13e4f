package ellipsoid

import (
	"fmt"
	"log/slog"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Ellipsoid is the set {x : (x-p)ᵀ Q⁻¹ (x-p) ≤ 1}. A nil Shape marks a single
// point, which callers treat as a distinct variant rather than a zero matrix.
type Ellipsoid struct {
	Center *mat.VecDense
	Shape  *mat.SymDense
}

func New(center *mat.VecDense, shape *mat.SymDense) Ellipsoid {
	return Ellipsoid{Center: center, Shape: shape}
}

func Point(center *mat.VecDense) Ellipsoid {
	return Ellipsoid{Center: center}
}

// Diag builds an ellipsoid with a diagonal shape matrix.
func Diag(center, diag []float64) Ellipsoid {
	return New(mat.NewVecDense(len(center), append([]float64(nil), center...)), DiagShape(diag))
}

func DiagShape(diag []float64) *mat.SymDense {
	q := mat.NewSymDense(len(diag), nil)
	for i, v := range diag {
		q.SetSym(i, i, v)
	}
	return q
}

func (e Ellipsoid) IsPoint() bool { return e.Shape == nil }

func (e Ellipsoid) Dim() int {
	if e.Center == nil {
		return 0
	}
	return e.Center.Len()
}

// Clone returns a deep copy.
func (e Ellipsoid) Clone() Ellipsoid {
	out := Ellipsoid{}
	if e.Center != nil {
		out.Center = mat.VecDenseCopyOf(e.Center)
	}
	if e.Shape != nil {
		out.Shape = mat.NewSymDense(e.Shape.SymmetricDim(), nil)
		out.Shape.CopySym(e.Shape)
	}
	return out
}

// CenterSlice returns a copy of the center coordinates.
func (e Ellipsoid) CenterSlice() []float64 {
	if e.Center == nil {
		return nil
	}
	out := make([]float64, e.Center.Len())
	for i := range out {
		out[i] = e.Center.AtVec(i)
	}
	return out
}

// ShapeDense returns the shape matrix as a dense n×n matrix; points yield zeros.
func (e Ellipsoid) ShapeDense() *mat.Dense {
	n := e.Dim()
	out := mat.NewDense(n, n, nil)
	if e.Shape != nil {
		out.Copy(e.Shape)
	}
	return out
}

func (e Ellipsoid) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "center=%v", e.CenterSlice())
	if e.Shape == nil {
		b.WriteString(" shape=point")
		return b.String()
	}
	fmt.Fprintf(&b, " shape=%v", mat.Formatted(e.Shape, mat.FormatMATLAB()))
	return b.String()
}

// LogValue implements slog.LogValuer.
func (e Ellipsoid) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Any("center", e.CenterSlice())}
	if e.Shape == nil {
		attrs = append(attrs, slog.String("shape", "point"))
	} else {
		attrs = append(attrs,
			slog.String("shape", fmt.Sprintf("%v", mat.Formatted(e.Shape, mat.FormatMATLAB()))),
			slog.Any("semi_axes", SemiAxes(e)),
		)
	}
	return slog.GroupValue(attrs...)
}
