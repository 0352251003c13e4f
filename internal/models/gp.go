package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RBF is the squared exponential kernel
//
//	k(a, b) = σ_f² · exp(-½ Σ_i ((a_i - b_i) / l_i)²)
//
// with one length scale per input dimension.
type RBF struct {
	LengthScales   []float64
	SignalVariance float64
}

func (k RBF) Validate(dim int) error {
	if len(k.LengthScales) != dim {
		return fmt.Errorf("%w: %d length scales for %d inputs", dynamo.ErrDimensionMismatch, len(k.LengthScales), dim)
	}
	for i, l := range k.LengthScales {
		if !(l > 0) {
			return fmt.Errorf("%w: length scale %d is %v", dynamo.ErrParameterBounds, i, l)
		}
	}
	if !(k.SignalVariance > 0) {
		return fmt.Errorf("%w: signal variance is %v", dynamo.ErrParameterBounds, k.SignalVariance)
	}
	return nil
}

func (k RBF) Eval(a, b []float64) float64 {
	var d2 float64
	for i := range a {
		d := (a[i] - b[i]) / k.LengthScales[i]
		d2 += d * d
	}
	return k.SignalVariance * math.Exp(-0.5*d2)
}

// GP is one independent Gaussian process per output dimension. All outputs
// share the inputs, the kernel and the noise level, so one Cholesky factor
// serves every dimension. Hyperparameters are fixed at construction.
type GP struct {
	kernel RBF
	noise  float64
	ns     int
	nu     int

	inputs [][]float64
	chol   mat.Cholesky
	// alpha = (K + σ_n² I)⁻¹ Y, one column per output.
	alpha *mat.Dense
}

var errNoData = errors.New("models: GP needs at least one training sample")

// FitGP conditions a GP on the rows of x (N × (ns+nu)) and the increments
// y (N × ns). noise is the observation noise variance.
func FitGP(x, y *mat.Dense, kernel RBF, noise float64, nu int) (*GP, error) {
	n, dim := x.Dims()
	if n == 0 {
		return nil, errNoData
	}
	ny, ns := y.Dims()
	if ny != n {
		return nil, fmt.Errorf("%w: %d inputs but %d targets", dynamo.ErrDimensionMismatch, n, ny)
	}
	if dim != ns+nu {
		return nil, fmt.Errorf("%w: inputs have %d columns, want %d states + %d controls", dynamo.ErrDimensionMismatch, dim, ns, nu)
	}
	if err := kernel.Validate(dim); err != nil {
		return nil, err
	}
	if noise < 0 {
		return nil, fmt.Errorf("%w: noise variance is %v", dynamo.ErrParameterBounds, noise)
	}

	gp := &GP{
		kernel: kernel,
		noise:  noise,
		ns:     ns,
		nu:     nu,
		inputs: make([][]float64, n),
	}
	for i := range gp.inputs {
		gp.inputs[i] = mat.Row(nil, i, x)
	}

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := kernel.Eval(gp.inputs[i], gp.inputs[j])
			if i == j {
				v += noise
			}
			gram.SetSym(i, j, v)
		}
	}
	if ok := gp.chol.Factorize(gram); !ok {
		return nil, fmt.Errorf("%w: kernel matrix is not positive definite, increase the noise", dynamo.ErrNotPSD)
	}

	gp.alpha = mat.NewDense(n, ns, nil)
	if err := gp.chol.SolveTo(gp.alpha, y); err != nil {
		return nil, fmt.Errorf("solve kernel system: %w", err)
	}
	return gp, nil
}

func (g *GP) StateDim() int   { return g.ns }
func (g *GP) ControlDim() int { return g.nu }

// NumSamples returns the number of training points.
func (g *GP) NumSamples() int { return len(g.inputs) }

// Predict returns the latent predictive mean and variance at z. The
// observation noise is not included in the variance.
func (g *GP) Predict(z mat.Vector) (mean, variance *mat.VecDense, err error) {
	q, err := g.query(z)
	if err != nil {
		return nil, nil, err
	}

	kStar := g.crossKernel(q)
	mean = mat.NewVecDense(g.ns, nil)
	mean.MulVec(g.alpha.T(), kStar)

	var v mat.VecDense
	if err := g.chol.SolveVecTo(&v, kStar); err != nil {
		return nil, nil, fmt.Errorf("solve kernel system: %w", err)
	}
	s2 := math.Max(g.kernel.SignalVariance-mat.Dot(kStar, &v), 0)

	variance = mat.NewVecDense(g.ns, nil)
	for i := 0; i < g.ns; i++ {
		variance.SetVec(i, s2)
	}
	return mean, variance, nil
}

// PredictiveGradients returns the Jacobian of the predictive mean,
//
//	∂μ_j/∂z_i = Σ_n α_nj · k(z, x_n) · (x_ni - z_i) / l_i².
func (g *GP) PredictiveGradients(z mat.Vector) (*mat.Dense, error) {
	q, err := g.query(z)
	if err != nil {
		return nil, err
	}

	dim := len(q)
	diff := make([]float64, dim)
	jac := mat.NewDense(g.ns, dim, nil)
	for n, xn := range g.inputs {
		kv := g.kernel.Eval(q, xn)
		floats.SubTo(diff, xn, q)
		for i, l := range g.kernel.LengthScales {
			diff[i] *= kv / (l * l)
		}
		for j := 0; j < g.ns; j++ {
			floats.AddScaled(jac.RawRowView(j), g.alpha.At(n, j), diff)
		}
	}
	return jac, nil
}

func (g *GP) query(z mat.Vector) ([]float64, error) {
	if z.Len() != g.ns+g.nu {
		return nil, fmt.Errorf("%w: query has length %d, want %d", dynamo.ErrDimensionMismatch, z.Len(), g.ns+g.nu)
	}
	q := make([]float64, z.Len())
	for i := range q {
		q[i] = z.AtVec(i)
	}
	if !dynamo.State(q).IsValid() {
		return nil, fmt.Errorf("%w: query %v", dynamo.ErrInvalidState, q)
	}
	return q, nil
}

func (g *GP) crossKernel(q []float64) *mat.VecDense {
	k := mat.NewVecDense(len(g.inputs), nil)
	for n, xn := range g.inputs {
		k.SetVec(n, g.kernel.Eval(q, xn))
	}
	return k
}
