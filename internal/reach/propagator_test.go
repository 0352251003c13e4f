package reach_test

import (
	"log/slog"
	"math"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/reach"
	"gonum.org/v1/gonum/mat"
)

var _ = Describe("OneStep", func() {
	zeroLip := reach.Lipschitz{Mean: []float64{0, 0}, Std: []float64{0, 0}}

	Context("with a constant model and an axis-aligned input set", func() {
		It("shifts the center by the predictive mean and inflates the shape", func() {
			model := constantModel([]float64{0.1, -0.05}, []float64{0.01, 0.01}, 1)
			p := reach.New(model, zeroLip, reach.WithSafety(1.0))
			in := ellipsoid.Diag([]float64{0, 0}, []float64{0.04, 0.04})

			out, err := p.OneStep(in, law([]float64{0, 0}, 0))
			Expect(err).NotTo(HaveOccurred())

			Expect(out.Center.AtVec(0)).To(BeNumerically("~", 0.1, 1e-12))
			Expect(out.Center.AtVec(1)).To(BeNumerically("~", -0.05, 1e-12))

			// The result must contain Q_in + diag(σ²); the trace rule gives
			// exactly 3·0.01 + 1.5·0.04 per axis.
			Expect(out.Shape.At(0, 0)).To(BeNumerically("~", 0.09, 1e-12))
			Expect(out.Shape.At(1, 1)).To(BeNumerically("~", 0.09, 1e-12))
			Expect(out.Shape.At(0, 1)).To(BeNumerically("~", 0, 1e-12))

			excess := mat.NewSymDense(2, nil)
			excess.AddSym(out.Shape, ellipsoid.DiagShape([]float64{-0.05, -0.05}))
			expectPSD(excess)
		})
	})

	Context("with a point input", func() {
		It("uses only the predictive variance", func() {
			model := &affineModel{
				a:        mat.NewDense(2, 2, []float64{0.1, 0, 0, -0.2}),
				b:        mat.NewDense(2, 1, []float64{0.5, 1}),
				c:        []float64{0, 0.01},
				variance: []float64{0.02, 0.03},
			}
			p := reach.New(model, zeroLip, reach.WithSafety(2.0))
			x := mat.NewVecDense(2, []float64{1, 2})

			out, err := p.OneStep(ellipsoid.Point(x), law([]float64{-1, 0}, 0.5))
			Expect(err).NotTo(HaveOccurred())

			// u = -1·1 + 0.5 = -0.5
			Expect(out.Center.AtVec(0)).To(BeNumerically("~", 1+0.1-0.25, 1e-12))
			Expect(out.Center.AtVec(1)).To(BeNumerically("~", 2-0.4-0.5+0.01, 1e-12))
			Expect(diagOf(out.Shape)).To(Equal([]float64{0.04, 0.06}))
			Expect(out.Shape.At(0, 1)).To(Equal(0.0))
		})

		It("agrees with the set branch on a degenerate set", func() {
			model := &sineModel{variance: []float64{0.01, 0.02}}
			lip := reach.Lipschitz{Mean: []float64{sineLipschitz, sineLipschitz}, Std: []float64{0.3, 0.3}}
			p := reach.New(model, lip, reach.WithSafety(1.5))
			l := law([]float64{-0.4, 0.2}, 0.1)
			x := mat.NewVecDense(2, []float64{0.3, -0.7})

			fromPoint, err := p.OneStep(ellipsoid.Point(x), l)
			Expect(err).NotTo(HaveOccurred())
			fromSet, err := p.OneStep(ellipsoid.New(x, mat.NewSymDense(2, nil)), l)
			Expect(err).NotTo(HaveOccurred())

			Expect(mat.EqualApprox(fromPoint.Center, fromSet.Center, 1e-12)).To(BeTrue())
			Expect(mat.EqualApprox(fromPoint.Shape, fromSet.Shape, 1e-12)).To(BeTrue())
		})
	})

	Context("with a zero-Lipschitz linear model", func() {
		It("reduces to the linear image plus the variance and the input set", func() {
			model := &affineModel{
				a:        mat.NewDense(2, 2, []float64{0.1, 0.2, -0.1, 0.05}),
				b:        mat.NewDense(2, 1, []float64{0, 0.1}),
				c:        []float64{0.01, 0},
				variance: []float64{0.001, 0.002},
			}
			p := reach.New(model, zeroLip)
			in := ellipsoid.New(
				mat.NewVecDense(2, []float64{0.5, -0.5}),
				mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.02}),
			)
			l := law([]float64{-1, -0.5}, 0.2)

			out, err := p.OneStep(in, l)
			Expect(err).NotTo(HaveOccurred())

			h := mat.NewDense(2, 2, nil)
			h.Mul(model.b, l.K)
			h.Add(model.a, h)
			mu0, _, _ := model.Predict(dynamo.Stack(in.Center, l.Action(in.Center)))
			linear := ellipsoid.New(mu0, ellipsoid.Transform(h, in.Shape))
			noise := ellipsoid.Diag([]float64{0, 0}, []float64{0.001, 0.002})

			step, err := ellipsoid.Sum(noise, linear)
			Expect(err).NotTo(HaveOccurred())
			want, err := ellipsoid.Sum(step, in)
			Expect(err).NotTo(HaveOccurred())

			Expect(mat.EqualApprox(out.Center, want.Center, 1e-12)).To(BeTrue())
			Expect(mat.EqualApprox(out.Shape, want.Shape, 1e-12)).To(BeTrue())
		})
	})

	Context("with a nonlinear model", func() {
		lip := reach.Lipschitz{Mean: []float64{sineLipschitz, sineLipschitz}, Std: []float64{0, 0}}
		in := ellipsoid.New(
			mat.NewVecDense(2, []float64{0.4, -0.2}),
			mat.NewSymDense(2, []float64{0.09, 0.02, 0.02, 0.05}),
		)
		l := law([]float64{-0.5, -0.3}, 0.1)

		It("contains the mean transition of every sampled state", func() {
			model := &sineModel{variance: []float64{1e-4, 1e-4}}
			p := reach.New(model, lip)

			out, err := p.OneStep(in, l)
			Expect(err).NotTo(HaveOccurred())
			expectPSD(out.Shape)

			var chol mat.Cholesky
			Expect(chol.Factorize(in.Shape)).To(BeTrue())
			var lower mat.TriDense
			chol.LTo(&lower)

			rng := rand.New(rand.NewSource(3))
			for i := 0; i < 2000; i++ {
				dir := mat.NewVecDense(2, []float64{rng.NormFloat64(), rng.NormFloat64()})
				dir.ScaleVec(math.Sqrt(rng.Float64())/mat.Norm(dir, 2), dir)
				x := mat.NewVecDense(2, nil)
				x.MulVec(&lower, dir)
				x.AddVec(x, in.Center)

				u := l.Action(x)
				mean, _, _ := model.Predict(dynamo.Stack(x, u))
				next := []float64{x.AtVec(0) + mean.AtVec(0), x.AtVec(1) + mean.AtVec(1)}
				Expect(ellipsoid.Contains(out, next)).To(BeTrue(), "state %v maps outside %v", x.RawVector().Data, out)
			}
		})

		It("never shrinks the total extent when c_safety grows", func() {
			model := &sineModel{variance: []float64{0.01, 0.004}}
			prev := 0.0
			for _, c := range []float64{0.5, 1, 2, 4, 8} {
				out, err := reach.New(model, lip, reach.WithSafety(c)).OneStep(in, l)
				Expect(err).NotTo(HaveOccurred())
				tr := mat.Trace(out.Shape)
				Expect(tr).To(BeNumerically(">=", prev))
				prev = tr
			}
		})
	})

	It("grows every axis with c_safety when the sources share their orientation", func() {
		model := &affineModel{
			a:        mat.NewDense(2, 2, []float64{0.2, 0, 0, 0.2}),
			b:        mat.NewDense(2, 1, []float64{0, 0}),
			c:        []float64{0, 0},
			variance: []float64{0.01, 0.01},
		}
		lip := reach.Lipschitz{Mean: []float64{0.1, 0.1}, Std: []float64{0.05, 0.05}}
		in := ellipsoid.Diag([]float64{0, 0}, []float64{0.04, 0.04})

		var prevDiag, prevAxes []float64
		for _, c := range []float64{0.25, 1, 3, 10} {
			out, err := reach.New(model, lip, reach.WithSafety(c)).OneStep(in, law([]float64{0, 0}, 0))
			Expect(err).NotTo(HaveOccurred())
			d := diagOf(out.Shape)
			axes := ellipsoid.SemiAxes(out)
			for i := range prevDiag {
				Expect(d[i]).To(BeNumerically(">=", prevDiag[i]))
				Expect(axes[i]).To(BeNumerically(">=", prevAxes[i]-1e-12))
			}
			prevDiag, prevAxes = d, axes
		}
	})

	Context("with malformed inputs", func() {
		model := constantModel([]float64{0, 0}, []float64{0.01, 0.01}, 1)
		in := ellipsoid.Diag([]float64{0, 0}, []float64{1, 1})

		It("rejects a K with the wrong number of columns", func() {
			_, err := reach.New(model, zeroLip).OneStep(in, law([]float64{1, 2, 3}, 0))
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("rejects an offset that does not match K", func() {
			bad := dynamo.NewAffineLaw(mat.NewDense(1, 2, nil), mat.NewVecDense(2, nil))
			_, err := reach.New(model, zeroLip).OneStep(in, bad)
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("rejects Lipschitz vectors of the wrong length", func() {
			lip := reach.Lipschitz{Mean: []float64{0}, Std: []float64{0, 0}}
			_, err := reach.New(model, lip).OneStep(in, law([]float64{0, 0}, 0))
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("rejects negative or NaN Lipschitz constants for points and sets alike", func() {
			point := ellipsoid.Point(mat.NewVecDense(2, nil))
			for _, lip := range []reach.Lipschitz{
				{Mean: []float64{-0.1, 0}, Std: []float64{0, 0}},
				{Mean: []float64{0, 0}, Std: []float64{0, math.NaN()}},
			} {
				_, err := reach.New(model, lip).OneStep(point, law([]float64{0, 0}, 0))
				Expect(err).To(MatchError(dynamo.ErrParameterBounds))
				_, err = reach.New(model, lip).OneStep(in, law([]float64{0, 0}, 0))
				Expect(err).To(MatchError(dynamo.ErrParameterBounds))
			}
		})

		It("rejects an indefinite input shape", func() {
			bad := ellipsoid.New(mat.NewVecDense(2, nil), mat.NewSymDense(2, []float64{1, 3, 3, 1}))
			_, err := reach.New(model, zeroLip).OneStep(bad, law([]float64{0, 0}, 0))
			Expect(err).To(MatchError(dynamo.ErrNotPSD))
		})

		It("rejects a non-positive safety factor", func() {
			_, err := reach.New(model, zeroLip, reach.WithSafety(0)).OneStep(in, law([]float64{0, 0}, 0))
			Expect(err).To(MatchError(dynamo.ErrParameterBounds))
		})

		It("rejects model outputs of the wrong size", func() {
			_, err := reach.New(brokenModel{}, zeroLip).OneStep(in, law([]float64{0, 0}, 0))
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))

			_, err = reach.New(brokenModel{}, zeroLip).OneStep(ellipsoid.Point(mat.NewVecDense(2, nil)), law([]float64{0, 0}, 0))
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})
	})

	It("logs intermediate sets without changing the result", func() {
		model := &sineModel{variance: []float64{0.01, 0.01}}
		lip := reach.Lipschitz{Mean: []float64{sineLipschitz, sineLipschitz}, Std: []float64{0.1, 0.1}}
		in := ellipsoid.Diag([]float64{0.1, 0.2}, []float64{0.02, 0.03})
		l := law([]float64{-0.2, 0.1}, 0)

		var sb strings.Builder
		logger := slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelDebug}))

		quiet, err := reach.New(model, lip).OneStep(in, l)
		Expect(err).NotTo(HaveOccurred())
		loud, err := reach.New(model, lip, reach.WithLogger(logger)).OneStep(in, l)
		Expect(err).NotTo(HaveOccurred())

		Expect(mat.Equal(quiet.Shape, loud.Shape)).To(BeTrue())
		Expect(mat.Equal(quiet.Center, loud.Center)).To(BeTrue())
		Expect(sb.String()).To(ContainSubstring("linear transformation uncertainty"))
		Expect(sb.String()).To(ContainSubstring("sum old and new uncertainty"))
	})
})
