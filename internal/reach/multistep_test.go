package reach_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/metrics"
	"github.com/san-kum/safereach/internal/reach"
	"gonum.org/v1/gonum/mat"
)

var _ = Describe("MultiStep", func() {
	var (
		p     *reach.Propagator
		start ellipsoid.Ellipsoid
		laws  []dynamo.AffineLaw
	)

	BeforeEach(func() {
		model := &sineModel{variance: []float64{0.001, 0.002}}
		lip := reach.Lipschitz{Mean: []float64{sineLipschitz, sineLipschitz}, Std: []float64{0.01, 0.01}}
		p = reach.New(model, lip, reach.WithSafety(2))
		start = ellipsoid.Point(mat.NewVecDense(2, []float64{0.2, -0.1}))
		laws = []dynamo.AffineLaw{
			law([]float64{-0.5, 0}, 0.1),
			law([]float64{-0.4, -0.1}, 0),
			law([]float64{-0.3, -0.2}, -0.1),
		}
	})

	It("returns one set per law", func() {
		tube, err := p.MultiStep(context.Background(), start, laws)
		Expect(err).NotTo(HaveOccurred())
		Expect(tube.Horizon()).To(Equal(3))
		Expect(tube.Actions).To(HaveLen(3))
		Expect(tube.Steps[0].IsPoint()).To(BeFalse())
	})

	It("feeds each output into the next step", func() {
		tube, err := p.MultiStep(context.Background(), start, laws)
		Expect(err).NotTo(HaveOccurred())

		current := start
		for i, l := range laws {
			next, err := p.OneStep(current, l)
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(next.Center, tube.Steps[i].Center)).To(BeTrue())
			Expect(mat.Equal(next.Shape, tube.Steps[i].Shape)).To(BeTrue())
			current = next
		}
		Expect(mat.Equal(tube.Final().Shape, current.Shape)).To(BeTrue())
	})

	It("records the action applied at each center", func() {
		tube, err := p.MultiStep(context.Background(), start, laws)
		Expect(err).NotTo(HaveOccurred())
		// -0.5·0.2 + 0.1
		Expect(tube.Actions[0][0]).To(BeNumerically("~", 0, 1e-12))
	})

	It("leaves the start set untouched", func() {
		before := start.Clone()
		_, err := p.MultiStep(context.Background(), start, laws)
		Expect(err).NotTo(HaveOccurred())
		Expect(start.IsPoint()).To(BeTrue())
		Expect(mat.Equal(start.Center, before.Center)).To(BeTrue())
	})

	It("rejects an empty horizon", func() {
		tube, err := p.MultiStep(context.Background(), start, nil)
		Expect(err).To(MatchError(dynamo.ErrEmptyHorizon))
		Expect(tube).To(BeNil())
	})

	It("reports the failing step", func() {
		laws[1] = law([]float64{1, 2, 3}, 0)
		tube, err := p.MultiStep(context.Background(), start, laws)
		Expect(tube).To(BeNil())

		var stepErr *dynamo.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Step).To(Equal(1))
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("stops on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tube, err := p.MultiStep(ctx, start, laws)
		Expect(err).To(MatchError(context.Canceled))
		Expect(tube).To(BeNil())
	})

	It("collects metrics along the tube", func() {
		lb, ub := []float64{-10, -10}, []float64{10, 10}
		ms := metrics.Defaults(lb, ub)
		tube, err := p.MultiStep(context.Background(), start, laws, ms...)
		Expect(err).NotTo(HaveOccurred())

		Expect(tube.Metrics).To(HaveKeyWithValue("safety_violations", 0.0))
		Expect(tube.Metrics).To(HaveKey("log_volume"))
		Expect(tube.Metrics["max_semi_axis"]).To(BeNumerically(">", 0))
		Expect(tube.Safe(lb, ub)).To(BeTrue())

		// Metrics are reset on reuse.
		again, err := p.MultiStep(context.Background(), start, laws, ms...)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Metrics).To(Equal(tube.Metrics))
	})

	It("locates the first step outside the safe box", func() {
		tube, err := p.MultiStep(context.Background(), start, laws)
		Expect(err).NotTo(HaveOccurred())
		Expect(tube.FirstViolation([]float64{-10, -10}, []float64{10, 10})).To(Equal(-1))
		Expect(tube.FirstViolation([]float64{-1e-6, -1e-6}, []float64{1e-6, 1e-6})).To(Equal(0))
		Expect(tube.Safe([]float64{-1e-6, -1e-6}, []float64{1e-6, 1e-6})).To(BeFalse())
	})
})

var _ = Describe("EvaluateBatch", func() {
	model := &sineModel{variance: []float64{0.001, 0.001}}
	lip := reach.Lipschitz{Mean: []float64{sineLipschitz, sineLipschitz}, Std: []float64{0, 0}}
	start := ellipsoid.Diag([]float64{0.1, 0.1}, []float64{0.01, 0.01})

	candidates := func() [][]dynamo.AffineLaw {
		var out [][]dynamo.AffineLaw
		for _, g := range []float64{0, -0.2, -0.5, -1, -2} {
			out = append(out, []dynamo.AffineLaw{
				law([]float64{g, 0}, 0),
				law([]float64{g, g}, 0),
			})
		}
		return out
	}

	It("returns tubes in candidate order", func() {
		p := reach.New(model, lip)
		cs := candidates()
		tubes, err := reach.EvaluateBatch(context.Background(), p, start, cs, 2, func() []metrics.Metric {
			return metrics.Defaults(nil, nil)
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(tubes).To(HaveLen(len(cs)))

		for i, laws := range cs {
			want, err := p.MultiStep(context.Background(), start, laws)
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(tubes[i].Final().Shape, want.Final().Shape)).To(BeTrue())
			Expect(tubes[i].Metrics).To(HaveLen(3))
		}
	})

	It("fails when any candidate fails", func() {
		p := reach.New(model, lip)
		cs := candidates()
		cs[3][0] = law([]float64{1}, 0)

		tubes, err := reach.EvaluateBatch(context.Background(), p, start, cs, 0, nil)
		Expect(tubes).To(BeNil())
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		Expect(err.Error()).To(ContainSubstring("candidate 3"))
	})
})
