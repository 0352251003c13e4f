package export

import (
	"fmt"
	"image/color"
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/reach"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const boundaryPoints = 96

var (
	startColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	endColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	boxColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// PlotOptions selects the projection plane and the optional safe box drawn
// behind the tube.
type PlotOptions struct {
	Title  string
	XAxis  int
	YAxis  int
	Labels []string
	Lower  []float64
	Upper  []float64
}

// Boundary samples n points on the boundary of a 2-D ellipsoid. A point
// yields its center once.
func Boundary(e ellipsoid.Ellipsoid, n int) (plotter.XYs, error) {
	if e.Dim() != 2 {
		return nil, fmt.Errorf("%w: boundary needs a 2-D ellipsoid, got %d", dynamo.ErrDimensionMismatch, e.Dim())
	}
	cx, cy := e.Center.AtVec(0), e.Center.AtVec(1)
	if e.IsPoint() {
		return plotter.XYs{{X: cx, Y: cy}}, nil
	}

	var es mat.EigenSym
	if ok := es.Factorize(e.Shape, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", dynamo.ErrNotPSD)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	r0 := math.Sqrt(math.Max(vals[0], 0))
	r1 := math.Sqrt(math.Max(vals[1], 0))
	pts := make(plotter.XYs, n+1)
	for k := 0; k <= n; k++ {
		t := 2 * math.Pi * float64(k) / float64(n)
		a, b := r0*math.Cos(t), r1*math.Sin(t)
		pts[k].X = cx + vecs.At(0, 0)*a + vecs.At(0, 1)*b
		pts[k].Y = cy + vecs.At(1, 0)*a + vecs.At(1, 1)*b
	}
	return pts, nil
}

// TubePlot draws every set of the tube projected on (XAxis, YAxis), shaded
// from the start set to the final set, with the centers joined by a line.
func TubePlot(tube *reach.Tube, opts PlotOptions) (*plot.Plot, error) {
	sets := append([]ellipsoid.Ellipsoid{tube.Start}, tube.Steps...)

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = axisLabel(opts.Labels, opts.XAxis)
	p.Y.Label.Text = axisLabel(opts.Labels, opts.YAxis)

	if len(opts.Lower) > 0 && len(opts.Upper) > 0 {
		box, err := boxLine(opts)
		if err != nil {
			return nil, err
		}
		p.Add(box)
		p.Legend.Add("safe box", box)
	}

	centers := make(plotter.XYs, 0, len(sets))
	for t, e := range sets {
		proj, err := ellipsoid.Project(e, opts.XAxis, opts.YAxis)
		if err != nil {
			return nil, err
		}
		centers = append(centers, plotter.XY{X: proj.Center.AtVec(0), Y: proj.Center.AtVec(1)})
		if proj.IsPoint() {
			continue
		}

		pts, err := Boundary(proj, boundaryPoints)
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", t, err)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = shade(t, len(sets))
		line.Width = vg.Points(1)
		p.Add(line)
		if t == len(sets)-1 {
			p.Legend.Add(fmt.Sprintf("step %d", t), line)
		}
	}

	path, err := plotter.NewLine(centers)
	if err != nil {
		return nil, err
	}
	path.Color = color.Gray{Y: 0x60}
	path.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
	p.Add(path)

	marks, err := plotter.NewScatter(centers)
	if err != nil {
		return nil, err
	}
	marks.GlyphStyle.Shape = draw.CircleGlyph{}
	marks.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(marks)
	p.Legend.Add("centers", marks)

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveTube renders the tube to path; the extension picks the format
// (png, svg, pdf, ...).
func SaveTube(path string, tube *reach.Tube, opts PlotOptions) error {
	p, err := TubePlot(tube, opts)
	if err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

func boxLine(opts PlotOptions) (*plotter.Line, error) {
	i, j := opts.XAxis, opts.YAxis
	if i >= len(opts.Lower) || j >= len(opts.Lower) || len(opts.Lower) != len(opts.Upper) {
		return nil, fmt.Errorf("%w: safe box has %d dims", dynamo.ErrDimensionMismatch, len(opts.Lower))
	}
	lx, ux := opts.Lower[i], opts.Upper[i]
	ly, uy := opts.Lower[j], opts.Upper[j]
	line, err := plotter.NewLine(plotter.XYs{
		{X: lx, Y: ly}, {X: ux, Y: ly}, {X: ux, Y: uy}, {X: lx, Y: uy}, {X: lx, Y: ly},
	})
	if err != nil {
		return nil, err
	}
	line.Color = boxColor
	line.Width = vg.Points(1.5)
	return line, nil
}

func shade(t, n int) color.Color {
	f := 0.0
	if n > 1 {
		f = float64(t) / float64(n-1)
	}
	mix := func(a, b uint8) uint8 { return uint8(math.Round(float64(a) + f*(float64(b)-float64(a)))) }
	return color.RGBA{
		R: mix(startColor.R, endColor.R),
		G: mix(startColor.G, endColor.G),
		B: mix(startColor.B, endColor.B),
		A: 0xff,
	}
}

func axisLabel(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("x%d", i)
}

// StateLabels names the state coordinates of the built-in models.
func StateLabels(model string) []string {
	switch model {
	case "pendulum":
		return []string{"theta", "omega"}
	case "cartpole":
		return []string{"cart position", "cart velocity", "pole angle", "pole angular velocity"}
	}
	return nil
}

// SemiAxisSeries returns the largest semi-axis of each set, start first.
func SemiAxisSeries(tube *reach.Tube) []float64 {
	out := make([]float64, 0, tube.Horizon()+1)
	for _, e := range append([]ellipsoid.Ellipsoid{tube.Start}, tube.Steps...) {
		axes := ellipsoid.SemiAxes(e)
		m := 0.0
		for _, a := range axes {
			m = math.Max(m, a)
		}
		out = append(out, m)
	}
	return out
}
