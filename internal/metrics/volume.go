package metrics

import (
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
)

// LogVolume reports the log-volume of the last observed set.
type LogVolume struct {
	name string
	last float64
}

func NewLogVolume() *LogVolume {
	return &LogVolume{
		name: "log_volume",
		last: math.Inf(-1),
	}
}

func (l *LogVolume) Name() string { return l.name }

func (l *LogVolume) Observe(step int, e ellipsoid.Ellipsoid, u dynamo.Control) {
	l.last = ellipsoid.LogVolume(e)
}

func (l *LogVolume) Value() float64 {
	return l.last
}

func (l *LogVolume) Reset() {
	l.last = math.Inf(-1)
}

// MaxSemiAxis is the largest semi-axis seen anywhere along the tube.
type MaxSemiAxis struct {
	name string
	max  float64
}

func NewMaxSemiAxis() *MaxSemiAxis {
	return &MaxSemiAxis{name: "max_semi_axis"}
}

func (m *MaxSemiAxis) Name() string { return m.name }

func (m *MaxSemiAxis) Observe(step int, e ellipsoid.Ellipsoid, u dynamo.Control) {
	axes := ellipsoid.SemiAxes(e)
	if len(axes) > 0 {
		m.max = math.Max(m.max, axes[0])
	}
}

func (m *MaxSemiAxis) Value() float64 {
	return m.max
}

func (m *MaxSemiAxis) Reset() {
	m.max = 0
}
