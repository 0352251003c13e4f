package metrics

import (
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
)

// SafetyViolations counts the steps whose bounding box leaves the safe box.
type SafetyViolations struct {
	name       string
	lower      []float64
	upper      []float64
	violations int
}

func NewSafetyViolations(lower, upper []float64) *SafetyViolations {
	return &SafetyViolations{
		name:  "safety_violations",
		lower: append([]float64(nil), lower...),
		upper: append([]float64(nil), upper...),
	}
}

func (s *SafetyViolations) Name() string {
	return s.name
}

func (s *SafetyViolations) Observe(step int, e ellipsoid.Ellipsoid, u dynamo.Control) {
	if !ellipsoid.InsideBox(e, s.lower, s.upper) {
		s.violations++
	}
}

func (s *SafetyViolations) Value() float64 {
	return float64(s.violations)
}

func (s *SafetyViolations) Reset() {
	s.violations = 0
}
