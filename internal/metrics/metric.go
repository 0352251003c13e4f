package metrics

import (
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
)

// Metric summarizes a reachability tube one step at a time. Observe receives
// the ellipsoid reached after step and the action the law applied at the
// center of the previous set.
type Metric interface {
	Name() string
	Observe(step int, e ellipsoid.Ellipsoid, u dynamo.Control)
	Value() float64
	Reset()
}

// Defaults returns the metrics recorded for every run. A nil safe box skips
// the safety count.
func Defaults(lb, ub []float64) []Metric {
	ms := []Metric{
		NewMaxSemiAxis(),
		NewLogVolume(),
		NewControlEffort(),
	}
	if lb != nil && ub != nil {
		ms = append(ms, NewSafetyViolations(lb, ub))
	}
	return ms
}
