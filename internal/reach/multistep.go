package reach

import (
	"context"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/metrics"
)

// Tube is the sequence of ellipsoids reached after each feedback law.
type Tube struct {
	Start   ellipsoid.Ellipsoid
	Steps   []ellipsoid.Ellipsoid
	Actions []dynamo.Control
	Metrics map[string]float64
}

func (t *Tube) Horizon() int { return len(t.Steps) }

// Final returns the set reached after the last law.
func (t *Tube) Final() ellipsoid.Ellipsoid {
	if len(t.Steps) == 0 {
		return t.Start
	}
	return t.Steps[len(t.Steps)-1]
}

// FirstViolation returns the index of the first step whose bounding box
// leaves [lb, ub], or -1.
func (t *Tube) FirstViolation(lb, ub []float64) int {
	for i, e := range t.Steps {
		if !ellipsoid.InsideBox(e, lb, ub) {
			return i
		}
	}
	return -1
}

// Safe reports whether every step of the tube stays within [lb, ub].
func (t *Tube) Safe(lb, ub []float64) bool {
	return t.FirstViolation(lb, ub) < 0
}

// MultiStep chains OneStep over laws, feeding each output set into the next
// step; laws[0] is applied first. ms are reset, observed after every step and
// reported in Tube.Metrics. No partial tube is returned on error.
func (p *Propagator) MultiStep(ctx context.Context, start ellipsoid.Ellipsoid, laws []dynamo.AffineLaw, ms ...metrics.Metric) (*Tube, error) {
	if len(laws) == 0 {
		return nil, dynamo.ErrEmptyHorizon
	}

	for _, m := range ms {
		m.Reset()
	}

	tube := &Tube{
		Start:   start.Clone(),
		Steps:   make([]ellipsoid.Ellipsoid, 0, len(laws)),
		Actions: make([]dynamo.Control, 0, len(laws)),
		Metrics: make(map[string]float64),
	}

	current := start
	for t, law := range laws {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		next, err := p.OneStep(current, law)
		if err != nil {
			return nil, &dynamo.StepError{Step: t, Wrapped: err}
		}

		u := dynamo.Control(vecSlice(law.Action(current.Center)))
		for _, m := range ms {
			m.Observe(t, next, u)
		}

		tube.Steps = append(tube.Steps, next)
		tube.Actions = append(tube.Actions, u)
		current = next
	}

	for _, m := range ms {
		tube.Metrics[m.Name()] = m.Value()
	}
	p.logger.Info("reachability tube computed", "horizon", len(laws), "final", tube.Final())

	return tube, nil
}
