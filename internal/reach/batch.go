package reach

import (
	"context"
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// EvaluateBatch runs MultiStep for every candidate law sequence from the same
// start, at most workers at a time (workers <= 0 means no limit). Tubes are
// returned in candidate order. The first failure cancels the remaining
// candidates. newMetrics, if set, is called once per candidate.
func EvaluateBatch(
	ctx context.Context,
	p *Propagator,
	start ellipsoid.Ellipsoid,
	candidates [][]dynamo.AffineLaw,
	workers int,
	newMetrics func() []metrics.Metric,
) ([]*Tube, error) {
	tubes := make([]*Tube, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, laws := range candidates {
		g.Go(func() error {
			var ms []metrics.Metric
			if newMetrics != nil {
				ms = newMetrics()
			}
			tube, err := p.MultiStep(gCtx, start, laws, ms...)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", i, err)
			}
			tubes[i] = tube
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tubes, nil
}
