// Package reach propagates ellipsoidal state uncertainty through a learned
// stochastic dynamics model under affine feedback.
//
//   - [Propagator.OneStep]: next-state overapproximation for a point or a set
//   - [Propagator.MultiStep]: chain of one-step propagations over a horizon
//   - [EvaluateBatch]: concurrent evaluation of candidate law sequences
//   - [Tube]: the per-step ellipsoids plus metrics and safety checks
//
// # Example
//
//	p := reach.New(model, reach.Lipschitz{Mean: lMu, Std: lSigma},
//	    reach.WithSafety(2.0), reach.WithLogger(logger))
//	tube, err := p.MultiStep(ctx, ellipsoid.Point(x0), laws)
//	if err == nil && tube.Safe(lb, ub) {
//	    // apply laws[0]
//	}
//
// # Thread Safety
//
// A Propagator is read-only after New. OneStep and MultiStep are safe to
// call concurrently as long as the model's Predict and PredictiveGradients
// are. Metrics passed to MultiStep are stateful and must not be shared.
package reach
