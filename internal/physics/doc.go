// Package physics provides the nominal systems behind simulated predictive
// models.
//
// Each model implements [dynamo.System] and [dynamo.Configurable]:
//
//   - [Pendulum]: damped pendulum driven by a torque
//   - [CartPole]: pole balanced on a cart driven by a horizontal force
//
// Wrap a system in [models.Simulated] to query it as a [dynamo.Predictive]:
//
//	sys := physics.NewCartPole()
//	model, err := models.NewSimulated(sys, func() dynamo.Integrator {
//	    return integrators.NewRK4()
//	}, 0.05, []float64{1e-4, 1e-4, 1e-4, 1e-4})
package physics
