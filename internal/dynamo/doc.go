// Package dynamo provides the core value types shared by the reachability
// packages.
//
//   - [State], [Control]: plain vectors
//   - [Predictive]: probabilistic transition model (mean, variance, Jacobian)
//   - [AffineLaw]: feedback u = K·x + k
//   - [System], [Integrator]: nominal ODE models used to build predictive models
//   - [StepError]: failure of one step of a multi-step propagation
//
// # Example
//
//	law := dynamo.NewAffineLaw(K, k)
//	u := law.Action(x)
//	mean, variance, err := model.Predict(dynamo.Stack(x, u))
//
// All values are treated as immutable once built; nothing here holds
// shared mutable state.
package dynamo
