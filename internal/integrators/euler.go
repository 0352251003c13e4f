package integrators

import "github.com/san-kum/safereach/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

// ByName returns a constructor for the named integrator.
func ByName(name string) (func() dynamo.Integrator, bool) {
	switch name {
	case "euler":
		return func() dynamo.Integrator { return NewEuler() }, true
	case "rk4", "":
		return func() dynamo.Integrator { return NewRK4() }, true
	}
	return nil, false
}
