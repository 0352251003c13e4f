package control

import (
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
)

// Policy produces the affine feedback law applied at every step of a
// reachability horizon.
type Policy interface {
	Law(ns int) (dynamo.AffineLaw, error)
}

// Repeat returns n copies of the policy's law for a state of dimension ns.
func Repeat(p Policy, ns, n int) ([]dynamo.AffineLaw, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: horizon %d", dynamo.ErrEmptyHorizon, n)
	}
	law, err := p.Law(ns)
	if err != nil {
		return nil, err
	}
	laws := make([]dynamo.AffineLaw, n)
	for i := range laws {
		laws[i] = law
	}
	return laws, nil
}

// ByName builds a policy from its config type. gains, target and offset
// are interpreted per type; nu is the control dimension.
func ByName(name string, gains [][]float64, target, offset []float64, nu int) (Policy, error) {
	switch name {
	case "none", "":
		return NewNone(nu), nil
	case "lqr":
		return NewLQR(gains, target), nil
	case "affine":
		return NewStatic(gains, offset), nil
	case "pd":
		if len(gains) != 1 || len(gains[0]) != 2 {
			return nil, fmt.Errorf("%w: pd needs gains [[kp, kd]]", dynamo.ErrParameterBounds)
		}
		setpoint := 0.0
		if len(target) > 0 {
			setpoint = target[0]
		}
		return NewPD(gains[0][0], gains[0][1], setpoint), nil
	}
	return nil, fmt.Errorf("unknown controller: %s", name)
}
