package control

import (
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// PD regulates the first state to Target using the second state as its
// rate: u = Kp·(Target - x0) - Kd·x1.
type PD struct {
	Kp     float64
	Kd     float64
	Target float64
}

func NewPD(kp, kd, target float64) *PD {
	return &PD{
		Kp:     kp,
		Kd:     kd,
		Target: target,
	}
}

func (p *PD) Compute(x dynamo.State, t float64) dynamo.Control {
	if len(x) < 2 {
		return dynamo.Control{0}
	}
	return dynamo.Control{p.Kp*(p.Target-x[0]) - p.Kd*x[1]}
}

func (p *PD) Law(ns int) (dynamo.AffineLaw, error) {
	if ns < 2 {
		return dynamo.AffineLaw{}, fmt.Errorf("%w: pd needs at least 2 states, got %d", dynamo.ErrDimensionMismatch, ns)
	}
	K := mat.NewDense(1, ns, nil)
	K.Set(0, 0, -p.Kp)
	K.Set(0, 1, -p.Kd)
	return dynamo.NewAffineLaw(K, mat.NewVecDense(1, []float64{p.Kp * p.Target})), nil
}

// GetParams returns tunable parameters
func (p *PD) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Kd":     p.Kd,
		"Target": p.Target,
	}
}

// SetParam adjusts a PD parameter
func (p *PD) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		p.Kp = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
