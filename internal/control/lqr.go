package control

import (
	"fmt"

	"github.com/san-kum/safereach/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// LQR is the regulator u = -G·(x - x*). As an affine law that is K = -G
// and k = G·x*.
type LQR struct {
	Gain   [][]float64
	Target dynamo.State
}

func NewLQR(gain [][]float64, target dynamo.State) *LQR {
	return &LQR{Gain: gain, Target: target}
}

func (l *LQR) Compute(x dynamo.State, t float64) dynamo.Control {
	u := make(dynamo.Control, len(l.Gain))
	for i := range u {
		for j := range x {
			target := 0.0
			if j < len(l.Target) {
				target = l.Target[j]
			}
			if j < len(l.Gain[i]) {
				u[i] -= l.Gain[i][j] * (x[j] - target)
			}
		}
	}
	return u
}

func (l *LQR) Law(ns int) (dynamo.AffineLaw, error) {
	g, err := gainMatrix(l.Gain, ns)
	if err != nil {
		return dynamo.AffineLaw{}, err
	}
	if len(l.Target) != 0 && len(l.Target) != ns {
		return dynamo.AffineLaw{}, fmt.Errorf("%w: target has %d entries for %d states", dynamo.ErrDimensionMismatch, len(l.Target), ns)
	}

	nu, _ := g.Dims()
	k := mat.NewVecDense(nu, nil)
	if len(l.Target) != 0 {
		k.MulVec(g, mat.NewVecDense(ns, l.Target.Clone()))
	}
	var K mat.Dense
	K.Scale(-1, g)
	return dynamo.NewAffineLaw(&K, k), nil
}

var (
	pendulumGains = [][]float64{{31.62, 10.0}}
	cartpoleGains = [][]float64{{-1.0, -2.0, -30.0, -7.0}}
)

func NewPendulumLQR() *LQR {
	return NewLQR(pendulumGains, dynamo.State{0, 0})
}

func NewCartPoleLQR() *LQR {
	return NewLQR(cartpoleGains, dynamo.State{0, 0, 0, 0})
}

// DefaultGains returns the stored regulator gains for a physics model.
func DefaultGains(model string) ([][]float64, bool) {
	switch model {
	case "pendulum":
		return pendulumGains, true
	case "cartpole":
		return cartpoleGains, true
	}
	return nil, false
}

func gainMatrix(rows [][]float64, ns int) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty gain matrix", dynamo.ErrDimensionMismatch)
	}
	g := mat.NewDense(len(rows), ns, nil)
	for i, row := range rows {
		if len(row) != ns {
			return nil, fmt.Errorf("%w: gain row %d has %d entries for %d states", dynamo.ErrDimensionMismatch, i, len(row), ns)
		}
		g.SetRow(i, row)
	}
	return g, nil
}
