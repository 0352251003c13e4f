package metrics

import (
	"math"

	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
)

// ControlEffort is the mean L1 norm of the nominal actions along the tube.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(step int, e ellipsoid.Ellipsoid, u dynamo.Control) {
	for _, val := range u {
		c.sum += math.Abs(val)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
