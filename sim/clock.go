// Package sim models the simulation time a robot controller runs on: a clock that only moves
// forward by whole basic time steps, and the gates that decide when a sensor is due.
package sim

import (
	"time"

	"go.uber.org/atomic"
)

// DefaultBasicTimeStep is the basic time step of a world that does not set one.
const DefaultBasicTimeStep = 32 * time.Millisecond

// Clock is the simulation time. It starts at zero and is advanced by the driver loop by one
// basic time step per tick.
type Clock struct {
	basicTimeStep time.Duration
	now           *atomic.Duration
}

// NewClock returns a clock at time zero. A non-positive step uses DefaultBasicTimeStep.
func NewClock(basicTimeStep time.Duration) *Clock {
	if basicTimeStep <= 0 {
		basicTimeStep = DefaultBasicTimeStep
	}
	return &Clock{basicTimeStep: basicTimeStep, now: atomic.NewDuration(0)}
}

// BasicTimeStep returns the duration of one simulation step.
func (c *Clock) BasicTimeStep() time.Duration {
	return c.basicTimeStep
}

// Now returns the current simulation time.
func (c *Clock) Now() time.Duration {
	return c.now.Load()
}

// Step advances the simulation by one basic time step and returns the new time.
func (c *Clock) Step() time.Duration {
	return c.now.Add(c.basicTimeStep)
}
