package sim

import (
	"math"
	"time"
)

// PublishPeriod returns the period matching an update rate in Hz. A rate of zero means every
// basic time step.
func PublishPeriod(updateRate float64, basicTimeStep time.Duration) time.Duration {
	if updateRate <= 0 || math.IsInf(updateRate, 1) {
		return basicTimeStep
	}
	return time.Duration(float64(time.Second) / updateRate)
}

// SyncedPeriodMs returns the sampling period to give a device publishing every publishPeriod: the
// largest multiple of the basic time step not above the period, and at least one basic step.
func SyncedPeriodMs(publishPeriod, basicTimeStep time.Duration) uint {
	basicMs := basicTimeStep.Milliseconds()
	publishMs := publishPeriod.Milliseconds()
	if basicMs <= 0 {
		return uint(max(publishMs, 1))
	}
	if publishMs < basicMs {
		return uint(basicMs)
	}
	return uint(publishMs / basicMs * basicMs)
}

// TimestepGate throttles a sensor to its publish period in simulation time. The first check is
// always due.
type TimestepGate struct {
	clock      *Clock
	period     time.Duration
	lastUpdate time.Duration
	started    bool
}

// NewTimestepGate returns a gate opening at most once per period of clock time.
func NewTimestepGate(clock *Clock, period time.Duration) *TimestepGate {
	return &TimestepGate{clock: clock, period: period}
}

// Period returns the publish period of the gate.
func (g *TimestepGate) Period() time.Duration {
	return g.period
}

// IsStepDue reports whether a full period elapsed since the last due step, and if so records
// the current time as the last update.
func (g *TimestepGate) IsStepDue() bool {
	now := g.clock.Now()
	if g.started && now-g.lastUpdate < g.period {
		return false
	}
	g.started = true
	g.lastUpdate = now
	return true
}
