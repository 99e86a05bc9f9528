package sim

import (
	"sync"
	"time"
)

// VTimeInSec is the time in seconds, counted from the moment a TimeTeller was
// created.
type VTimeInSec float64

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// WallClock is a TimeTeller backed by the host monotonic clock.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock whose time 0 is now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// CurrentTime returns the seconds elapsed since the clock was created.
func (c *WallClock) CurrentTime() VTimeInSec {
	return VTimeInSec(time.Since(c.start).Seconds())
}

// ManualClock is a TimeTeller whose time only moves when told to. It makes
// time-dependent tracers deterministic.
type ManualClock struct {
	lock sync.Mutex
	now  VTimeInSec
}

// NewManualClock creates a ManualClock at time 0.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// CurrentTime returns the current time.
func (c *ManualClock) CurrentTime() VTimeInSec {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d VTimeInSec) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.now += d
}
