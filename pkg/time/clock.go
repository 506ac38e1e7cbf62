package time

import (
	"sync"
	"time"
)

// clock provides the lease clock
// leases are compared across processes and hosts, so this is wall-clock time
// (time.Now) and not the monotonic reading: every participant must agree on the epoch
type Clock interface {
	Now() time.Time
}

// microseconds since the unix epoch, the unit lock scores are stored in
func Micros(c Clock) int64 {
	return c.Now().UnixMicro()
}

// reads the host clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// clock that only moves when told to, for tests
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
