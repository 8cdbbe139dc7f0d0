// Package clock abstracts the monotonic time source used by the routing
// engine so that timer-driven behavior (timeouts, garbage collection,
// periodic advertisement) can be tested without wall-clock waits.
package clock

import "time"

// Clock is the sole oracle for timer decisions. All implementations return
// monotonic seconds; callers must read it once per logical decision point
// and compare against a single snapshot rather than re-reading mid-comparison.
type Clock interface {
	Now() float64
}

// Real returns the system monotonic clock, measured in seconds since an
// arbitrary epoch fixed at construction time.
type Real struct {
	start time.Time
}

// NewReal creates a Real clock anchored to the current instant.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

func (c *Real) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Virtual is a manually-advanced clock for deterministic tests.
type Virtual struct {
	now float64
}

// NewVirtual creates a Virtual clock starting at t seconds.
func NewVirtual(t float64) *Virtual {
	return &Virtual{now: t}
}

func (c *Virtual) Now() float64 {
	return c.now
}

// Advance moves the virtual clock forward by d seconds.
func (c *Virtual) Advance(d float64) {
	c.now += d
}

// Set pins the virtual clock to an absolute value.
func (c *Virtual) Set(t float64) {
	c.now = t
}
