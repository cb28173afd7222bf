// Package clock abstracts wall-clock time so lock expiry and heartbeat math
// can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time. Every expiry decision in the engine goes
// through a Clock instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// System is the production clock backed by time.Now, in UTC.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (*System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a hand-advanced clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute instant.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t.UTC()
}
