// Package clockwork implements the engine's clock collaborator.
package clockwork

import (
	"sync"
	"time"
)

// System reports unix seconds and never goes backwards, even if the wall
// clock does.
type System struct {
	mu   sync.Mutex
	last int64
}

// NewSystem returns a System clock.
func NewSystem() *System {
	return &System{}
}

func (c *System) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().Unix()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now int64
}

// NewFake returns a Fake clock starting at now.
func NewFake(now int64) *Fake {
	return &Fake{now: now}
}

func (c *Fake) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds.
func (c *Fake) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set jumps the clock to now.
func (c *Fake) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
