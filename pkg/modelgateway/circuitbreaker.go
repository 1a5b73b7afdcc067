package modelgateway

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// circuitBreaker implements the per-provider breaker from spec §4.4: after
// 5 consecutive failures within 60s the provider is marked OPEN for 60s; a
// single probe after the window transitions to HALF-OPEN; one success
// closes it.
type circuitBreaker struct {
	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	windowStart      time.Time
	openedAt         time.Time
	now              func() time.Time
}

const (
	failureThreshold = 5
	failureWindow    = 60 * time.Second
	openDuration     = 60 * time.Second
)

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{now: time.Now}
}

// Allow reports whether a call may proceed, transitioning OPEN->HALF_OPEN
// once openDuration has elapsed.
func (c *circuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateOpen:
		if c.now().Sub(c.openedAt) >= openDuration {
			c.state = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker unconditionally.
func (c *circuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateClosed
	c.consecutiveFails = 0
}

// RecordFailure increments the consecutive-failure count within the
// rolling window and opens the breaker once the threshold is hit.
func (c *circuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.state == stateHalfOpen {
		// Probe failed; reopen immediately.
		c.state = stateOpen
		c.openedAt = now
		c.consecutiveFails = failureThreshold
		return
	}

	if c.windowStart.IsZero() || now.Sub(c.windowStart) > failureWindow {
		c.windowStart = now
		c.consecutiveFails = 0
	}
	c.consecutiveFails++

	if c.consecutiveFails >= failureThreshold {
		c.state = stateOpen
		c.openedAt = now
	}
}
