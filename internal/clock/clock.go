// Package clock abstracts time so loops with long intervals can be tested
// without waiting for real time to pass.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the time operations used by the agent's loops.
type Clock interface {
	// Now returns the current time according to this clock.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After waits for the duration to elapse on the system clock.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sleep blocks for d on the given clock, returning early with the context
// error if ctx is cancelled first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// MockClock implements Clock with a controllable time value. Channels
// returned by After fire when Advance moves the clock past their deadline.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

// NewMockClock creates a new mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// After registers a waiter that fires once the clock reaches now+d.
func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := m.current.Add(d)
	if d <= 0 {
		ch <- m.current
		return ch
	}
	m.waiters = append(m.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Advance moves the clock forward by the given duration and fires any
// waiters whose deadline has passed.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = m.current.Add(d)

	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.deadline.After(m.current) {
			w.ch <- m.current
			continue
		}
		remaining = append(remaining, w)
	}
	m.waiters = remaining
}

// Waiters returns the number of pending After channels. Tests use it to
// wait until a loop is blocked on the clock before advancing it.
func (m *MockClock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
