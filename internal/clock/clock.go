// Package clock supplies wall time to the attempt lifecycle and scheduler.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Components default to System when nil.
type Clock func() time.Time

// System is the process wall clock in UTC.
func System() time.Time { return time.Now().UTC() }

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System
	}
	return c
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{t: t.UTC()} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t.UTC()
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
	return m.t
}

// Clock adapts m to the Clock func type.
func (m *Manual) Clock() Clock { return m.Now }
