package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func Real() Clock { return &realClock{} }

func (c *realClock) Now() time.Time                  { return time.Now() }
func (c *realClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (c *realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, fn)}
}

type realTimer struct{ timer *time.Timer }

func (t *realTimer) Stop() bool { return t.timer.Stop() }

// Mock provides a controllable clock for testing.
type Mock struct {
	mu     sync.RWMutex
	now    time.Time
	timers []*mockTimer
}

func NewMock(start time.Time) *Mock { return &Mock{now: start} }

func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *Mock) Since(t time.Time) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now.Sub(t)
}

func (m *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{deadline: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline order.
// Callbacks run without the clock lock held, so a timer armed by a
// firing callback fires too when its deadline falls inside the window.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		if t.deadline.After(m.now) {
			m.now = t.deadline
		}
		m.mu.Unlock()
		t.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Set jumps the clock without firing anything. Timers left behind stay
// pending until the next Advance.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Timers reports how many timers are armed and have neither fired nor
// been stopped.
func (m *Mock) Timers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.timers {
		if !t.done() {
			n++
		}
	}
	return n
}

func (m *Mock) popDue(target time.Time) *mockTimer {
	var due *mockTimer
	for _, t := range m.timers {
		if t.done() || t.deadline.After(target) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) {
			due = t
		}
	}
	if due != nil {
		due.markFired()
	}
	return due
}

type mockTimer struct {
	deadline time.Time
	fn       func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *mockTimer) done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired || t.stopped
}

func (t *mockTimer) markFired() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
}
