// Package clock abstracts wall time so delayed settlement can be driven by a
// virtual clock in tests.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Timer = clockwork.Timer

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// NewReal returns the wall clock.
func NewReal() Clock { return clockwork.NewRealClock() }

// Manual is a clockwork fake clock whose AfterFunc callbacks run
// synchronously on the goroutine calling Advance, in deadline order, with Now
// reading the callback's deadline.
type Manual struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clockwork.Timer

	m     *Manual
	when  time.Time
	seq   int
	f     func()
	fired chan struct{}
	done  bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{FakeClock: clockwork.NewFakeClockAt(start)}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, when: m.Now().Add(d), seq: m.seq, f: f, fired: make(chan struct{})}
	t.Timer = m.FakeClock.AfterFunc(d, func() { close(t.fired) })
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, stepping to each due deadline and
// running its callback. Timers scheduled by a callback run too if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.Now().Add(d)
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		step := t.when.Sub(m.Now())
		if step < 0 {
			step = 0
		}
		m.FakeClock.Advance(step)
		<-t.fired
		t.f()
	}
	if rest := target.Sub(m.Now()); rest > 0 {
		m.FakeClock.Advance(rest)
	}
}

// Pending reports the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
	if len(m.timers) == 0 || m.timers[0].when.After(target) {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	t.done = true
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i:i], t.m.timers[i+1:]...)
			break
		}
	}
	t.Timer.Stop()
	return true
}
