package timer

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit calls to Advance. Tasks run on the
// goroutine that calls Advance, in due-time order.
//
// Example usage:
//
//	clock := timer.NewManual(time.Unix(0, 0))
//	clock.AfterFunc(time.Second, func() { fired = true })
//	clock.Advance(time.Second)
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks map[int]*manualTask
}

type manualTask struct {
	id    int
	at    time.Time
	every time.Duration
	fn    func()
}

var _ Scheduler = (*Manual)(nil)

// NewManual returns a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, tasks: make(map[int]*manualTask)}
}

// AfterFunc schedules fn to run once d after the current manual time.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Cancel {
	return m.add(d, 0, fn)
}

// Every schedules fn to run every d.
func (m *Manual) Every(d time.Duration, fn func()) Cancel {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) add(d, every time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := m.seq
	m.tasks[id] = &manualTask{id: id, at: m.now.Add(d), every: every, fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	}
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of scheduled tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, running every task that becomes due.
// Tasks scheduled by running tasks are honored if they fall within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			delete(m.tasks, next.id)
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDue(target time.Time) *manualTask {
	var next *manualTask
	for _, t := range m.tasks {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
			next = t
		}
	}
	return next
}
