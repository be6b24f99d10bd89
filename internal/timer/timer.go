// Package timer provides cancellable scheduled tasks for page-session components.
package timer

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cancel stops a scheduled task. Calling it more than once is safe.
type Cancel func()

// Scheduler schedules one-shot and repeating tasks.
type Scheduler interface {
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Cancel
	// Every runs fn every d until cancelled.
	Every(d time.Duration, fn func()) Cancel
	// Now returns the scheduler's current time.
	Now() time.Time
}

// Real schedules one-shot tasks with time.AfterFunc and repeating tasks on a
// cron runner.
type Real struct {
	cron     *cron.Cron
	stopOnce sync.Once
}

var _ Scheduler = (*Real)(nil)

// NewReal creates and starts a scheduler backed by the wall clock.
func NewReal() *Real {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)))
	c.Start()
	return &Real{cron: c}
}

// AfterFunc runs fn once after d.
func (r *Real) AfterFunc(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Every runs fn every d. Intervals below one second are rounded up by cron.
func (r *Real) Every(d time.Duration, fn func()) Cancel {
	id := r.cron.Schedule(cron.Every(d), cron.FuncJob(fn))
	var once sync.Once
	return func() {
		once.Do(func() { r.cron.Remove(id) })
	}
}

// Now returns the wall clock time.
func (r *Real) Now() time.Time {
	return time.Now()
}

// Stop halts the cron runner and waits for running jobs to finish.
func (r *Real) Stop() {
	r.stopOnce.Do(func() {
		<-r.cron.Stop().Done()
	})
}
