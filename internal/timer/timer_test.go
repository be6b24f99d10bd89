package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualAfterFuncRunsOnceWhenDue(t *testing.T) {
	clock := NewManual(time.Unix(0, 0))
	calls := 0
	clock.AfterFunc(200*time.Millisecond, func() { calls++ })

	clock.Advance(199 * time.Millisecond)
	assert.Equal(t, 0, calls)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, clock.Pending())
}

func TestManualEveryRepeatsUntilCancelled(t *testing.T) {
	clock := NewManual(time.Unix(0, 0))
	calls := 0
	cancel := clock.Every(60*time.Second, func() { calls++ })

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 3, calls)

	cancel()
	cancel()
	clock.Advance(5 * time.Minute)
	assert.Equal(t, 3, calls)
}

func TestManualRunsTasksInDueOrder(t *testing.T) {
	clock := NewManual(time.Unix(0, 0))
	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	clock.AfterFunc(time.Second, func() { order = append(order, "first") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "third") })

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestManualTaskScheduledFromTaskRunsWithinWindow(t *testing.T) {
	clock := NewManual(time.Unix(0, 0))
	var fired []time.Duration
	start := clock.Now()
	clock.AfterFunc(time.Second, func() {
		fired = append(fired, clock.Now().Sub(start))
		clock.AfterFunc(time.Second, func() {
			fired = append(fired, clock.Now().Sub(start))
		})
	})

	clock.Advance(3 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fired)
	assert.Equal(t, 3*time.Second, clock.Now().Sub(start))
}

func TestRealAfterFuncCanBeCancelled(t *testing.T) {
	sched := NewReal()
	defer sched.Stop()

	var fired atomic.Bool
	cancel := sched.AfterFunc(50*time.Millisecond, func() { fired.Store(true) })
	cancel()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRealAfterFuncFires(t *testing.T) {
	sched := NewReal()
	defer sched.Stop()

	done := make(chan struct{})
	sched.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "task did not fire")
	}
}
