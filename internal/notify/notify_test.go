package notify

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/cristianoliveira/freshshell/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *timer.Manual) {
	t.Helper()
	clock := timer.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := New(Config{Scheduler: clock})
	t.Cleanup(m.Close)
	return m, clock
}

func ids(list []Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestShowAddsNotification(t *testing.T) {
	m, clock := newManager(t)

	id := m.Warning("Disk almost full", WithBody("92% used"))

	list := m.List()
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, id, n.ID)
	assert.Equal(t, KindWarning, n.Kind)
	assert.Equal(t, "Disk almost full", n.Title)
	assert.Equal(t, "92% used", n.Body)
	assert.Equal(t, clock.Now(), n.CreatedAt)
	assert.Equal(t, DefaultDuration, n.Duration)
	assert.False(t, n.Exiting)
	assert.Nil(t, n.Action)
}

func TestIDsAreUniqueWithinTheSameInstant(t *testing.T) {
	m, _ := newManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := m.Info("tick")
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, m.List(), 500)
}

func TestDefaultDurationExpiresThenRemoves(t *testing.T) {
	m, clock := newManager(t)
	id := m.Success("Saved")

	clock.Advance(DefaultDuration - time.Millisecond)
	n, ok := m.Get(id)
	require.True(t, ok)
	assert.False(t, n.Exiting)

	clock.Advance(time.Millisecond)
	n, ok = m.Get(id)
	require.True(t, ok)
	assert.True(t, n.Exiting)

	clock.Advance(ExitDelay)
	_, ok = m.Get(id)
	assert.False(t, ok)
	assert.Empty(t, m.List())
}

func TestCustomDefaultDuration(t *testing.T) {
	clock := timer.NewManual(time.Unix(0, 0))
	m := New(Config{Scheduler: clock, DefaultDuration: time.Second})
	defer m.Close()

	id := m.Info("quick")
	clock.Advance(time.Second)

	n, ok := m.Get(id)
	require.True(t, ok)
	assert.True(t, n.Exiting)
}

func TestPersistentNeverExpires(t *testing.T) {
	m, clock := newManager(t)
	id := m.Info("Stay", WithDuration(Persistent))

	clock.Advance(72 * time.Hour)

	n, ok := m.Get(id)
	require.True(t, ok)
	assert.False(t, n.Exiting)
	assert.True(t, n.IsPersistent())
	assert.Zero(t, clock.Pending())

	m.Dismiss(id)
	clock.Advance(ExitDelay)
	_, ok = m.Get(id)
	assert.False(t, ok)
}

func TestWithDurationZeroKeepsDefault(t *testing.T) {
	m, _ := newManager(t)
	id := m.Info("x", WithDuration(0))

	n, _ := m.Get(id)
	assert.Equal(t, DefaultDuration, n.Duration)
}

func TestFixedIDReplacesInPlace(t *testing.T) {
	m, clock := newManager(t)
	first := m.Info("first")
	m.Info("old", WithID("app-update"), WithDuration(time.Second))
	last := m.Info("last")

	m.Info("new", WithID("app-update"), WithDuration(Persistent))

	list := m.List()
	assert.Equal(t, []string{first, "app-update", last}, ids(list))
	assert.Equal(t, "new", list[1].Title)

	clock.Advance(2 * time.Second)
	n, ok := m.Get("app-update")
	require.True(t, ok)
	assert.False(t, n.Exiting, "replaced entry's timer must not dismiss the new one")
}

func TestShowingAnExitingIDRevivesIt(t *testing.T) {
	m, clock := newManager(t)
	m.Info("v1", WithID("app-update"), WithDuration(Persistent))
	m.Dismiss("app-update")

	m.Info("v2", WithID("app-update"), WithDuration(Persistent))
	clock.Advance(time.Second)

	n, ok := m.Get("app-update")
	require.True(t, ok)
	assert.False(t, n.Exiting)
	assert.Equal(t, "v2", n.Title)
}

func TestDismissUnknownIsNoop(t *testing.T) {
	m, clock := newManager(t)
	m.Info("keep", WithDuration(Persistent))

	m.Dismiss("nope")

	assert.Len(t, m.List(), 1)
	assert.Zero(t, clock.Pending())
}

func TestRepeatedDismissSchedulesOneRemoval(t *testing.T) {
	m, clock := newManager(t)
	id := m.Error("Boom")
	require.Equal(t, 1, clock.Pending())

	m.Dismiss(id)
	assert.Equal(t, 1, clock.Pending(), "expiry timer replaced by removal timer")
	n, _ := m.Get(id)
	assert.True(t, n.Exiting)

	m.Dismiss(id)
	m.Dismiss(id)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(ExitDelay)
	assert.Empty(t, m.List())
	assert.Zero(t, clock.Pending())
}

func TestNoDuplicateIDsAcrossRandomShows(t *testing.T) {
	m, clock := newManager(t)
	rng := rand.New(rand.NewSource(7))
	fixed := []string{"a", "b", "c"}

	for i := 0; i < 300; i++ {
		var opts []Option
		if rng.Intn(2) == 0 {
			opts = append(opts, WithID(fixed[rng.Intn(len(fixed))]))
		}
		if rng.Intn(3) == 0 {
			opts = append(opts, WithDuration(Persistent))
		}
		m.Show(KindInfo, fmt.Sprintf("n%d", i), opts...)
		if rng.Intn(4) == 0 {
			list := m.List()
			if len(list) > 0 {
				m.Dismiss(list[rng.Intn(len(list))].ID)
			}
		}
		clock.Advance(time.Duration(rng.Intn(500)) * time.Millisecond)

		seen := make(map[string]bool)
		for _, id := range ids(m.List()) {
			require.False(t, seen[id], "duplicate id %s after step %d", id, i)
			seen[id] = true
		}
	}
}

func TestTriggerRunsAction(t *testing.T) {
	m, _ := newManager(t)
	ran := 0
	id := m.Info("Update", WithAction("Reload", func() { ran++ }))
	plain := m.Info("plain")

	assert.True(t, m.Trigger(id))
	assert.False(t, m.Trigger(plain))
	assert.False(t, m.Trigger("missing"))
	assert.Equal(t, 1, ran)

	n, _ := m.Get(id)
	require.NotNil(t, n.Action)
	assert.Equal(t, "Reload", n.Action.Label)
}

func TestActionMayDismissItsOwnNotification(t *testing.T) {
	m, clock := newManager(t)
	var id string
	id = m.Info("Update", WithDuration(Persistent), WithAction("Reload", func() { m.Dismiss(id) }))

	require.True(t, m.Trigger(id))
	clock.Advance(ExitDelay)

	assert.Empty(t, m.List())
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	m, clock := newManager(t)
	var got [][]Notification
	unsubscribe := m.Subscribe(func(list []Notification) { got = append(got, list) })

	id := m.Info("hello")
	m.Dismiss(id)
	clock.Advance(ExitDelay)
	unsubscribe()
	m.Info("unseen")

	require.Len(t, got, 4)
	assert.Empty(t, got[0])
	assert.Len(t, got[1], 1)
	assert.True(t, got[2][0].Exiting)
	assert.Empty(t, got[3])
}

func TestListIsACopy(t *testing.T) {
	m, _ := newManager(t)
	m.Info("original")

	list := m.List()
	list[0].Title = "mutated"

	assert.Equal(t, "original", m.List()[0].Title)
}

func TestCloseCancelsTimers(t *testing.T) {
	m, clock := newManager(t)
	m.Info("a")
	id := m.Info("b")
	m.Dismiss(id)
	require.Equal(t, 2, clock.Pending())

	m.Close()

	assert.Zero(t, clock.Pending())
	m.Info("after close")
	assert.Len(t, m.List(), 2)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "error", KindError.String())
}
