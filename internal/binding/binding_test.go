package binding

import (
	"testing"
	"time"

	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/signal"
	"github.com/cristianoliveira/freshshell/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpdater struct {
	needRefresh *signal.Value[bool]
	applied     int
}

func (f *fakeUpdater) NeedRefresh() *signal.Value[bool] { return f.needRefresh }

func (f *fakeUpdater) ApplyUpdate() bool {
	f.applied++
	return true
}

func setup(t *testing.T) (*fakeUpdater, *notify.Manager, *timer.Manual) {
	t.Helper()
	clock := timer.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m := notify.New(notify.Config{Scheduler: clock})
	t.Cleanup(m.Close)
	u := &fakeUpdater{needRefresh: signal.New(false)}
	return u, m, clock
}

func TestNothingShownWhileNoRefreshNeeded(t *testing.T) {
	u, m, _ := setup(t)
	unbind := Bind(u, m)
	defer unbind()

	assert.Empty(t, m.List())
}

func TestNeedRefreshShowsPersistentUpdateNotification(t *testing.T) {
	u, m, clock := setup(t)
	unbind := Bind(u, m)
	defer unbind()

	u.needRefresh.Set(true)
	clock.Advance(time.Hour)

	list := m.List()
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, UpdateNotificationID, n.ID)
	assert.Equal(t, notify.KindInfo, n.Kind)
	assert.Equal(t, UpdateTitle, n.Title)
	assert.True(t, n.IsPersistent())
	assert.False(t, n.Exiting)
	require.NotNil(t, n.Action)
	assert.Equal(t, ReloadLabel, n.Action.Label)
}

func TestAlreadyTrueSignalShowsOnBind(t *testing.T) {
	u, m, _ := setup(t)
	u.needRefresh.Set(true)

	unbind := Bind(u, m)
	defer unbind()

	assert.Len(t, m.List(), 1)
}

func TestRetriggeringKeepsOneNotification(t *testing.T) {
	u, m, _ := setup(t)
	unbind := Bind(u, m)
	defer unbind()

	u.needRefresh.Set(true)
	u.needRefresh.Set(false)
	u.needRefresh.Set(true)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, UpdateNotificationID, list[0].ID)
}

func TestReloadActionAppliesAndDismisses(t *testing.T) {
	u, m, clock := setup(t)
	unbind := Bind(u, m)
	defer unbind()
	u.needRefresh.Set(true)

	require.True(t, m.Trigger(UpdateNotificationID))

	assert.Equal(t, 1, u.applied)
	n, ok := m.Get(UpdateNotificationID)
	require.True(t, ok)
	assert.True(t, n.Exiting)

	clock.Advance(notify.ExitDelay)
	assert.Empty(t, m.List())
}

func TestUnbindStopsObserving(t *testing.T) {
	u, m, _ := setup(t)
	unbind := Bind(u, m)
	unbind()

	u.needRefresh.Set(true)

	assert.Empty(t, m.List())
}
