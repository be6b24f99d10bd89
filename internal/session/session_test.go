package session

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cristianoliveira/freshshell/internal/agent"
	"github.com/cristianoliveira/freshshell/internal/binding"
	"github.com/cristianoliveira/freshshell/internal/cachestore"
	"github.com/cristianoliveira/freshshell/internal/coordinator"
	"github.com/cristianoliveira/freshshell/internal/hooks"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/policy"
	"github.com/cristianoliveira/freshshell/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://app.example.com"

// deployment serves a version manifest and its assets.
type deployment struct {
	mu      sync.Mutex
	version string
	offline bool
}

func (d *deployment) deploy(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

func (d *deployment) Fetch(_ context.Context, req policy.Request) (agent.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return agent.Response{}, fmt.Errorf("%w: offline", agent.ErrNetwork)
	}
	switch req.URL.Path {
	case agent.VersionPath:
		body := fmt.Sprintf(`{"version":%q,"assets":["/assets/app.js"]}`, d.version)
		return agent.Response{Status: 200, Body: []byte(body), Source: agent.SourceNetwork}, nil
	case "/assets/app.js":
		return agent.Response{Status: 200, Body: []byte("app " + d.version), Source: agent.SourceNetwork}, nil
	}
	return agent.Response{Status: 404, Source: agent.SourceNetwork}, nil
}

type env struct {
	deploy    *deployment
	container *agent.Container
	clock     *timer.Manual
	cfg       Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)
	store, err := cachestore.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := &deployment{version: "v1"}
	clock := timer.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := agent.NewContainer(agent.ContainerConfig{
		Origin:  u,
		Table:   policy.DefaultTable(policy.DefaultOptions()),
		Store:   store,
		Fetcher: d,
		Now:     clock.Now,
	})
	return &env{
		deploy:    d,
		container: c,
		clock:     clock,
		cfg: Config{
			Container:   coordinator.FromAgent(c),
			Scheduler:   clock,
			Coordinator: coordinator.DefaultOptions(),
		},
	}
}

func TestUpdateDetectedAfterPollShowsOneNotification(t *testing.T) {
	e := newEnv(t)
	s := New(e.cfg, func() {})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, coordinator.Registered, s.Coordinator.State())

	e.deploy.deploy("v2")
	e.clock.Advance(60 * time.Second)

	require.Eventually(t, func() bool {
		return s.Coordinator.State() == coordinator.UpdateAvailable
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Notifications.List()) == 1 }, time.Second, 5*time.Millisecond)

	e.clock.Advance(5 * time.Minute)
	list := s.Notifications.List()
	require.Len(t, list, 1)
	assert.Equal(t, binding.UpdateNotificationID, list[0].ID)
	assert.Equal(t, notify.KindInfo, list[0].Kind)
	assert.False(t, list[0].Exiting)
}

func TestRegistrationFailureKeepsSessionUsable(t *testing.T) {
	e := newEnv(t)
	e.deploy.offline = true
	s := New(e.cfg, func() {})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, coordinator.Idle, s.Coordinator.State())
	id := s.Notifications.Info("still works")
	_, ok := s.Notifications.Get(id)
	assert.True(t, ok)
}

func TestRunnerReloadsIntoNewVersion(t *testing.T) {
	e := newEnv(t)
	r := NewRunner(e.cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := make(chan *Session, 4)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, func(s *Session) { sessions <- s }) }()

	first := <-sessions
	e.deploy.deploy("v2")
	e.clock.Advance(60 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := first.Notifications.Get(binding.UpdateNotificationID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.True(t, first.Notifications.Trigger(binding.UpdateNotificationID))

	var second *Session
	select {
	case second = <-sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not reloaded")
	}
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, r.Reloads())
	assert.Same(t, second, r.Current())
	assert.Equal(t, "v2", e.container.Controller().Version())
	assert.Equal(t, coordinator.Registered, second.Coordinator.State())
	assert.Empty(t, second.Notifications.List())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunnerRequiresContainer(t *testing.T) {
	r := NewRunner(Config{Scheduler: timer.NewManual(time.Now())})
	assert.Error(t, r.Run(context.Background(), nil))
}

func TestHooksRunOnUpdateAndReload(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	log := filepath.Join(t.TempDir(), "hooks.log")
	for _, point := range []string{hooks.UpdateAvailable, hooks.Reload} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, point), 0755))
		script := fmt.Sprintf("#!/bin/sh\necho \"$FRESHSHELL_HOOK_POINT\" >> %q\n", log)
		require.NoError(t, os.WriteFile(filepath.Join(dir, point, "log.sh"), []byte(script), 0755))
	}
	e.cfg.Hooks = hooks.New(hooks.Config{Dir: dir, Enabled: true})

	r := NewRunner(e.cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessions := make(chan *Session, 4)
	go func() { _ = r.Run(ctx, func(s *Session) { sessions <- s }) }()

	first := <-sessions
	e.deploy.deploy("v2")
	e.clock.Advance(60 * time.Second)
	readLog := func() []string {
		data, _ := os.ReadFile(log)
		return strings.Fields(string(data))
	}
	require.Eventually(t, func() bool { return len(readLog()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hooks.UpdateAvailable}, readLog())

	require.True(t, first.Notifications.Trigger(binding.UpdateNotificationID))
	<-sessions

	require.Eventually(t, func() bool { return len(readLog()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hooks.UpdateAvailable, hooks.Reload}, readLog())
}
