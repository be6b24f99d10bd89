package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cristianoliveira/freshshell/internal/agent"
	"github.com/cristianoliveira/freshshell/internal/cachestore"
	"github.com/cristianoliveira/freshshell/internal/config"
	"github.com/cristianoliveira/freshshell/internal/coordinator"
	"github.com/cristianoliveira/freshshell/internal/hooks"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/policy"
	"github.com/cristianoliveira/freshshell/internal/session"
	"github.com/cristianoliveira/freshshell/internal/timer"
)

const fetchTimeout = 30 * time.Second

// runtime is everything a command needs to talk to the origin and the cache.
type runtime struct {
	origin    *url.URL
	table     policy.Table
	manifest  policy.Manifest
	store     cachestore.Store
	fetcher   agent.Fetcher
	metrics   *agent.Metrics
	container *agent.Container
	hooks     *hooks.Runner
	log       logging.Logger
}

// runtimeOpener builds a runtime. Commands take one so tests can swap the
// network and the store.
type runtimeOpener func(ctx context.Context) (*runtime, error)

func openRuntime(ctx context.Context) (*runtime, error) {
	origin, err := url.Parse(config.Get("origin", ""))
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", config.Get("origin", ""))
	}

	table, err := loadTable()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	return newRuntime(origin, table, loadManifest(), store, agent.NewFastHTTPFetcher(fetchTimeout)), nil
}

func newRuntime(origin *url.URL, table policy.Table, manifest policy.Manifest, store cachestore.Store, fetcher agent.Fetcher) *runtime {
	log := logging.GetGlobal()
	metrics := agent.NewMetrics()
	hookCfg := hooks.ConfigFromSettings()
	hookCfg.Logger = log
	return &runtime{
		origin:   origin,
		table:    table,
		manifest: manifest,
		store:    store,
		fetcher:  fetcher,
		metrics:  metrics,
		hooks:    hooks.New(hookCfg),
		log:      log,
		container: agent.NewContainer(agent.ContainerConfig{
			Origin:   origin,
			Table:    table,
			Manifest: manifest,
			Store:    store,
			Fetcher:  fetcher,
			Logger:   log,
			Metrics:  metrics,
		}),
	}
}

func (r *runtime) Close() error {
	r.hooks.Wait()
	return r.store.Close()
}

// sessionConfig returns the page-session settings for this runtime.
func (r *runtime) sessionConfig(sched timer.Scheduler) session.Config {
	opts := coordinator.DefaultOptions()
	opts.PollInterval = config.GetSeconds("poll_interval_seconds", opts.PollInterval)
	return session.Config{
		Container:            coordinator.FromAgent(r.container),
		Scheduler:            sched,
		Logger:               r.log,
		Coordinator:          opts,
		NotificationDuration: config.GetMillis("notification_duration_ms", notify.DefaultDuration),
		Hooks:                r.hooks,
	}
}

func loadTable() (policy.Table, error) {
	table := policy.DefaultTable(policy.Options{
		NavigationTimeout: config.GetSeconds("navigation_timeout_seconds", 3*time.Second),
		DatabaseHosts:     config.GetList("database_hosts"),
		StylesheetHosts:   config.GetList("stylesheet_hosts"),
	})

	path := config.Path()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy overrides: %w", err)
	}
	overrides, err := policy.ParseOverrides(data)
	if err != nil {
		return nil, err
	}
	return table.WithOverrides(overrides)
}

// proxiedHosts lists the third-party hosts forwarded besides the origin.
func proxiedHosts() []string {
	return append(config.GetList("database_hosts"), config.GetList("stylesheet_hosts")...)
}

func loadManifest() policy.Manifest {
	globs := config.GetList("precache_globs")
	if len(globs) == 0 {
		return policy.DefaultManifest()
	}
	return policy.Manifest{Globs: globs}
}

func openStore(ctx context.Context) (cachestore.Store, error) {
	switch backend := config.Get("cache_backend", "sqlite"); backend {
	case "redis":
		s, err := cachestore.NewRedisStore(ctx, config.Get("redis_addr", "127.0.0.1:6379"), 0)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := cachestore.NewSQLiteStore(config.Get("cache_db", ""))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
