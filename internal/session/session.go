// Package session assembles one page session: the update coordinator, the
// notification manager and the binding between them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cristianoliveira/freshshell/internal/binding"
	"github.com/cristianoliveira/freshshell/internal/coordinator"
	"github.com/cristianoliveira/freshshell/internal/hooks"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/timer"
)

// Config is shared by every session a Runner creates.
type Config struct {
	Container            coordinator.Container
	Scheduler            timer.Scheduler
	Logger               logging.Logger
	Coordinator          coordinator.Options
	NotificationDuration time.Duration
	// Hooks runs user scripts on update-available and reload. Optional.
	Hooks *hooks.Runner
}

// Session is one page lifetime. A reload ends it.
type Session struct {
	ID            string
	Coordinator   *coordinator.Coordinator
	Notifications *notify.Manager

	log       logging.Logger
	hooks     *hooks.Runner
	unbind    func()
	unwatch   func()
	closeOnce sync.Once
}

// New builds a session. reload is called when the coordinator reloads.
func New(cfg Config, reload func()) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = timer.NewReal()
	}
	id := uuid.NewString()
	log := cfg.Logger.With("session", id)
	s := &Session{
		ID:    id,
		log:   log,
		hooks: cfg.Hooks,
		Notifications: notify.New(notify.Config{
			Scheduler:       cfg.Scheduler,
			Logger:          log,
			DefaultDuration: cfg.NotificationDuration,
		}),
		Coordinator: coordinator.New(cfg.Container, cfg.Scheduler, reload, log, cfg.Coordinator),
	}
	s.unbind = binding.Bind(s.Coordinator, s.Notifications)
	s.unwatch = s.Coordinator.NeedRefresh().Subscribe(func(need bool) {
		if need {
			go s.runHook(context.Background(), hooks.UpdateAvailable)
		}
	})
	return s
}

func (s *Session) runHook(ctx context.Context, point string) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.Run(ctx, point, map[string]string{"session_id": s.ID}); err != nil {
		s.log.Warn("hook aborted", "point", point, "error", err)
	}
}

// Start registers the agent. Registration failures do not fail the session.
func (s *Session) Start(ctx context.Context) error {
	s.log.Info("session started")
	return s.Coordinator.Start(ctx)
}

// Close tears the session down.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.unwatch()
		s.unbind()
		s.Coordinator.Close()
		s.Notifications.Close()
		s.log.Info("session closed")
	})
}

// Runner keeps one session alive and replaces it on every reload.
type Runner struct {
	cfg Config
	log logging.Logger

	mu      sync.Mutex
	current *Session
	reloads int
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Runner{cfg: cfg, log: cfg.Logger.With("component", "session")}
}

// Current returns the live session, or nil before Run.
func (r *Runner) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Reloads returns how many times the session was replaced.
func (r *Runner) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

// Run starts a session, calls onSession with it and blocks until ctx is done.
// Each reload closes the session and starts a new one.
func (r *Runner) Run(ctx context.Context, onSession func(*Session)) error {
	if r.cfg.Container == nil {
		return errors.New("session: nil container")
	}
	for {
		reload := make(chan struct{}, 1)
		s := New(r.cfg, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
		if err := s.Start(ctx); err != nil {
			s.Close()
			return err
		}

		r.mu.Lock()
		r.current = s
		r.mu.Unlock()
		if onSession != nil {
			onSession(s)
		}

		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-reload:
			s.Close()
			s.runHook(ctx, hooks.Reload)
			r.mu.Lock()
			r.reloads++
			r.mu.Unlock()
			r.log.Info("reloading session", "previous", s.ID)
		}
	}
}
