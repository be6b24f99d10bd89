package agent

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cristianoliveira/freshshell/internal/cachestore"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/policy"
)

// eventBuffer bounds each subscriber channel. Events are dropped, and
// logged, when a subscriber falls this far behind.
const eventBuffer = 32

// ContainerConfig configures the agent container.
type ContainerConfig struct {
	Origin   *url.URL
	Table    policy.Table
	Manifest policy.Manifest
	Store    cachestore.Store
	Fetcher  Fetcher
	Logger   logging.Logger
	Metrics  *Metrics
	Now      func() time.Time
	// DisableControllerChange makes the container behave like an
	// environment without controllerchange events.
	DisableControllerChange bool
}

// Container hosts agent versions and controls which one serves requests.
type Container struct {
	cfg ContainerConfig
	log logging.Logger

	mu  sync.Mutex
	reg *Registration
}

// NewContainer creates an empty container. Nothing is installed until Register.
func NewContainer(cfg ContainerConfig) *Container {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Manifest.Globs == nil {
		cfg.Manifest = policy.DefaultManifest()
	}
	return &Container{cfg: cfg, log: cfg.Logger.With("component", "container")}
}

// SupportsControllerChange reports whether controllerchange events are emitted.
func (c *Container) SupportsControllerChange() bool {
	return !c.cfg.DisableControllerChange
}

// Register installs and activates the currently deployed version. Once it
// has succeeded, later calls return the same registration.
func (c *Container) Register(ctx context.Context) (*Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reg != nil {
		return c.reg, nil
	}

	m, err := FetchVersionManifest(ctx, c.cfg.Fetcher, c.cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	a, err := c.newAgent(m.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	if err := a.Install(ctx, m.Assets); err != nil {
		return nil, fmt.Errorf("%w: install %s: %v", ErrRegistration, m.Version, err)
	}
	if err := a.Activate(ctx); err != nil {
		return nil, fmt.Errorf("%w: activate %s: %v", ErrRegistration, m.Version, err)
	}

	c.reg = &Registration{
		container: c,
		active:    a,
		subs:      make(map[int]chan Event),
	}
	c.log.Info("registered", "version", m.Version)
	return c.reg, nil
}

// Controller returns the active agent, or nil before registration.
func (c *Container) Controller() *Agent {
	c.mu.Lock()
	reg := c.reg
	c.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.Active()
}

// Handle routes req through the active agent, or straight to the network
// when nothing is registered.
func (c *Container) Handle(ctx context.Context, req policy.Request) (Response, error) {
	if a := c.Controller(); a != nil {
		return a.Handle(ctx, req)
	}
	return fetchWithTimeout(ctx, c.cfg.Fetcher, req, 0)
}

func (c *Container) newAgent(version string) (*Agent, error) {
	return New(Config{
		Version:  version,
		Origin:   c.cfg.Origin,
		Table:    c.cfg.Table,
		Manifest: c.cfg.Manifest,
		Store:    c.cfg.Store,
		Fetcher:  c.cfg.Fetcher,
		Logger:   c.cfg.Logger,
		Metrics:  c.cfg.Metrics,
		Now:      c.cfg.Now,
	})
}

// Registration is the page-visible handle on the agent lifecycle.
type Registration struct {
	container *Container

	// updateMu serializes version checks and activation.
	updateMu sync.Mutex

	mu      sync.Mutex
	active  *Agent
	waiting *Agent
	subs    map[int]chan Event
	nextSub int
}

// Active returns the agent currently in control.
func (r *Registration) Active() *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed version waiting to take control, if any.
func (r *Registration) Waiting() *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Subscribe returns a channel of lifecycle events and a function that
// closes it.
func (r *Registration) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(c)
			}
		})
	}
}

func (r *Registration) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.container.log.Warn("dropping event for slow subscriber", "subscriber", id, "type", ev.Type, "state", ev.State)
		}
	}
}

// Update checks the origin for a new version. When one is deployed it is
// installed into the waiting slot, emitting updatefound and the installing
// and installed state changes. It reports whether a new version is waiting.
func (r *Registration) Update(ctx context.Context) (bool, error) {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	c := r.container
	m, err := FetchVersionManifest(ctx, c.cfg.Fetcher, c.cfg.Origin)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpdateCheck, err)
	}

	r.mu.Lock()
	active, waiting := r.active, r.waiting
	r.mu.Unlock()
	if m.Version == active.Version() || (waiting != nil && m.Version == waiting.Version()) {
		return false, nil
	}

	next, err := c.newAgent(m.Version)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpdateCheck, err)
	}
	c.log.Info("update found", "from", active.Version(), "to", m.Version)
	r.emit(Event{Type: EventUpdateFound, Version: m.Version})
	r.emit(Event{Type: EventStateChange, Version: m.Version, State: StateInstalling})

	if err := next.Install(ctx, m.Assets); err != nil {
		r.emit(Event{Type: EventStateChange, Version: m.Version, State: StateRedundant})
		return false, fmt.Errorf("%w: install %s: %v", ErrUpdateCheck, m.Version, err)
	}

	r.mu.Lock()
	prev := r.waiting
	r.waiting = next
	r.mu.Unlock()
	if prev != nil {
		r.emit(Event{Type: EventStateChange, Version: prev.Version(), State: StateRedundant})
		if err := c.cfg.Store.DeleteCache(ctx, prev.PrecacheName()); err != nil {
			c.log.Warn("failed to delete superseded precache", "version", prev.Version(), "error", err)
		}
	}
	r.emit(Event{Type: EventStateChange, Version: m.Version, State: StateInstalled})
	return true, nil
}

// PostMessage delivers a message from the page session.
func (r *Registration) PostMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		return r.skipWaiting(ctx)
	case MessageCheckUpdate:
		_, err := r.Update(ctx)
		return err
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// skipWaiting promotes the waiting version and emits controllerchange when
// the container supports it.
func (r *Registration) skipWaiting(ctx context.Context) error {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	next := r.Waiting()
	if next == nil {
		return ErrNoWaitingVersion
	}
	r.emit(Event{Type: EventStateChange, Version: next.Version(), State: StateActivating})
	if err := next.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", next.Version(), err)
	}

	r.mu.Lock()
	prev := r.active
	r.active = next
	r.waiting = nil
	r.mu.Unlock()

	r.container.log.Info("activated", "from", prev.Version(), "to", next.Version())
	r.emit(Event{Type: EventStateChange, Version: prev.Version(), State: StateRedundant})
	r.emit(Event{Type: EventStateChange, Version: next.Version(), State: StateActivated})
	if r.container.SupportsControllerChange() {
		r.emit(Event{Type: EventControllerChange, Version: next.Version()})
	}
	return nil
}
