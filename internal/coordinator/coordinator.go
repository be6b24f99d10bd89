// Package coordinator drives the page-side update state machine: it registers
// the update agent, polls for new versions, raises needRefresh and hands
// control to a waiting version when the user consents.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cristianoliveira/freshshell/internal/agent"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/signal"
	"github.com/cristianoliveira/freshshell/internal/timer"
)

// ErrHandoffTimeout is logged when the new version never announces that it
// took control and the coordinator reloads anyway.
var ErrHandoffTimeout = errors.New("controller change did not arrive in time")

// State is the coordinator's update state.
type State int

const (
	Idle State = iota
	Registered
	UpdateAvailable
	Applying
	Reloading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Registered:
		return "registered"
	case UpdateAvailable:
		return "update-available"
	case Applying:
		return "applying"
	case Reloading:
		return "reloading"
	default:
		return "unknown"
	}
}

// Options tunes the coordinator timers.
type Options struct {
	// PollInterval is how often the agent is asked to look for a new version.
	PollInterval time.Duration
	// FallbackDelay is the grace period before reloading when the container
	// cannot emit controllerchange.
	FallbackDelay time.Duration
	// HandoffTimeout bounds the wait for controllerchange. Zero disables it.
	HandoffTimeout time.Duration
}

// DefaultOptions returns the production timers.
func DefaultOptions() Options {
	return Options{
		PollInterval:   60 * time.Second,
		FallbackDelay:  time.Second,
		HandoffTimeout: 10 * time.Second,
	}
}

// Coordinator owns the UpdateState of one page session.
type Coordinator struct {
	container   Container
	sched       timer.Scheduler
	reload      func()
	log         logging.Logger
	opts        Options
	needRefresh *signal.Value[bool]

	mu              sync.Mutex
	state           State
	reg             Registration
	awaitingControl bool
	cancels         []timer.Cancel
	unsubscribe     func()
	ctx             context.Context
	cancel          context.CancelFunc
	closed          bool
}

// New creates an idle coordinator. reload is invoked exactly once, when the
// coordinator enters Reloading.
func New(c Container, sched timer.Scheduler, reload func(), logger logging.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = def.FallbackDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		container:   c,
		sched:       sched,
		reload:      reload,
		log:         logger.With("component", "coordinator"),
		opts:        opts,
		needRefresh: signal.New(false),
		state:       Idle,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// NeedRefresh is raised once per detected update.
func (c *Coordinator) NeedRefresh() *signal.Value[bool] {
	return c.needRefresh
}

// State returns the current update state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start registers the agent. A registration failure is logged and leaves the
// coordinator Idle; the session keeps working without updates.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.container == nil {
		return errors.New("coordinator: nil container")
	}
	c.mu.Lock()
	if c.state != Idle || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	reg, err := c.container.Register(ctx)
	if err != nil {
		c.log.Warn("agent registration failed, continuing without offline support", "error", err)
		return nil
	}

	events, unsubscribe := reg.Subscribe()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.state = Registered
	c.reg = reg
	c.unsubscribe = unsubscribe
	c.cancels = append(c.cancels, c.sched.Every(c.opts.PollInterval, c.poll))
	c.mu.Unlock()
	c.log.Info("registered", "poll_interval", c.opts.PollInterval)

	go c.consume(events)

	if reg.HasWaiting() {
		c.markUpdateAvailable("")
	}
	return nil
}

func (c *Coordinator) poll() {
	c.mu.Lock()
	reg, state, ctx := c.reg, c.state, c.ctx
	c.mu.Unlock()
	if reg == nil || state == Reloading {
		return
	}
	if _, err := reg.Update(ctx); err != nil {
		c.log.Debug("update check failed, retrying on next tick", "error", err)
	}
}

func (c *Coordinator) consume(events <-chan agent.Event) {
	for ev := range events {
		switch ev.Type {
		case agent.EventStateChange:
			if ev.State == agent.StateInstalled {
				c.markUpdateAvailable(ev.Version)
			}
		case agent.EventControllerChange:
			c.onControllerChange()
		}
	}
}

// markUpdateAvailable moves Registered to UpdateAvailable. Any other state
// makes it a no-op, so repeated detections raise needRefresh once.
func (c *Coordinator) markUpdateAvailable(version string) {
	c.mu.Lock()
	if c.state != Registered {
		c.mu.Unlock()
		return
	}
	c.state = UpdateAvailable
	c.mu.Unlock()

	c.log.Info("update available", "version", version)
	c.needRefresh.Set(true)
}

// ApplyUpdate is the user's consent. It reports false unless an update is
// available. Once Applying is entered the only way out is a reload.
func (c *Coordinator) ApplyUpdate() bool {
	c.mu.Lock()
	if c.state != UpdateAvailable {
		c.mu.Unlock()
		return false
	}
	c.state = Applying
	c.awaitingControl = true
	reg, ctx := c.reg, c.ctx
	if !c.container.SupportsControllerChange() {
		c.cancels = append(c.cancels, c.sched.AfterFunc(c.opts.FallbackDelay, func() {
			c.enterReloading("fallback")
		}))
	} else if c.opts.HandoffTimeout > 0 {
		c.cancels = append(c.cancels, c.sched.AfterFunc(c.opts.HandoffTimeout, func() {
			c.log.Warn("reloading without controller change", "error", ErrHandoffTimeout)
			c.enterReloading("handoff-timeout")
		}))
	}
	c.mu.Unlock()

	c.log.Info("applying update")
	if err := reg.PostMessage(ctx, agent.Message{Type: agent.MessageSkipWaiting}); err != nil {
		c.log.Error("skipWaiting failed", "error", err)
	}
	return true
}

func (c *Coordinator) onControllerChange() {
	c.mu.Lock()
	awaiting := c.awaitingControl
	c.mu.Unlock()
	if !awaiting {
		c.log.Debug("ignoring controller change outside of an update")
		return
	}
	c.enterReloading("controllerchange")
}

// enterReloading is guarded by the state so the event path and the fallback
// path together still reload once.
func (c *Coordinator) enterReloading(reason string) {
	c.mu.Lock()
	if c.state != Applying {
		c.mu.Unlock()
		return
	}
	c.state = Reloading
	c.awaitingControl = false
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.log.Info("reloading", "reason", reason)
	if c.reload != nil {
		c.reload()
	}
}

// Close cancels timers and the event subscription.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
}
