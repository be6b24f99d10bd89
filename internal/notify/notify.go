// Package notify is the session's toast manager. It owns the live collection
// of notifications; producers only hold the ids returned by Show.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/timer"
)

// Kind is the visual category of a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

const (
	// Persistent disables the auto-dismiss timer.
	Persistent time.Duration = -1
	// DefaultDuration is used when Show is called without WithDuration.
	DefaultDuration = 4000 * time.Millisecond
	// ExitDelay is how long a dismissed notification stays in the collection
	// with Exiting set.
	ExitDelay = 200 * time.Millisecond
)

// Action is an optional button attached to a notification.
type Action struct {
	Label string
	Run   func()
}

// Notification is a snapshot of one live entry.
type Notification struct {
	ID        string
	Kind      Kind
	Title     string
	Body      string
	CreatedAt time.Time
	Exiting   bool
	Duration  time.Duration
	Action    *Action
}

// IsPersistent reports whether the notification never expires on its own.
func (n Notification) IsPersistent() bool {
	return n.Duration == Persistent
}

// Option customizes Show.
type Option func(*showOptions)

type showOptions struct {
	body     string
	duration time.Duration
	id       string
	action   *Action
}

// WithBody sets the secondary text.
func WithBody(body string) Option {
	return func(o *showOptions) { o.body = body }
}

// WithDuration sets the auto-dismiss delay. Negative values mean Persistent,
// zero keeps the manager default.
func WithDuration(d time.Duration) Option {
	return func(o *showOptions) {
		switch {
		case d < 0:
			o.duration = Persistent
		case d > 0:
			o.duration = d
		}
	}
}

// WithID uses a fixed id. Showing an id that is already live replaces that
// entry in place.
func WithID(id string) Option {
	return func(o *showOptions) { o.id = id }
}

// WithAction attaches an action button.
func WithAction(label string, run func()) Option {
	return func(o *showOptions) { o.action = &Action{Label: label, Run: run} }
}

// Config configures a Manager.
type Config struct {
	Scheduler       timer.Scheduler
	Logger          logging.Logger
	DefaultDuration time.Duration
}

type entry struct {
	n       Notification
	expire  timer.Cancel
	removal timer.Cancel
}

func (e *entry) cancelTimers() {
	if e.expire != nil {
		e.expire()
		e.expire = nil
	}
	if e.removal != nil {
		e.removal()
		e.removal = nil
	}
}

// Manager owns the live notification collection of a session.
type Manager struct {
	sched           timer.Scheduler
	log             logging.Logger
	defaultDuration time.Duration

	mu      sync.Mutex
	entries []*entry
	subs    map[int]func([]Notification)
	nextSub int
	closed  bool
}

// New creates a manager.
func New(cfg Config) *Manager {
	if cfg.Scheduler == nil {
		cfg.Scheduler = timer.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.DefaultDuration == 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	return &Manager{
		sched:           cfg.Scheduler,
		log:             cfg.Logger.With("component", "notify"),
		defaultDuration: cfg.DefaultDuration,
		subs:            make(map[int]func([]Notification)),
	}
}

// Show adds a notification and returns its id.
func (m *Manager) Show(kind Kind, title string, opts ...Option) string {
	o := showOptions{duration: m.defaultDuration}
	for _, opt := range opts {
		opt(&o)
	}
	id := o.id
	if id == "" {
		id = uuid.NewString()
	}

	e := &entry{n: Notification{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Body:      o.body,
		CreatedAt: m.sched.Now(),
		Duration:  o.duration,
		Action:    o.action,
	}}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return id
	}
	if i := m.indexLocked(id); i >= 0 {
		m.entries[i].cancelTimers()
		m.entries[i] = e
	} else {
		m.entries = append(m.entries, e)
	}
	if !e.n.IsPersistent() {
		e.expire = m.sched.AfterFunc(e.n.Duration, func() { m.dismissEntry(e) })
	}
	list, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug("notification shown", "id", id, "kind", kind, "duration", o.duration)
	publish(subs, list)
	return id
}

// Info shows an info notification.
func (m *Manager) Info(title string, opts ...Option) string {
	return m.Show(KindInfo, title, opts...)
}

// Success shows a success notification.
func (m *Manager) Success(title string, opts ...Option) string {
	return m.Show(KindSuccess, title, opts...)
}

// Warning shows a warning notification.
func (m *Manager) Warning(title string, opts ...Option) string {
	return m.Show(KindWarning, title, opts...)
}

// Error shows an error notification.
func (m *Manager) Error(title string, opts ...Option) string {
	return m.Show(KindError, title, opts...)
}

// Dismiss marks the notification as exiting and removes it after ExitDelay.
// Unknown ids and repeated calls are no-ops.
func (m *Manager) Dismiss(id string) {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.dismissLocked(m.entries[i])
}

func (m *Manager) dismissEntry(e *entry) {
	m.mu.Lock()
	m.dismissLocked(e)
}

// dismissLocked is entered with m.mu held and releases it.
func (m *Manager) dismissLocked(e *entry) {
	if m.closed || e.n.Exiting || m.indexOfEntryLocked(e) < 0 {
		m.mu.Unlock()
		return
	}
	e.n.Exiting = true
	if e.expire != nil {
		e.expire()
		e.expire = nil
	}
	e.removal = m.sched.AfterFunc(ExitDelay, func() { m.remove(e) })
	list, subs := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug("notification dismissed", "id", e.n.ID)
	publish(subs, list)
}

func (m *Manager) remove(e *entry) {
	m.mu.Lock()
	i := m.indexOfEntryLocked(e)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	e.removal = nil
	list, subs := m.snapshotLocked()
	m.mu.Unlock()

	publish(subs, list)
}

// List returns a snapshot of the live collection in display order.
func (m *Manager) List() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, _ := m.snapshotLocked()
	return list
}

// Get returns the live notification with id.
func (m *Manager) Get(id string) (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(id); i >= 0 {
		return m.entries[i].n, true
	}
	return Notification{}, false
}

// Trigger runs the action of notification id. It reports false when the id is
// unknown or has no action.
func (m *Manager) Trigger(id string) bool {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 || m.entries[i].n.Action == nil || m.entries[i].n.Action.Run == nil {
		m.mu.Unlock()
		return false
	}
	run := m.entries[i].n.Action.Run
	m.mu.Unlock()

	m.log.Debug("notification action triggered", "id", id)
	run()
	return true
}

// Subscribe calls fn with the current collection and after every change.
func (m *Manager) Subscribe(fn func([]Notification)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	list, _ := m.snapshotLocked()
	m.mu.Unlock()

	fn(list)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Close cancels all pending timers. The collection is kept as is.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, e := range m.entries {
		e.cancelTimers()
	}
}

func (m *Manager) indexLocked(id string) int {
	for i, e := range m.entries {
		if e.n.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) indexOfEntryLocked(target *entry) int {
	for i, e := range m.entries {
		if e == target {
			return i
		}
	}
	return -1
}

func (m *Manager) snapshotLocked() ([]Notification, []func([]Notification)) {
	list := make([]Notification, len(m.entries))
	for i, e := range m.entries {
		list[i] = e.n
	}
	subs := make([]func([]Notification), 0, len(m.subs))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	return list, subs
}

func publish(subs []func([]Notification), list []Notification) {
	for _, fn := range subs {
		fn(list)
	}
}
