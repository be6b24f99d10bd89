// Package state holds the bubbletea model of the session TUI.
package state

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/tui/render"
)

const (
	headerFooterLines     = 3
	defaultViewportWidth  = 80
	defaultViewportHeight = 22
)

// Source is the notification manager as seen by the UI.
type Source interface {
	List() []notify.Notification
	Dismiss(id string)
	Trigger(id string) bool
}

// StateFunc reports the current update state for the header.
type StateFunc func() string

// Model represents the TUI model for bubbletea.
type Model struct {
	source Source
	state  StateFunc
	origin string
	keys   keyMap
	now    func() time.Time

	items    []notify.Notification
	cursor   int
	width    int
	height   int
	viewport viewport.Model
	status   string
}

// NewModel creates a model rendering source.
func NewModel(source Source, state StateFunc, origin string) *Model {
	m := &Model{
		source:   source,
		state:    state,
		origin:   origin,
		keys:     defaultKeyMap(),
		now:      time.Now,
		width:    defaultViewportWidth,
		height:   defaultViewportHeight,
		viewport: viewport.New(defaultViewportWidth, defaultViewportHeight-headerFooterLines),
	}
	m.reload()
	return m
}

// Init initializes the TUI model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.width <= 0 {
			m.width = defaultViewportWidth
		}
		if m.height <= headerFooterLines {
			m.height = defaultViewportHeight
		}
		m.viewport = viewport.New(m.width, m.height-headerFooterLines)
		m.refresh()
	case NotificationsChangedMsg:
		m.setItems(msg.Notifications)
	case SessionChangedMsg:
		m.source = msg.Source
		m.state = msg.State
		m.status = "reloaded"
		m.reload()
	}
	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Run):
		if n, ok := m.selected(); ok {
			switch {
			case !m.source.Trigger(n.ID):
				m.status = "no action"
			case n.Action != nil:
				m.status = "ran " + n.Action.Label
			default:
				m.status = "ran action"
			}
		}
		m.reload()
		return m, nil
	case key.Matches(msg, m.keys.Dismiss):
		if n, ok := m.selected(); ok {
			m.source.Dismiss(n.ID)
		}
		m.reload()
		return m, nil
	}
	m.refresh()
	return m, nil
}

// View renders the header, the notification list and the footer.
func (m *Model) View() string {
	n, ok := m.selected()
	var b strings.Builder
	b.WriteString(render.Header(render.HeaderState{
		Origin: m.origin,
		State:  m.stateString(),
		Count:  len(m.items),
	}))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(render.Footer(render.FooterState{
		HasAction: ok && n.Action != nil,
		Status:    m.status,
	}))
	return b.String()
}

// Cursor returns the selected row index.
func (m *Model) Cursor() int {
	return m.cursor
}

// Items returns the rendered notifications.
func (m *Model) Items() []notify.Notification {
	return m.items
}

func (m *Model) selected() (notify.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return notify.Notification{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) stateString() string {
	if m.state == nil {
		return "idle"
	}
	return m.state()
}

func (m *Model) reload() {
	if m.source == nil {
		m.setItems(nil)
		return
	}
	m.setItems(m.source.List())
}

func (m *Model) setItems(items []notify.Notification) {
	m.items = items
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.refresh()
}

func (m *Model) refresh() {
	if len(m.items) == 0 {
		m.viewport.SetContent(render.Empty())
		return
	}
	now := m.now()
	rows := make([]string, len(m.items))
	for i, n := range m.items {
		rows[i] = render.Row(render.RowState{
			Notification: n,
			Width:        m.width,
			Selected:     i == m.cursor,
			Now:          now,
		})
	}
	m.viewport.SetContent(strings.Join(rows, "\n"))

	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}
