package state

import (
	"github.com/cristianoliveira/freshshell/internal/notify"
)

// NotificationsChangedMsg is sent when the notification manager publishes a
// new snapshot.
type NotificationsChangedMsg struct {
	Notifications []notify.Notification
}

// SessionChangedMsg is sent when a reload replaced the page session.
type SessionChangedMsg struct {
	Source Source
	State  StateFunc
}
