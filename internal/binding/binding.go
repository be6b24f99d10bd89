// Package binding turns the coordinator's needRefresh signal into the update
// notification.
package binding

import (
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/signal"
)

const (
	// UpdateNotificationID is the fixed id of the update notification.
	UpdateNotificationID = "app-update"
	UpdateTitle          = "A new version is available"
	ReloadLabel          = "Reload"
)

// Updater applies a pending update on user consent.
type Updater interface {
	NeedRefresh() *signal.Value[bool]
	ApplyUpdate() bool
}

// Notifier is the subset of the notification manager the binding uses.
type Notifier interface {
	Show(kind notify.Kind, title string, opts ...notify.Option) string
	Dismiss(id string)
}

// Bind shows the update notification whenever needRefresh is true. The
// returned function stops observing.
func Bind(u Updater, n Notifier) (unbind func()) {
	return u.NeedRefresh().Subscribe(func(needRefresh bool) {
		if !needRefresh {
			return
		}
		n.Show(notify.KindInfo, UpdateTitle,
			notify.WithID(UpdateNotificationID),
			notify.WithDuration(notify.Persistent),
			notify.WithAction(ReloadLabel, func() {
				u.ApplyUpdate()
				n.Dismiss(UpdateNotificationID)
			}),
		)
	})
}
