/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/cristianoliveira/freshshell/internal/session"
	"github.com/cristianoliveira/freshshell/internal/tui/state"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the interactive command: the proxy plus a notification TUI.
func NewRunCmd(open runtimeOpener) *cobra.Command {
	if open == nil {
		panic("NewRunCmd: runtime opener cannot be nil")
	}
	var listen string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the caching proxy with the notification view",
		Long: `Run the caching proxy and show live notifications.

When a new version is available a persistent notification appears. Select it
and press Enter to reload into the new version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			rt, err := open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			ln, err := net.Listen("tcp", listenAddr(listen))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			p := tea.NewProgram(state.NewModel(nil, nil, rt.origin.String()), tea.WithAltScreen())
			bridge := newUIBridge(ctx, p)

			proxyErr := make(chan error, 1)
			go func() {
				err := runProxy(ctx, rt, ln, bridge.attach)
				if err != nil {
					p.Quit()
				}
				proxyErr <- err
			}()

			_, uiErr := p.Run()
			cancel()
			return errors.Join(uiErr, <-proxyErr)
		},
	}
	runCmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	return runCmd
}

// uiBridge forwards session changes to the bubbletea program without ever
// blocking the notification manager, whose callbacks may run inside Update.
type uiBridge struct {
	p       *tea.Program
	current atomic.Pointer[session.Session]
	changed chan struct{}
}

func newUIBridge(ctx context.Context, p *tea.Program) *uiBridge {
	b := &uiBridge{p: p, changed: make(chan struct{}, 1)}
	go b.loop(ctx)
	return b
}

func (b *uiBridge) attach(s *session.Session) {
	b.current.Store(s)
	b.p.Send(state.SessionChangedMsg{
		Source: s.Notifications,
		State:  func() string { return s.Coordinator.State().String() },
	})
	s.Notifications.Subscribe(func([]notify.Notification) { b.notify() })
}

func (b *uiBridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *uiBridge) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.changed:
			if s := b.current.Load(); s != nil {
				b.p.Send(state.NotificationsChangedMsg{Notifications: s.Notifications.List()})
			}
		}
	}
}

func init() {
	cmd.RootCmd.AddCommand(NewRunCmd(openRuntime))
}
