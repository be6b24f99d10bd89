/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/agent"
	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/cristianoliveira/freshshell/internal/config"
	"github.com/cristianoliveira/freshshell/internal/session"
	"github.com/cristianoliveira/freshshell/internal/timer"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the headless proxy command.
func NewServeCmd(open runtimeOpener) *cobra.Command {
	if open == nil {
		panic("NewServeCmd: runtime opener cannot be nil")
	}
	var listen string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the caching proxy",
		Long: `Run the caching proxy in the foreground.

New versions are installed in the background and announced here. Use
'freshshell run' to review notifications and reload into a new version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			ln, err := net.Listen("tcp", listenAddr(listen))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			colors.Success(fmt.Sprintf("proxying %s on http://%s", rt.origin, ln.Addr()))

			out := cmd.OutOrStdout()
			return runProxy(ctx, rt, ln, func(s *session.Session) {
				s.Coordinator.NeedRefresh().Subscribe(func(needRefresh bool) {
					if needRefresh {
						fmt.Fprintln(out, "A new version is available. Run 'freshshell run' to reload into it.")
					}
				})
			})
		},
	}
	serveCmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	return serveCmd
}

func listenAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return config.Get("listen", "127.0.0.1:8787")
}

// runProxy serves ln and keeps a page session alive until ctx is done.
func runProxy(ctx context.Context, rt *runtime, ln net.Listener, onSession func(*session.Session)) error {
	sched := timer.NewReal()
	defer sched.Stop()

	srv := agent.NewServer(rt.container, rt.origin, rt.metrics, rt.log, proxiedHosts()...)
	runner := session.NewRunner(rt.sessionConfig(sched))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		return runner.Run(gctx, onSession)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func init() {
	cmd.RootCmd.AddCommand(NewServeCmd(openRuntime))
}
