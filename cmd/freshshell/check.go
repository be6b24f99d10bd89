/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/agent"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the command that reports the origin's deployed version.
func NewCheckCmd(open runtimeOpener) *cobra.Command {
	if open == nil {
		panic("NewCheckCmd: runtime opener cannot be nil")
	}

	return &cobra.Command{
		Use:   "check",
		Short: "Show the version deployed at the origin",
		Long: `Fetch the origin's version manifest and show which assets would be
precached for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := agent.FetchVersionManifest(cmd.Context(), rt.fetcher, rt.origin)
			if err != nil {
				return fmt.Errorf("check %s: %w", rt.origin, err)
			}
			precached := rt.manifest.Select(m.Assets)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "origin:    %s\n", rt.origin)
			fmt.Fprintf(out, "version:   %s\n", m.Version)
			fmt.Fprintf(out, "assets:    %d\n", len(m.Assets))
			fmt.Fprintf(out, "precached: %d\n", len(precached))
			for _, a := range precached {
				fmt.Fprintf(out, "  %s\n", a)
			}
			return nil
		},
	}
}

func init() {
	cmd.RootCmd.AddCommand(NewCheckCmd(openRuntime))
}
