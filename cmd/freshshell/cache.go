/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache inspection commands.
func NewCacheCmd(open runtimeOpener) *cobra.Command {
	if open == nil {
		panic("NewCacheCmd: runtime opener cannot be nil")
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response caches",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List caches and their entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			names, err := rt.store.CacheNames(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No caches")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CACHE\tENTRIES")
			for _, name := range names {
				keys, err := rt.store.Keys(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", name, len(keys))
			}
			return w.Flush()
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear [cache...]",
		Short: "Delete the named caches, or every cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			names := args
			if len(names) == 0 {
				if names, err = rt.store.CacheNames(cmd.Context()); err != nil {
					return err
				}
			}
			for _, name := range names {
				if err := rt.store.DeleteCache(cmd.Context(), name); err != nil {
					return fmt.Errorf("clear %s: %w", name, err)
				}
			}
			colors.Success(fmt.Sprintf("cleared %d cache(s)", len(names)))
			return nil
		},
	})

	return cacheCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewCacheCmd(openRuntime))
}
