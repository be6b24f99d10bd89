/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"fmt"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/version"
	"github.com/spf13/cobra"
)

type versionClient interface {
	Version() string
}

type buildInfo struct{}

func (buildInfo) Version() string { return version.String() }

// NewVersionCmd creates the version command with explicit dependencies.
func NewVersionCmd(client versionClient) *cobra.Command {
	if client == nil {
		panic("NewVersionCmd: client dependency cannot be nil")
	}

	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show the current version of freshshell.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "freshshell version %s\n", client.Version())
			return nil
		},
	}
}

func init() {
	cmd.RootCmd.AddCommand(NewVersionCmd(buildInfo{}))
}
