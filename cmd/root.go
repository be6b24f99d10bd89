/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/cristianoliveira/freshshell/internal/config"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/version"
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "freshshell",
	Short: "An offline-first caching proxy that never updates behind your back.",
	Long: `freshshell sits between a browser and a web app. It precaches the app's
assets, serves pages and data through per-route cache policies, and tells you
when a new version is deployed. The new version only takes over after you
accept it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.ShutdownGlobal()
	},
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.Version = version.String()

	// Hide the completion command
	RootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// setup loads configuration and starts file logging before any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	config.Load()
	if config.GetBool("debug", false) {
		colors.SetDebug(true)
	}
	if err := logging.InitGlobal(); err != nil {
		colors.Warning("file logging disabled:", err.Error())
	}
	logging.Debug("command started", "command", cmd.CommandPath())
	return nil
}
