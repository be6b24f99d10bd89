/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"errors"
	"fmt"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/admin"
	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/spf13/cobra"
)

// NewAdminCmd creates the maintenance commands.
func NewAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintenance operations on the app's document store",
	}

	var dbDir string
	purgeCmd := &cobra.Command{
		Use:   "purge-teams",
		Short: "Delete every document in the teams collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbDir == "" {
				return errors.New("--db is required")
			}
			store, err := admin.OpenClover(dbDir)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := admin.PurgeTeams(cmd.Context(), store, logging.GetGlobal())
			if err != nil {
				colors.Error(fmt.Sprintf("deleted %d of %d teams", res.Deleted, res.Listed))
				return err
			}
			colors.Success(fmt.Sprintf("deleted %d teams", res.Deleted))
			return nil
		},
	}
	purgeCmd.Flags().StringVar(&dbDir, "db", "", "clover database directory")
	adminCmd.AddCommand(purgeCmd)
	return adminCmd
}

func init() {
	cmd.RootCmd.AddCommand(NewAdminCmd())
}
