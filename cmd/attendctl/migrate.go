package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// app.Open migrates before returning.
		return withApp(cmd.Context(), func(*app.App) error {
			fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			return nil
		})
	},
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the default admin when no admin exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			return a.SeedAdmin(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedAdminCmd)
}
