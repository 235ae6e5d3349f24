// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the passgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passgate",
		Short: "Passgate - email/password and Google sign-in service",
		Long: `Passgate issues session tokens for users who register with an
email and password or sign in with a Google identity token.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String(flagConfig, "", "config file path (default $XDG_CONFIG_HOME/passgate/config.yaml)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
