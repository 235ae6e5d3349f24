// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/api"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [name]",
		Short:     "Print the JSON Schema of API request bodies",
		Long:      `Print the JSON Schema of one request body, or of all of them when no name is given.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: api.SchemaNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := api.SchemaNames()
			if len(args) == 1 {
				names = args
			}
			for _, name := range names {
				data, err := api.GenerateSchema(name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
