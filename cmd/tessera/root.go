// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the tessera CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tessera",
		Short: "Tessera - a multi-tenant UI extension runtime",
		Long: `Tessera registers plugins in a catalog, installs them per organization,
serves their bundles and renders their extension points inside a sandbox.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/tessera/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPluginCmd())
	cmd.AddCommand(NewHashKeyCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
