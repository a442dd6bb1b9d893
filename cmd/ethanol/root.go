// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
	output     string
}

// NewRootCmd creates the root command for the ethanol CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ethanol",
		Short: "ethanol - authentication and authorization administration",
		Long: `ethanol manages the user directory, groups and permissions, checks
credentials against the configured auth drivers, and inspects the login
attempt audit log.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path (default: XDG config dir)")
	flags.StringVarP(&opts.output, "output", "o", formatText, "output format (text or yaml)")
	config.RegisterFlags(flags)

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newGroupCmd(opts))
	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newWhoamiCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newPasswdCmd(opts))
	cmd.AddCommand(newAttemptsCmd(opts))
	cmd.AddCommand(newAuditCmd(opts))

	return cmd
}
