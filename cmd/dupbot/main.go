// Package main is the entry point for the dupbot server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dupbot/dupbot/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, config.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)

	cmd := &cobra.Command{
		Use:     "dupbot",
		Short:   "Duplicate-issue suggestion bot",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Long: `Dupbot keeps a semantic index of issues, pull requests, and discussions
across GitHub and Hugging Face repositories, and replies to freshly opened
threads with links to the closest prior ones.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. YAML config file (if --config specified)
  3. .env file (if --env-file specified or .env exists in current directory)
  4. Environment variables

Environment variables use the ISSUE_BOT prefix with double-underscore nesting,
e.g. ISSUE_BOT_DATABASE__CONNECTION_STRING, ISSUE_BOT_GITHUB_API__WEBHOOK_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(configPath, envFile)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to .env file")

	return cmd
}
