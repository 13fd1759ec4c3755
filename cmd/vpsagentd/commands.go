package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildRootCmd creates the root command with all subcommands attached,
// separated from main() so tests can drive it without os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vpsagentd",
		Short:         "vpsagentd - agentic VPS management service",
		Long:          `An LLM-driven backend that plans and executes shell, Docker, Nginx, SSL, and backup operations on remote Linux hosts over SSH.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildVaultCmd(),
	)

	return rootCmd
}

const defaultConfigPath = "vpsagent.yaml"
