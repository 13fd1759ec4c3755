package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the vpsagentd HTTP/WS gateway",
		Long: `Start the gateway with all C1-C12 components wired:

1. Load and validate configuration
2. Open the Store (Postgres/CockroachDB)
3. Construct the credential, API-key, and backup vaults
4. Construct the LLM providers and research gateway
5. Construct the tool catalog, dispatcher, and task orchestrator
6. Construct the terminal relay and JWT verifier
7. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully`,
		Example: `  vpsagentd serve --config /etc/vpsagent/production.yaml
  vpsagentd serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
