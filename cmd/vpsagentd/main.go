// Command vpsagentd runs the agentic VPS management service: the HTTP/WS
// gateway, task orchestrator, and agent loop described in spec §1-§9,
// wired over Postgres/CockroachDB, Anthropic/OpenAI, and Perplexity.
//
// # Basic usage
//
//	vpsagentd serve --config vpsagent.yaml
//	vpsagentd migrate up --config vpsagent.yaml
//	vpsagentd vault encrypt --secret $SESSION_SECRET
package main

import (
	"log/slog"
	"os"
)

// Build information, populated by ldflags during release builds:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level command error to spec §9's exit code
// contract: 0 ok (never reached here, Execute only returns on error), 1
// config error, 2 bind/listen failure.
func exitCodeFor(err error) int {
	if _, ok := err.(*listenError); ok {
		return 2
	}
	return 1
}
