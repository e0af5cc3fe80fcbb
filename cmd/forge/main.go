// Package main provides the CLI entry point for the knowledge-forge
// server: an LLM-driven pipeline that decomposes a problem, explores and
// synthesizes candidate claims, validates them adversarially, and
// crystallizes a reviewed knowledge graph into a markdown document, with
// human review gates between phases.
//
// # Basic Usage
//
// Start the server:
//
//	forge serve --config forge.yaml
//
// # Environment Variables
//
//   - FORGE_CONFIG: path to configuration file (default: forge.yaml)
//   - FORGE_LLM_API_KEY: LLM provider API key
//   - DATABASE_URL: Postgres DSN (sqlite is used when unset)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "forge - an LLM-driven knowledge-creation pipeline",
		Long: `forge drives an LLM through a six-phase pipeline
(DECOMPOSE -> EXPLORE -> SYNTHESIZE -> VALIDATE -> BUILD -> CRYSTALLIZE),
producing a validated knowledge graph and markdown document with
human-in-the-loop review gates between phases.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd(), buildSessionCmd())
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("FORGE_CONFIG"); env != "" {
		return env
	}
	return "forge.yaml"
}
