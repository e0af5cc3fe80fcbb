package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the forge
// gateway server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the forge gateway server",
		Long: `Start the forge gateway server.

The server will:
1. Load configuration from the specified file (or forge.yaml)
2. Open the durable store (Postgres or SQLite)
3. Construct the LLM client, research sub-agent, and tool dispatcher
4. Start the HTTP/SSE gateway

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  forge serve

  # Start with custom config
  forge serve --config /etc/forge/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd, configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildSessionCmd creates the "session" command group, a convenience CLI
// for exercising the pipeline without the HTTP surface.
func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and drive a forge session from the command line",
	}
	cmd.AddCommand(buildSessionCreateCmd())
	return cmd
}

func buildSessionCreateCmd() *cobra.Command {
	var (
		configPath string
		locale     string
	)
	cmd := &cobra.Command{
		Use:   "create [problem text]",
		Short: "Create a session and stream the first turn to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runSessionCreate(cmd, configPath, args[0], locale)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&locale, "locale", "l", "en", "Session locale")
	return cmd
}
