// Package cli wires the cobra command tree.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd(version string) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "timesketch-mcp",
		Short: "MCP server bridging agents to a Timesketch backend",
		Long: `timesketch-mcp exposes a Timesketch forensic timeline backend to
tool-calling agents over the Model Context Protocol.

Backend coordinates come from the environment:
  TIMESKETCH_HOST       backend host (required)
  TIMESKETCH_PORT       backend port (default: 5000)
  TIMESKETCH_SCHEME     http or https (default: http)
  TIMESKETCH_USER       backend username (required)
  TIMESKETCH_PASSWORD   backend password (required)

Examples:
  timesketch-mcp serve
  timesketch-mcp serve --transport stdio
  timesketch-mcp serve --mcp-host 0.0.0.0 --mcp-port 8081`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			// Logs go to stderr unconditionally: on the stdio transport,
			// stdout belongs to the protocol.
			log.Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd(version))
	cmd.AddCommand(NewVersionCmd(version))

	return cmd
}
