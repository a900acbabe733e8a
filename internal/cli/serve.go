package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dfirlabs/timesketch-mcp/internal/config"
	"github.com/dfirlabs/timesketch-mcp/internal/metrics"
	"github.com/dfirlabs/timesketch-mcp/internal/server"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
	"github.com/dfirlabs/timesketch-mcp/internal/tools"
)

// NewServeCmd creates the serve command.
func NewServeCmd(version string) *cobra.Command {
	var (
		mcpHost     string
		mcpPort     int
		transport   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server against the Timesketch backend named in the
environment.

The default transport is SSE on --mcp-host:--mcp-port. With
--transport stdio the server speaks MCP on stdin/stdout instead, for
clients that launch it as a subprocess.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.MCPHost = mcpHost
			cfg.MCPPort = mcpPort
			cfg.Transport = transport
			cfg.MetricsAddr = metricsAddr
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), version, cfg)
		},
	}

	cmd.Flags().StringVar(&mcpHost, "mcp-host", "127.0.0.1", "Host to bind the SSE transport to")
	cmd.Flags().IntVar(&mcpPort, "mcp-port", 8081, "Port to bind the SSE transport to")
	cmd.Flags().StringVar(&transport, "transport", "sse", "MCP transport (sse or stdio)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Optional address to serve Prometheus metrics on (e.g. :9090)")

	return cmd
}

func serve(ctx context.Context, version string, cfg *config.Config) error {
	client, err := timesketch.NewClient(cfg.Backend)
	if err != nil {
		return err
	}

	// Establish the session up front so a bad password is visible at
	// startup. A failure is not fatal: the backend may simply not be up
	// yet, and the first tool call re-attempts.
	authCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := client.Authenticate(authCtx); err != nil {
		log.Warn().Err(err).Msg("initial authentication failed, will retry on first call")
	}
	cancel()

	registry := tools.MustNewRegistry(tools.Catalog()...)
	dispatcher := tools.NewDispatcher(registry, client, nil)
	srv := server.New(version, dispatcher)

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		stop()
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	switch cfg.Transport {
	case "stdio":
		log.Info().Msg("serving MCP on stdio")
		return server.ServeStdio(srv)
	case "sse":
		addr := fmt.Sprintf("%s:%d", cfg.MCPHost, cfg.MCPPort)
		log.Info().Str("addr", addr).Msg("serving MCP over SSE")
		return server.ServeSSE(ctx, srv, addr)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
