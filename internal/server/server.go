// Package server exposes the tool catalog over the Model Context
// Protocol, on either the SSE or stdio transport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/dfirlabs/timesketch-mcp/internal/query"
	"github.com/dfirlabs/timesketch-mcp/internal/tools"
)

const (
	serverName    = "timesketch-mcp"
	shutdownGrace = 10 * time.Second
)

// serverInstructions is returned on the MCP initialize response so
// clients know when to reach for these tools.
const serverInstructions = `Timesketch holds forensic timelines: sketches containing indexed events. ` +
	`Use these tools to list sketches, discover which data types a sketch contains, ` +
	`search events with Lucene/OpenSearch queries, and run aggregations. ` +
	`Start with list_sketches and discover_data_types to orient yourself, then ` +
	`search_events with narrow queries and follow next_cursor for more pages.`

// New builds the MCP server with every catalog tool registered.
func New(version string, dispatcher *tools.Dispatcher) *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	for _, spec := range dispatcher.Registry().List() {
		srv.AddTool(protocolTool(spec), toolHandler(dispatcher, spec.Name))
	}
	return srv
}

// ServeStdio runs the server over stdin/stdout. Logging must already be
// routed to stderr; stdout belongs to the protocol.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

// ServeSSE runs the server over SSE on addr, shutting down when ctx is
// cancelled.
func ServeSSE(ctx context.Context, srv *server.MCPServer, addr string) error {
	sse := server.NewSSEServer(srv)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sse shutdown: %w", err)
		}
		return nil
	}
}

// protocolTool renders a catalog spec as an MCP tool declaration.
func protocolTool(spec tools.Spec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(spec.Description)}
	for _, field := range spec.Input.Fields {
		propOpts := []mcp.PropertyOption{mcp.Description(field.Description)}
		if field.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		switch field.Type {
		case query.TypeString:
			if len(field.Enum) > 0 {
				propOpts = append(propOpts, mcp.Enum(field.Enum...))
			}
			opts = append(opts, mcp.WithString(field.Name, propOpts...))
		case query.TypeInt:
			opts = append(opts, mcp.WithNumber(field.Name, propOpts...))
		case query.TypeBool:
			opts = append(opts, mcp.WithBoolean(field.Name, propOpts...))
		case query.TypeStringList:
			propOpts = append(propOpts, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(field.Name, propOpts...))
		case query.TypeObject:
			opts = append(opts, mcp.WithObject(field.Name, propOpts...))
		}
	}
	return mcp.NewTool(spec.Name, opts...)
}

// toolHandler adapts the dispatcher to mcp-go's handler signature. Tool
// failures travel as protocol tool errors carrying the JSON envelope,
// never as Go errors, so the client always receives a structured result.
func toolHandler(dispatcher *tools.Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := dispatcher.Dispatch(ctx, tools.CallRequest{
			Tool: name,
			Args: req.GetArguments(),
		})
		if resp.Err != nil {
			data, err := json.Marshal(resp.Err)
			if err != nil {
				return mcp.NewToolResultError(resp.Err.Message), nil
			}
			return mcp.NewToolResultError(string(data)), nil
		}
		data, err := json.Marshal(resp.Page)
		if err != nil {
			log.Error().Err(err).Str("tool", name).Msg("failed to marshal result page")
			return mcp.NewToolResultError("internal: failed to serialize result page"), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
