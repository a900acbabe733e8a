package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfirlabs/timesketch-mcp/internal/normalize"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
	"github.com/dfirlabs/timesketch-mcp/internal/tools"
)

type stubBackend struct {
	listResp *timesketch.SketchList
}

func (s *stubBackend) Search(context.Context, timesketch.Query) (*timesketch.SearchResponse, error) {
	return &timesketch.SearchResponse{}, nil
}

func (s *stubBackend) Aggregate(context.Context, timesketch.Query) (*timesketch.AggregationResponse, error) {
	return &timesketch.AggregationResponse{}, nil
}

func (s *stubBackend) ListSketches(context.Context, int) (*timesketch.SketchList, error) {
	return s.listResp, nil
}

func (s *stubBackend) GetSketch(context.Context, int) (*timesketch.Sketch, error) {
	return &timesketch.Sketch{}, nil
}

func newTestDispatcher(backend tools.Backend) *tools.Dispatcher {
	registry := tools.MustNewRegistry(tools.Catalog()...)
	return tools.NewDispatcher(registry, backend, func() time.Time {
		return time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	})
}

func TestNew_RegistersEveryCatalogTool(t *testing.T) {
	srv := New("test", newTestDispatcher(&stubBackend{}))
	require.NotNil(t, srv)
}

func TestProtocolTool_CarriesNameAndSchema(t *testing.T) {
	for _, spec := range tools.Catalog() {
		tool := protocolTool(spec)
		assert.Equal(t, spec.Name, tool.Name)
		assert.Equal(t, spec.Description, tool.Description)
		for _, field := range spec.Input.Fields {
			assert.Contains(t, tool.InputSchema.Properties, field.Name,
				"tool %s should declare %s", spec.Name, field.Name)
		}
	}
}

func TestToolHandler_ResultPageAsText(t *testing.T) {
	backend := &stubBackend{
		listResp: &timesketch.SketchList{
			Objects: []timesketch.Sketch{{ID: 1, Name: "intrusion-2025", Status: "ready"}},
		},
	}
	handler := toolHandler(newTestDispatcher(backend), "list_sketches")

	req := mcp.CallToolRequest{}
	req.Params.Name = "list_sketches"
	req.Params.Arguments = map[string]any{}

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var page normalize.Page
	require.NoError(t, json.Unmarshal([]byte(text.Text), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "intrusion-2025", page.Items[0]["name"])
}

func TestToolHandler_ErrorEnvelopeAsToolError(t *testing.T) {
	handler := toolHandler(newTestDispatcher(&stubBackend{}), "search_events")

	req := mcp.CallToolRequest{}
	req.Params.Name = "search_events"
	req.Params.Arguments = map[string]any{"sketch_id": "not-a-sketch", "query": "*"}

	result, err := handler(context.Background(), req)
	require.NoError(t, err, "tool failures travel inside the result, not as Go errors")
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "VALIDATION_ERROR")
	assert.Contains(t, text.Text, `"retryable":false`)
}
