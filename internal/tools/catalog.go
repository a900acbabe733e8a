// Package tools holds the closed tool catalog, the registry answering
// discovery, and the dispatch loop that turns validated tool calls into
// backend queries and bounded result pages.
package tools

import (
	"context"
	"time"

	"github.com/dfirlabs/timesketch-mcp/internal/normalize"
	"github.com/dfirlabs/timesketch-mcp/internal/query"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
)

// Kind tags each tool variant. The catalog is closed at compile time: a
// tool that is not one of these kinds cannot exist inside the bridge,
// while discovery still lists every variant by name for the protocol.
type Kind int

const (
	KindListSketches Kind = iota
	KindGetSketch
	KindSearchEvents
	KindDiscoverDataTypes
	KindRunAggregation
)

// Backend is the slice of the Timesketch client the handlers need. The
// stub used in tests implements the same interface.
type Backend interface {
	Search(ctx context.Context, q timesketch.Query) (*timesketch.SearchResponse, error)
	Aggregate(ctx context.Context, q timesketch.Query) (*timesketch.AggregationResponse, error)
	ListSketches(ctx context.Context, page int) (*timesketch.SketchList, error)
	GetSketch(ctx context.Context, id int) (*timesketch.Sketch, error)
}

// Handler composes translator, backend, and normalizer for one tool. now
// anchors open time bounds so the composition stays deterministic.
type Handler func(ctx context.Context, backend Backend, now time.Time, args map[string]any) (normalize.Page, error)

// Spec describes one tool: its wire name, schemas, and handler. Specs are
// constructed once at startup and never mutated.
type Spec struct {
	Kind        Kind
	Name        string
	Description string
	Input       query.Schema
	Output      map[string]any
	Handler     Handler
}

// ValidateCall checks a call's arguments against the tool's declared
// input schema.
func ValidateCall(spec Spec, args map[string]any) error {
	return query.ValidateArgs(args, spec.Input)
}

// pageOutput is the declared output schema shared by every tool: all of
// them return one bounded result page.
var pageOutput = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items":           map[string]any{"type": "array", "description": "Result records, at most page_size of them."},
		"next_cursor":     map[string]any{"type": "string", "description": "Opaque cursor for the next page, present only when more data exists."},
		"total_estimate":  map[string]any{"type": "integer", "description": "Backend's estimate of the total match count."},
		"truncated":       map[string]any{"type": "boolean", "description": "True when items or field values were cut to fit the response budget."},
		"dropped_records": map[string]any{"type": "integer", "description": "Backend records discarded because they could not be parsed."},
	},
}

const searchDescription = `Search a Timesketch sketch with a Lucene/OpenSearch query and return matching events.

Events carry datetime (useful for sorting), data_type (useful for filtering), and message by default.
Always put double quotes around field values (data_type:"syslog:cron:task_run", not data_type:syslog:cron:task_run).

Examples:
  Datatype      data_type:"apache:access_log:entry"
  Field match   filename:*.docx
  Exact phrase  "mimikatz.exe"
  Boolean       (ssh AND error) OR tag:bruteforce
  Wildcard      user:sam*
  Regex         host:/.*\.google\.com/

Large result sets are paged: follow next_cursor to fetch the next slice.`

// Catalog returns the full tool catalog. The slice order is the discovery
// order.
func Catalog() []Spec {
	return []Spec{
		{
			Kind:        KindListSketches,
			Name:        "list_sketches",
			Description: "List the Timesketch sketches visible to the authenticated user, with id, name, description, and status.",
			Input: query.Schema{Fields: []query.Field{
				{Name: "page", Type: query.TypeInt, Description: "Listing page to fetch, starting at 1."},
				{Name: "page_cursor", Type: query.TypeString, Description: "Cursor from a previous listing page to continue from. Takes precedence over page."},
			}},
			Output:  pageOutput,
			Handler: handleListSketches,
		},
		{
			Kind:        KindGetSketch,
			Name:        "get_sketch",
			Description: "Fetch one sketch's metadata including its timelines.",
			Input: query.Schema{Fields: []query.Field{
				{Name: "sketch_id", Type: query.TypeInt, Required: true, Description: "The ID of the Timesketch sketch."},
			}},
			Output:  pageOutput,
			Handler: handleGetSketch,
		},
		{
			Kind:        KindSearchEvents,
			Name:        "search_events",
			Description: searchDescription,
			Input: query.Schema{Fields: []query.Field{
				{Name: "sketch_id", Type: query.TypeInt, Required: true, Description: "The ID of the Timesketch sketch to search."},
				{Name: "query", Type: query.TypeString, Required: true, Description: "Lucene/OpenSearch query string."},
				{Name: "start_time", Type: query.TypeString, Description: "Inclusive lower time bound (RFC3339 or YYYY-MM-DD). Defaults to the epoch."},
				{Name: "end_time", Type: query.TypeString, Description: "Inclusive upper time bound (RFC3339 or YYYY-MM-DD). Defaults to now."},
				{Name: "filters", Type: query.TypeObject, Description: "Exact field=value constraints applied alongside the query."},
				{Name: "return_fields", Type: query.TypeStringList, Description: "Fields to return per event. Defaults to datetime, message, data_type, tag, yara_match, sha256_hash."},
				{Name: "sort", Type: query.TypeString, Enum: []string{"asc", "desc"}, Description: "Sort order on datetime. Default asc."},
				{Name: "starred", Type: query.TypeBool, Description: "Only return starred events."},
				{Name: "page_size", Type: query.TypeInt, Description: "Events per page. Defaults to 100, capped at 1000."},
				{Name: "page_cursor", Type: query.TypeString, Description: "Cursor from a previous page to continue from."},
			}},
			Output:  pageOutput,
			Handler: handleSearchEvents,
		},
		{
			Kind:        KindDiscoverDataTypes,
			Name:        "discover_data_types",
			Description: "Discover the data types present in a sketch, with an event count per data type.",
			Input: query.Schema{Fields: []query.Field{
				{Name: "sketch_id", Type: query.TypeInt, Required: true, Description: "The ID of the Timesketch sketch."},
			}},
			Output:  pageOutput,
			Handler: handleDiscoverDataTypes,
		},
		{
			Kind:        KindRunAggregation,
			Name:        "run_aggregation",
			Description: "Run a Timesketch aggregator over a sketch, for example bucketing events by a field.",
			Input: query.Schema{Fields: []query.Field{
				{Name: "sketch_id", Type: query.TypeInt, Required: true, Description: "The ID of the Timesketch sketch."},
				{Name: "aggregator", Type: query.TypeString, Enum: []string{"field_bucket", "date_histogram"}, Description: "Aggregator to run. Default field_bucket."},
				{Name: "field", Type: query.TypeString, Required: true, Description: "Event field to aggregate on."},
				{Name: "limit", Type: query.TypeInt, Description: "Maximum number of buckets. Default 10000."},
				{Name: "start_time", Type: query.TypeString, Description: "Inclusive lower time bound."},
				{Name: "end_time", Type: query.TypeString, Description: "Inclusive upper time bound."},
			}},
			Output:  pageOutput,
			Handler: handleRunAggregation,
		},
	}
}
