// Package normalize bounds raw backend responses into pages safe to hand
// to a language-model caller: item counts clamped, oversized fields
// truncated, paging exposed as opaque cursors.
package normalize

import (
	"unicode/utf8"

	"github.com/dfirlabs/timesketch-mcp/internal/metrics"
	"github.com/dfirlabs/timesketch-mcp/internal/query"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
)

const (
	// FieldBudget is the per-field character allowance. Anything longer is
	// cut and marked.
	FieldBudget = 1024
	// TruncationMarker replaces the removed tail of an oversized field.
	TruncationMarker = "… [truncated]"
)

// Page is the bounded result returned for one tool call.
type Page struct {
	Items          []map[string]any `json:"items"`
	NextCursor     string           `json:"next_cursor,omitempty"`
	TotalEstimate  *int64           `json:"total_estimate,omitempty"`
	Truncated      bool             `json:"truncated"`
	DroppedRecords int              `json:"dropped_records,omitempty"`
}

// Events normalizes an explore response against the query that produced
// it. The backend is never trusted on size: even if it returned more than
// q.PageSize events, the page is clamped. Records that fail to decode are
// dropped and counted, never fatal.
func Events(resp *timesketch.SearchResponse, q timesketch.Query) Page {
	records := timesketch.DecodeRecords(resp.Objects)

	page := Page{Items: make([]map[string]any, 0, min(len(records), q.PageSize))}
	for _, record := range records {
		if record.Err != nil {
			page.DroppedRecords++
			metrics.DroppedRecords.Inc()
			continue
		}
		if len(page.Items) >= q.PageSize {
			// Keep scanning past the clamp so dropped_records still counts
			// malformed records an over-returning backend buried at the end.
			page.Truncated = true
			continue
		}
		item, fieldTruncated := boundFields(record.Event.Source)
		if fieldTruncated {
			page.Truncated = true
		}
		page.Items = append(page.Items, item)
	}

	total := resp.Meta.TotalCount
	if total > 0 {
		page.TotalEstimate = &total
	}

	consumed := q.Offset + len(page.Items) + page.DroppedRecords
	if int64(consumed) < total || len(page.Items) < len(records)-page.DroppedRecords {
		page.NextCursor = query.EncodeCursor(q.Offset + q.PageSize)
	}
	return page
}

// Buckets normalizes an aggregation response. Timesketch keys the result
// by aggregator name; buckets under any other key are ignored.
func Buckets(resp *timesketch.AggregationResponse, aggregatorName string) Page {
	page := Page{Items: []map[string]any{}}
	for _, object := range resp.Objects {
		result, ok := object[aggregatorName]
		if !ok {
			continue
		}
		for _, bucket := range result.Buckets {
			item, fieldTruncated := boundFields(bucket)
			if fieldTruncated {
				page.Truncated = true
			}
			page.Items = append(page.Items, item)
		}
	}
	return page
}

// Sketches normalizes a sketch listing page.
func Sketches(list *timesketch.SketchList) Page {
	page := Page{Items: make([]map[string]any, 0, len(list.Objects))}
	for _, sketch := range list.Objects {
		item, fieldTruncated := boundFields(map[string]any{
			"id":          sketch.ID,
			"name":        sketch.Name,
			"description": sketch.Description,
			"status":      sketch.Status,
		})
		if fieldTruncated {
			page.Truncated = true
		}
		page.Items = append(page.Items, item)
	}
	if list.Meta.HasNext {
		page.NextCursor = query.EncodeCursor(list.Meta.CurrentPage + 1)
	}
	return page
}

// SketchDetail normalizes one sketch with its timelines.
func SketchDetail(sketch *timesketch.Sketch) Page {
	timelines := make([]any, 0, len(sketch.Timelines))
	for _, tl := range sketch.Timelines {
		timelines = append(timelines, map[string]any{
			"id":     tl.ID,
			"name":   tl.Name,
			"status": tl.Status,
		})
	}
	item, fieldTruncated := boundFields(map[string]any{
		"id":          sketch.ID,
		"name":        sketch.Name,
		"description": sketch.Description,
		"status":      sketch.Status,
		"timelines":   timelines,
	})
	return Page{Items: []map[string]any{item}, Truncated: fieldTruncated}
}

// boundFields copies a record, truncating any string value over the field
// budget. The input is never mutated.
func boundFields(source map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(source))
	truncated := false
	for key, value := range source {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > FieldBudget {
			out[key] = truncateString(s, FieldBudget) + TruncationMarker
			truncated = true
			continue
		}
		out[key] = value
	}
	return out, truncated
}

func truncateString(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget])
}
