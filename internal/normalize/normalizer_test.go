package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfirlabs/timesketch-mcp/internal/query"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
)

func eventObjects(n int) []json.RawMessage {
	objects := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		objects = append(objects, json.RawMessage(fmt.Sprintf(
			`{"_id":"%d","_index":"idx","_source":{"datetime":"2025-04-01T00:00:%02dZ","message":"event %d","data_type":"test:event"}}`,
			i, i%60, i)))
	}
	return objects
}

func TestEvents_ClampsToPageSize(t *testing.T) {
	resp := &timesketch.SearchResponse{
		Objects: eventObjects(1200),
		Meta:    timesketch.SearchMeta{TotalCount: 1200},
	}
	q := timesketch.Query{PageSize: 1000, Offset: 0}

	page := Events(resp, q)

	assert.Len(t, page.Items, 1000)
	assert.True(t, page.Truncated)
	assert.NotEmpty(t, page.NextCursor)
	require.NotNil(t, page.TotalEstimate)
	assert.EqualValues(t, 1200, *page.TotalEstimate)
}

func TestEvents_UnderPageSizePassesThrough(t *testing.T) {
	resp := &timesketch.SearchResponse{
		Objects: eventObjects(5),
		Meta:    timesketch.SearchMeta{TotalCount: 5},
	}
	page := Events(resp, timesketch.Query{PageSize: 100})

	assert.Len(t, page.Items, 5)
	assert.False(t, page.Truncated)
	assert.Empty(t, page.NextCursor)
	assert.Zero(t, page.DroppedRecords)
}

func TestEvents_CursorContinuesFromOffset(t *testing.T) {
	resp := &timesketch.SearchResponse{
		Objects: eventObjects(100),
		Meta:    timesketch.SearchMeta{TotalCount: 250},
	}
	page := Events(resp, timesketch.Query{PageSize: 100, Offset: 100})

	require.NotEmpty(t, page.NextCursor)
	offset, err := query.DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, 200, offset)
}

func TestEvents_FieldOverBudgetTruncated(t *testing.T) {
	long := strings.Repeat("x", FieldBudget+500)
	objects := []json.RawMessage{json.RawMessage(fmt.Sprintf(
		`{"_id":"1","_source":{"message":%q,"data_type":"test:event"}}`, long))}
	resp := &timesketch.SearchResponse{Objects: objects, Meta: timesketch.SearchMeta{TotalCount: 1}}

	page := Events(resp, timesketch.Query{PageSize: 10})

	require.Len(t, page.Items, 1)
	got, ok := page.Items[0]["message"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Len(t, []rune(got), FieldBudget+len([]rune(TruncationMarker)))
	assert.True(t, page.Truncated)
	// Fields inside the budget are untouched.
	assert.Equal(t, "test:event", page.Items[0]["data_type"])
}

func TestEvents_FieldAtBudgetUnchanged(t *testing.T) {
	exact := strings.Repeat("y", FieldBudget)
	objects := []json.RawMessage{json.RawMessage(fmt.Sprintf(
		`{"_id":"1","_source":{"message":%q}}`, exact))}
	resp := &timesketch.SearchResponse{Objects: objects, Meta: timesketch.SearchMeta{TotalCount: 1}}

	page := Events(resp, timesketch.Query{PageSize: 10})

	require.Len(t, page.Items, 1)
	assert.Equal(t, exact, page.Items[0]["message"])
	assert.False(t, page.Truncated)
}

func TestEvents_MalformedRecordsDroppedAndCounted(t *testing.T) {
	objects := []json.RawMessage{
		json.RawMessage(`{"_id":"1","_source":{"message":"good"}}`),
		json.RawMessage(`{not json`),
		json.RawMessage(`{"_id":"3"}`),
		json.RawMessage(`{"_id":"4","_source":{"message":"also good"}}`),
	}
	resp := &timesketch.SearchResponse{Objects: objects, Meta: timesketch.SearchMeta{TotalCount: 4}}

	page := Events(resp, timesketch.Query{PageSize: 10})

	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.DroppedRecords)
}

func TestEvents_CountsDropsBeyondClamp(t *testing.T) {
	objects := append(eventObjects(3), json.RawMessage(`{not json`))
	resp := &timesketch.SearchResponse{Objects: objects, Meta: timesketch.SearchMeta{TotalCount: 4}}

	page := Events(resp, timesketch.Query{PageSize: 2})

	// The malformed record sits past the clamp but is still counted.
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.DroppedRecords)
	assert.True(t, page.Truncated)
}

func TestBuckets_FlattensAggregatorResult(t *testing.T) {
	resp := &timesketch.AggregationResponse{
		Objects: []map[string]timesketch.AggregationResult{
			{
				"field_bucket": {Buckets: []map[string]any{
					{"data_type": "syslog:cron:task_run", "count": float64(120)},
					{"data_type": "apache:access_log:entry", "count": float64(34)},
				}},
			},
		},
	}
	page := Buckets(resp, "field_bucket")

	require.Len(t, page.Items, 2)
	assert.Equal(t, "syslog:cron:task_run", page.Items[0]["data_type"])
	assert.False(t, page.Truncated)
}

func TestBuckets_IgnoresOtherAggregators(t *testing.T) {
	resp := &timesketch.AggregationResponse{
		Objects: []map[string]timesketch.AggregationResult{
			{"date_histogram": {Buckets: []map[string]any{{"count": float64(1)}}}},
		},
	}
	page := Buckets(resp, "field_bucket")
	assert.Empty(t, page.Items)
}

func TestSketches_PagesWithCursor(t *testing.T) {
	list := &timesketch.SketchList{
		Objects: []timesketch.Sketch{
			{ID: 1, Name: "intrusion-2025", Status: "ready"},
			{ID: 2, Name: "phishing-q2", Status: "ready"},
		},
		Meta: timesketch.ListMeta{CurrentPage: 1, HasNext: true},
	}
	page := Sketches(list)

	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := query.DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestSketchDetail_IncludesTimelines(t *testing.T) {
	sketch := &timesketch.Sketch{
		ID:   9,
		Name: "lateral-movement",
		Timelines: []timesketch.Timeline{
			{ID: 1, Name: "workstation", Status: "ready"},
		},
	}
	page := SketchDetail(sketch)

	require.Len(t, page.Items, 1)
	timelines, ok := page.Items[0]["timelines"].([]any)
	require.True(t, ok)
	assert.Len(t, timelines, 1)
}
