package timesketch

import (
	"encoding/json"
	"time"
)

// Query is the backend-native form of one tool call, built by the query
// translator and immutable once handed to the client.
type Query struct {
	SketchID     int
	QueryString  string
	StartTime    time.Time
	EndTime      time.Time
	Filters      []TermFilter
	Starred      bool
	ReturnFields []string
	Sort         string // "asc" or "desc" on datetime
	Aggregation  *Aggregation
	PageSize     int
	Offset       int
}

// TermFilter is one field=value constraint, expressed to the backend as a
// term chip.
type TermFilter struct {
	Field string
	Value string
}

// Aggregation names a Timesketch aggregator run.
type Aggregation struct {
	Name  string // aggregator name, e.g. "field_bucket"
	Field string
	Limit int
}

// Chip is Timesketch's filter chip wire format.
type Chip struct {
	Field    string `json:"field"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
	Active   bool   `json:"active"`
}

type exploreFilter struct {
	From    int      `json:"from"`
	Size    int      `json:"size"`
	Order   string   `json:"order"`
	Indices []string `json:"indices"`
	Chips   []Chip   `json:"chips"`
}

type exploreRequest struct {
	Query        string        `json:"query"`
	ReturnFields string        `json:"return_fields,omitempty"`
	Filter       exploreFilter `json:"filter"`
}

type aggregationRequest struct {
	AggregatorName       string            `json:"aggregator_name"`
	AggregatorParameters map[string]string `json:"aggregator_parameters"`
}

// SearchResponse is the raw explore result. Individual objects stay
// undecoded here; the normalizer decides per record whether it is
// well-formed.
type SearchResponse struct {
	Objects []json.RawMessage `json:"objects"`
	Meta    SearchMeta        `json:"meta"`
}

// SearchMeta carries the backend's paging hints.
type SearchMeta struct {
	TotalCount int64 `json:"es_total_count"`
}

// Event is one well-formed indexed event.
type Event struct {
	ID     string         `json:"_id"`
	Index  string         `json:"_index"`
	Source map[string]any `json:"_source"`
}

// Record is the decode result of one backend object: either a well-formed
// event or a malformed payload carrying only the decode failure. The split
// is explicit so drop-and-count is enforced by the type, not by convention.
type Record struct {
	Event Event
	Err   error
}

// DecodeRecords decodes every raw object into a Record, never failing the
// batch on a bad element.
func DecodeRecords(objects []json.RawMessage) []Record {
	records := make([]Record, 0, len(objects))
	for _, raw := range objects {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			records = append(records, Record{Err: err})
			continue
		}
		if ev.Source == nil {
			records = append(records, Record{Err: errMissingSource})
			continue
		}
		records = append(records, Record{Event: ev})
	}
	return records
}

// AggregationResponse is the raw aggregator result.
type AggregationResponse struct {
	Objects []map[string]AggregationResult `json:"objects"`
}

// AggregationResult holds one aggregator's buckets. Bucket shape depends
// on the aggregator (field_bucket buckets carry the field value plus a
// count) so elements stay generic maps.
type AggregationResult struct {
	Buckets []map[string]any `json:"buckets"`
}

// Sketch is a named collection of timelines.
type Sketch struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Timelines   []Timeline `json:"timelines,omitempty"`
}

// Timeline is one indexed event set inside a sketch.
type Timeline struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SketchList is one page of the sketch listing.
type SketchList struct {
	Objects []Sketch `json:"objects"`
	Meta    ListMeta `json:"meta"`
}

// ListMeta carries the sketch listing's paging hints.
type ListMeta struct {
	CurrentPage int  `json:"current_page"`
	HasNext     bool `json:"has_next"`
	TotalPages  int  `json:"total_pages"`
}
