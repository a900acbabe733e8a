// Package query translates tool-call arguments into Timesketch queries.
// Translation is pure: the same arguments (and reference time) always
// produce the same query, and no backend interaction ever happens here.
package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/dfirlabs/timesketch-mcp/internal/errors"
	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
)

const (
	// DefaultPageSize applies when the caller omits page_size or supplies
	// a non-positive value.
	DefaultPageSize = 100
	// MaxPageSize is the hard clamp; larger requests are never forwarded
	// to the backend.
	MaxPageSize = 1000
	// DefaultAggregationLimit mirrors the field_bucket limit the bridge
	// has always used for data type discovery.
	DefaultAggregationLimit = 10000
)

// DefaultReturnFields is the field set returned to callers that do not
// narrow it themselves.
var DefaultReturnFields = []string{
	"datetime", "message", "data_type", "tag", "yara_match", "sha256_hash",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ValidateArgs checks args against a declared schema: required fields
// present, every field known and type-correct, enum values in range. All
// violations are collected before reporting so the caller sees the full
// list at once.
func ValidateArgs(args map[string]any, schema Schema) error {
	var result *multierror.Error
	for _, field := range schema.Fields {
		value, ok := args[field.Name]
		if !ok {
			if field.Required {
				result = multierror.Append(result, fmt.Errorf("missing required argument %q", field.Name))
			}
			continue
		}
		if err := checkType(field, value); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for name := range args {
		if _, ok := schema.Lookup(name); !ok {
			result = multierror.Append(result, fmt.Errorf("unknown argument %q", name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return apperrors.New(apperrors.KindValidation, "invalid arguments", err)
	}
	return nil
}

func checkType(field Field, value any) error {
	switch field.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", field.Name)
		}
		if len(field.Enum) > 0 && !containsString(field.Enum, s) {
			return fmt.Errorf("argument %q must be one of %v", field.Name, field.Enum)
		}
	case TypeInt:
		if _, err := intValue(value); err != nil {
			return fmt.Errorf("argument %q must be an integer", field.Name)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", field.Name)
		}
	case TypeStringList:
		if _, err := stringListValue(value); err != nil {
			return fmt.Errorf("argument %q must be a list of strings", field.Name)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object", field.Name)
		}
	}
	return nil
}

// Search builds the backend query for a search_events call. now anchors
// the open end of the time range so translation stays deterministic under
// test.
func Search(args map[string]any, now time.Time) (timesketch.Query, error) {
	sketchID, err := SketchID(args)
	if err != nil {
		return timesketch.Query{}, err
	}

	queryString, _ := args["query"].(string)
	if strings.TrimSpace(queryString) == "" {
		return timesketch.Query{}, apperrors.New(apperrors.KindValidation, "query must not be empty", nil)
	}

	start, end, err := timeRange(args, now)
	if err != nil {
		return timesketch.Query{}, err
	}

	offset, err := DecodeCursor(stringOr(args, "page_cursor", ""))
	if err != nil {
		return timesketch.Query{}, err
	}

	filters, err := termFilters(args)
	if err != nil {
		return timesketch.Query{}, err
	}

	returnFields := DefaultReturnFields
	if raw, ok := args["return_fields"]; ok {
		fields, err := stringListValue(raw)
		if err != nil {
			return timesketch.Query{}, apperrors.New(apperrors.KindValidation, "return_fields must be a list of strings", err)
		}
		if len(fields) > 0 {
			returnFields = fields
		}
	}

	starred, _ := args["starred"].(bool)

	return timesketch.Query{
		SketchID:     sketchID,
		QueryString:  queryString,
		StartTime:    start,
		EndTime:      end,
		Filters:      filters,
		Starred:      starred,
		ReturnFields: returnFields,
		Sort:         stringOr(args, "sort", "asc"),
		PageSize:     pageSize(args),
		Offset:       offset,
	}, nil
}

// Aggregation builds the backend query for a run_aggregation call.
func Aggregation(args map[string]any, now time.Time) (timesketch.Query, error) {
	sketchID, err := SketchID(args)
	if err != nil {
		return timesketch.Query{}, err
	}

	field, _ := args["field"].(string)
	if strings.TrimSpace(field) == "" {
		return timesketch.Query{}, apperrors.New(apperrors.KindValidation, "field must not be empty", nil)
	}

	limit := DefaultAggregationLimit
	if raw, ok := args["limit"]; ok {
		n, err := intValue(raw)
		if err != nil {
			return timesketch.Query{}, apperrors.New(apperrors.KindValidation, "limit must be an integer", err)
		}
		if n > 0 && n < limit {
			limit = n
		}
	}

	start, end := time.Time{}, time.Time{}
	if hasTimeBound(args) {
		start, end, err = timeRange(args, now)
		if err != nil {
			return timesketch.Query{}, err
		}
	}

	return timesketch.Query{
		SketchID:  sketchID,
		StartTime: start,
		EndTime:   end,
		Aggregation: &timesketch.Aggregation{
			Name:  stringOr(args, "aggregator", "field_bucket"),
			Field: field,
			Limit: limit,
		},
	}, nil
}

// DataTypes builds the fixed field_bucket query behind discover_data_types.
func DataTypes(args map[string]any) (timesketch.Query, error) {
	sketchID, err := SketchID(args)
	if err != nil {
		return timesketch.Query{}, err
	}
	return timesketch.Query{
		SketchID: sketchID,
		Aggregation: &timesketch.Aggregation{
			Name:  "field_bucket",
			Field: "data_type",
			Limit: DefaultAggregationLimit,
		},
	}, nil
}

// SketchID extracts and syntactically validates the sketch identifier.
// An identifier that does not parse as a positive integer is rejected
// without a backend call.
func SketchID(args map[string]any) (int, error) {
	raw, ok := args["sketch_id"]
	if !ok {
		return 0, apperrors.New(apperrors.KindValidation, "missing required argument \"sketch_id\"", nil)
	}
	id, err := intValue(raw)
	if err != nil || id <= 0 {
		return 0, apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("sketch_id %v is not a valid sketch identifier", raw), err)
	}
	return id, nil
}

func pageSize(args map[string]any) int {
	raw, ok := args["page_size"]
	if !ok {
		return DefaultPageSize
	}
	n, err := intValue(raw)
	if err != nil || n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// timeRange resolves the two optional bounds: an open start defaults to
// the epoch, an open end to now.
func timeRange(args map[string]any, now time.Time) (time.Time, time.Time, error) {
	start := time.Unix(0, 0).UTC()
	end := now.UTC()

	if raw, ok := args["start_time"].(string); ok && raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("start_time %q is not a recognized timestamp", raw), err)
		}
		start = t
	}
	if raw, ok := args["end_time"].(string); ok && raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("end_time %q is not a recognized timestamp", raw), err)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.KindValidation,
			"end_time is before start_time", nil)
	}
	return start, end, nil
}

func hasTimeBound(args map[string]any) bool {
	s, _ := args["start_time"].(string)
	e, _ := args["end_time"].(string)
	return s != "" || e != ""
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// termFilters converts the filters object to term constraints, sorted by
// field so translation stays deterministic.
func termFilters(args map[string]any) ([]timesketch.TermFilter, error) {
	raw, ok := args["filters"]
	if !ok {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, "filters must be an object of field=value pairs", nil)
	}
	fields := make([]string, 0, len(obj))
	for field := range obj {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	filters := make([]timesketch.TermFilter, 0, len(obj))
	for _, field := range fields {
		value, ok := obj[field].(string)
		if !ok {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("filter %q must have a string value", field), nil)
		}
		filters = append(filters, timesketch.TermFilter{Field: field, Value: value})
	}
	return filters, nil
}

// IntArg reads an optional integer argument. Schema validation has
// already rejected non-integer values, so a false return simply means
// the argument was omitted.
func IntArg(args map[string]any, name string) (int, bool) {
	raw, ok := args[name]
	if !ok {
		return 0, false
	}
	n, err := intValue(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// intValue accepts the integer encodings JSON transports produce: Go
// ints, whole-number floats, and numeric strings.
func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("%T is not an integer", raw)
	}
}

// stringListValue accepts a JSON array of strings or one comma-separated
// string.
func stringListValue(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%T is not a string", item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%T is not a string list", raw)
	}
}

func stringOr(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
