package tools

import (
	"context"
	"time"

	"github.com/dfirlabs/timesketch-mcp/internal/normalize"
	"github.com/dfirlabs/timesketch-mcp/internal/query"
)

func handleListSketches(ctx context.Context, backend Backend, _ time.Time, args map[string]any) (normalize.Page, error) {
	page := 1
	if cursor, ok := args["page_cursor"].(string); ok && cursor != "" {
		n, err := query.DecodeCursor(cursor)
		if err != nil {
			return normalize.Page{}, err
		}
		if n > 0 {
			page = n
		}
	} else if n, ok := query.IntArg(args, "page"); ok && n > 0 {
		page = n
	}
	list, err := backend.ListSketches(ctx, page)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.Sketches(list), nil
}

func handleGetSketch(ctx context.Context, backend Backend, _ time.Time, args map[string]any) (normalize.Page, error) {
	id, err := query.SketchID(args)
	if err != nil {
		return normalize.Page{}, err
	}
	sketch, err := backend.GetSketch(ctx, id)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.SketchDetail(sketch), nil
}

func handleSearchEvents(ctx context.Context, backend Backend, now time.Time, args map[string]any) (normalize.Page, error) {
	q, err := query.Search(args, now)
	if err != nil {
		return normalize.Page{}, err
	}
	resp, err := backend.Search(ctx, q)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.Events(resp, q), nil
}

func handleDiscoverDataTypes(ctx context.Context, backend Backend, _ time.Time, args map[string]any) (normalize.Page, error) {
	q, err := query.DataTypes(args)
	if err != nil {
		return normalize.Page{}, err
	}
	resp, err := backend.Aggregate(ctx, q)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.Buckets(resp, q.Aggregation.Name), nil
}

func handleRunAggregation(ctx context.Context, backend Backend, now time.Time, args map[string]any) (normalize.Page, error) {
	q, err := query.Aggregation(args, now)
	if err != nil {
		return normalize.Page{}, err
	}
	resp, err := backend.Aggregate(ctx, q)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.Buckets(resp, q.Aggregation.Name), nil
}
