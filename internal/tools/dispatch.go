package tools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/dfirlabs/timesketch-mcp/internal/errors"
	"github.com/dfirlabs/timesketch-mcp/internal/metrics"
	"github.com/dfirlabs/timesketch-mcp/internal/normalize"
)

// CallRequest is one inbound tool call.
type CallRequest struct {
	Tool   string
	Args   map[string]any
	CallID string
}

// Response is the single terminal outcome of one call: exactly one of
// Page or Err is set, both stamped with the call id.
type Response struct {
	CallID string
	Page   *normalize.Page
	Err    *apperrors.Envelope
}

// Dispatcher validates tool calls against the registry and runs their
// handlers. It holds no per-call state; any number of calls may be in
// flight concurrently.
type Dispatcher struct {
	registry *Registry
	backend  Backend
	now      func() time.Time
}

// NewDispatcher wires the registry to a backend. now may be nil, in which
// case wall-clock time anchors open time bounds.
func NewDispatcher(registry *Registry, backend Backend, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{registry: registry, backend: backend, now: now}
}

// Registry exposes the catalog for discovery.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one call through its states: lookup and schema validation
// first, so malformed calls never reach the backend, then the handler.
// Every call produces exactly one response.
func (d *Dispatcher) Dispatch(ctx context.Context, req CallRequest) Response {
	callID := req.CallID
	if callID == "" {
		callID = uuid.NewString()
	}

	spec, err := d.registry.Lookup(req.Tool)
	if err != nil {
		return d.reject(callID, req.Tool, err)
	}

	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateCall(spec, args); err != nil {
		return d.reject(callID, req.Tool, err)
	}

	page, err := spec.Handler(ctx, d.backend, d.now(), args)
	if err != nil {
		// The envelope passes through unchanged; only the call id is
		// attached here.
		envelope := apperrors.EnvelopeOf(err)
		metrics.ToolCalls.WithLabelValues(spec.Name, "failed").Inc()
		log.Warn().Str("call_id", callID).Str("tool", spec.Name).
			Str("kind", string(envelope.Kind)).Msg("tool call failed")
		return Response{CallID: callID, Err: &envelope}
	}

	metrics.ToolCalls.WithLabelValues(spec.Name, "completed").Inc()
	log.Debug().Str("call_id", callID).Str("tool", spec.Name).
		Int("items", len(page.Items)).Bool("truncated", page.Truncated).
		Msg("tool call completed")
	return Response{CallID: callID, Page: &page}
}

func (d *Dispatcher) reject(callID, tool string, err error) Response {
	envelope := apperrors.EnvelopeOf(err)
	metrics.ToolCalls.WithLabelValues(tool, "rejected").Inc()
	log.Debug().Str("call_id", callID).Str("tool", tool).
		Str("kind", string(envelope.Kind)).Msg("tool call rejected")
	return Response{CallID: callID, Err: &envelope}
}
