// Package metrics exposes Prometheus counters for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ToolCalls counts dispatched tool calls by tool name and outcome
	// (completed, rejected, failed).
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesketch_mcp",
		Name:      "tool_calls_total",
		Help:      "Tool calls dispatched, by tool and terminal state.",
	}, []string{"tool", "outcome"})

	// BackendRequests counts round trips to the Timesketch API by
	// operation and status (ok, error).
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesketch_mcp",
		Name:      "backend_requests_total",
		Help:      "Timesketch API round trips, by operation and status.",
	}, []string{"operation", "status"})

	// Reauthentications counts session re-authentication round trips.
	// The single-flight discipline keeps this at one per expiry, no
	// matter how many calls observed the expired session.
	Reauthentications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timesketch_mcp",
		Name:      "reauthentications_total",
		Help:      "Session re-authentication round trips performed.",
	})

	// DroppedRecords counts backend records discarded during
	// normalization because they could not be parsed.
	DroppedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timesketch_mcp",
		Name:      "dropped_records_total",
		Help:      "Malformed backend records dropped during normalization.",
	})
)

// Handler returns the HTTP handler serving the default registry, for the
// optional --metrics-addr listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
