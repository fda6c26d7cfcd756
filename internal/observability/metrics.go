// Package observability exposes prometheus collectors for the agent core.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts completed turns by mode ("buffered", "streaming")
	// and outcome ("ok", "error", "timeout").
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kuro",
		Name:      "turns_total",
		Help:      "Completed agent turns by mode and outcome.",
	}, []string{"mode", "outcome"})

	// ToolCallsTotal counts tool executions by tool name and outcome.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kuro",
		Name:      "tool_calls_total",
		Help:      "Tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	// RetriesTotal counts recovery retries by fault class.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kuro",
		Name:      "retries_total",
		Help:      "Turn retries by fault class.",
	}, []string{"class"})

	// StreamTimeoutsTotal counts streaming turns ended by the inactivity
	// watchdog.
	StreamTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kuro",
		Name:      "stream_timeouts_total",
		Help:      "Streaming turns ended by the inactivity timeout.",
	})

	// TurnDuration observes wall-clock turn duration in seconds.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kuro",
		Name:      "turn_duration_seconds",
		Help:      "Wall-clock duration of agent turns.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 120},
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
