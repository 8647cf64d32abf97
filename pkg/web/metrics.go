package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the web transport's traffic.
type Metrics struct {
	// TurnsTotal counts completed turns. Labels: outcome (complete|error).
	TurnsTotal *prometheus.CounterVec

	// ToolCallsTotal counts tool invocations observed in progress streams.
	// Labels: tool.
	ToolCallsTotal *prometheus.CounterVec

	// WSConnections gauges currently open websocket connections.
	WSConnections prometheus.Gauge
}

// NewMetrics registers the web metrics on the given registerer. Pass a
// fresh registry in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ensemble_turns_total",
			Help: "Completed chatbot turns by outcome.",
		}, []string{"outcome"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ensemble_tool_calls_total",
			Help: "Tool invocations by tool name.",
		}, []string{"tool"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ensemble_ws_connections",
			Help: "Open websocket connections.",
		}),
	}
}
