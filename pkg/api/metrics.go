package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntomb_tool_calls_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	rulesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntomb_rules_loaded",
		Help: "Number of detection rules currently loaded.",
	})

	connectionsScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntomb_connections_scanned_total",
		Help: "Total connections evaluated across all scans.",
	})

	suspiciousConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntomb_suspicious_connections",
		Help: "Suspicious connections found by the most recent scan.",
	})
)

func init() {
	registry.MustRegister(
		toolCalls,
		rulesLoaded,
		connectionsScanned,
		suspiciousConnections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// ObserveToolCall records one tool invocation and its outcome ("ok" or
// "error").
func ObserveToolCall(tool, outcome string) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
}

// SetRulesLoaded publishes the size of the active rule store.
func SetRulesLoaded(n int) {
	rulesLoaded.Set(float64(n))
}

// ObserveScan records the totals of one full connection scan.
func ObserveScan(total, suspicious int) {
	connectionsScanned.Add(float64(total))
	suspiciousConnections.Set(float64(suspicious))
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
