// Package metrics provides Prometheus instrumentation for the moderation
// pipeline. It exposes counters for scanned messages and executed actions,
// a histogram for scan latency, and a gauge for currently active mutes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesScanned counts scanned group messages, labeled by outcome:
	// "clean", "keyword", or "url".
	MessagesScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_messages_scanned_total",
		Help: "Total number of group messages scanned",
	}, []string{"result"})

	// ActionsTotal counts executed enforcement actions, labeled by kind:
	// "warn", "mute", "kick", or "recall".
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_actions_total",
		Help: "Total number of enforcement actions executed",
	}, []string{"action"})

	// ScanLatency records end-to-end message scan latency in seconds.
	ScanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_scan_latency_seconds",
		Help:    "Message scan latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ActiveMutes tracks the current number of unexpired mute records.
	ActiveMutes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warden_active_mutes",
		Help: "Current number of unexpired mute records",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesScanned,
		ActionsTotal,
		ScanLatency,
		ActiveMutes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
