// Package metrics exposes the MDS's table and transport counters (spec §3
// "Table counters") as Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TLogsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds",
		Subsystem: "table",
		Name:      "tlogs_read_total",
		Help:      "Total TLogs read by catch-up across all namespaces.",
	}, []string{"namespace"})

	IncrementalUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds",
		Subsystem: "table",
		Name:      "incremental_updates_total",
		Help:      "Total incremental catch-up passes.",
	}, []string{"namespace"})

	FullRebuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds",
		Subsystem: "table",
		Name:      "full_rebuilds_total",
		Help:      "Total full-rebuild catch-up passes.",
	}, []string{"namespace"})

	ShmemOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mds",
		Subsystem: "transport",
		Name:      "shmem_overruns_total",
		Help:      "Times a shmem placement fell back to inband transmission due to capacity or overlap.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mds",
		Subsystem: "transport",
		Name:      "connections_active",
		Help:      "Currently open client connections.",
	})

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds",
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Requests handled, by request type and response type.",
	}, []string{"request", "response"})
)

func init() {
	prometheus.MustRegister(TLogsRead, IncrementalUpdates, FullRebuilds, ShmemOverruns, ConnectionsActive, RequestsTotal)
}
