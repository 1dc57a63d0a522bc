// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CustodyAppends counts custody events appended to the ledger.
	CustodyAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custody_events_appended_total",
		Help: "Total custody events appended to the chain-of-custody ledger.",
	})

	// ChainVerifications counts ledger verifications by outcome
	// (valid | broken).
	ChainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_chain_verifications_total",
		Help: "Total chain-of-custody verifications by result.",
	}, []string{"result"})

	// BrokenChains is the number of broken case chains found by the last
	// auditor sweep.
	BrokenChains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "custody_broken_chains",
		Help: "Broken case chains detected by the most recent audit sweep.",
	})

	// RequestDuration observes HTTP request latency by method and status.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)
