// Package metrics exposes Prometheus instruments for the webhook
// pipeline. Everything is registered on the default registerer and
// served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveriesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_received_total",
			Help: "Webhook deliveries accepted into the ledger",
		},
		[]string{"topic"},
	)

	DeliveriesDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_duplicate_total",
			Help: "Redelivered webhooks acknowledged without processing",
		},
		[]string{"topic"},
	)

	DeliveriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_processed_total",
			Help: "Deliveries reaching a terminal status",
		},
		[]string{"topic", "status"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Handler processing time per delivery",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
