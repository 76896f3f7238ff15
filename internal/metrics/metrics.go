// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_sends_total",
			Help: "Total gateway send attempts by outcome",
		},
		[]string{"result"}, // sent, retry, failed, opted_out
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "broadcast_send_duration_seconds",
			Help: "Duration of a single gateway send call",
		},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_retries_total",
			Help: "Total recipient sends scheduled for retry",
		},
	)

	ActiveDispatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_dispatchers_active",
			Help: "Number of campaign dispatch loops currently running",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_webhook_events_total",
			Help: "Inbound gateway status events by target status",
		},
		[]string{"status"},
	)
)
