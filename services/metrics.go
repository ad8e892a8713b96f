package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_runs_total",
			Help: "Renewal sweeps by outcome",
		},
		[]string{"outcome"},
	)
	sweepRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_records_total",
			Help: "Records handled by the renewal sweep",
		},
		[]string{"class", "result"},
	)
	paymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payment_transitions_total",
			Help: "Ledger entries moved to a terminal status",
		},
		[]string{"status", "source"},
	)
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// RegisterMetrics registers the billing collectors. Call once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(sweepRunsTotal, sweepRecordsTotal, paymentTransitionsTotal, webhookEventsTotal)
}

// RecordWebhook counts a webhook delivery; handlers call it for rejected
// deliveries that never reach a service.
func RecordWebhook(provider, outcome string) {
	webhookEventsTotal.WithLabelValues(provider, outcome).Inc()
}
