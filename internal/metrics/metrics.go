// Package metrics exposes booking counters on the default Prometheus registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feisbook_checkouts_total",
			Help: "Checkout sessions requested, by outcome",
		},
		[]string{"outcome"},
	)

	confirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feisbook_confirmations_total",
			Help: "Payment returns handled, by outcome",
		},
		[]string{"outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feisbook_notifications_total",
			Help: "Confirmation notifications sent, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(checkoutsTotal)
	prometheus.MustRegister(confirmationsTotal)
	prometheus.MustRegister(notificationsTotal)
}

func RecordCheckout(outcome string) {
	checkoutsTotal.WithLabelValues(outcome).Inc()
}

func RecordConfirmation(outcome string) {
	confirmationsTotal.WithLabelValues(outcome).Inc()
}

func RecordNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}
