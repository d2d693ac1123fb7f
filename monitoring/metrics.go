package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Inbound gateway notifications by final outcome",
		},
		[]string{"outcome"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets written by the issuance flow",
		},
	)

	gatewayFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_fetches_total",
			Help: "Payment fetches against the gateway",
		},
		[]string{"result"},
	)
)

func WebhookProcessed(outcome string) {
	webhookNotifications.WithLabelValues(outcome).Inc()
}

func TicketsIssued(count int) {
	ticketsIssued.Add(float64(count))
}

func GatewayFetch(result string) {
	gatewayFetches.WithLabelValues(result).Inc()
}
