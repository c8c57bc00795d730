package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_create_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})

	orderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_order_transitions_total",
		Help: "Applied order status transitions by target status and write path.",
	}, []string{"status", "source"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Processor notifications by event type and outcome.",
	}, []string{"event_type", "outcome"})
)

const (
	sourceCapture   = "capture"
	sourceWebhook   = "webhook"
	sourceCancel    = "cancel"
	sourceReconcile = "reconcile"
)
