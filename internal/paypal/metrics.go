package paypal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "paypal_request_duration_seconds",
	Help:    "Latency of PayPal API calls by operation and outcome.",
	Buckets: prometheus.DefBuckets,
}, []string{"operation", "outcome"})

func observeGateway(op, outcome string, start time.Time) {
	gatewayLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
