package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the Prometheus counters/histograms the webhook server exposes
// on /metrics for operators scraping request volume and latency per channel.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafgate",
		Name:      "webhook_requests_total",
		Help:      "Total webhook requests received, by channel and outcome.",
	}, []string{"channel", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafgate",
		Name:      "webhook_request_duration_seconds",
		Help:      "Webhook handler latency, by channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})
)

func observeRequest(channel, outcome string, seconds float64) {
	requestsTotal.WithLabelValues(channel, outcome).Inc()
	requestDuration.WithLabelValues(channel).Observe(seconds)
}
