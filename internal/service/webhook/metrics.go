package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_webhook_deliveries_total",
			Help: "Total webhook deliveries that received a 2xx response.",
		},
		[]string{"event"},
	)
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_webhook_failures_total",
			Help: "Total webhook delivery sequences that exhausted their retries.",
		},
		[]string{"event"},
	)
	attemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_webhook_attempts_total",
			Help: "Total webhook HTTP attempts, including retries.",
		},
	)
)

func init() {
	prometheus.MustRegister(deliveriesTotal, failuresTotal, attemptsTotal)
}

func recordDelivered(event string) {
	deliveriesTotal.WithLabelValues(event).Inc()
}

func recordExhausted(event string) {
	failuresTotal.WithLabelValues(event).Inc()
}

func recordAttempt() {
	attemptsTotal.Inc()
}
