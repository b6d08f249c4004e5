package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livechat_ws_connections",
			Help: "Current number of active websocket connections.",
		},
		[]string{"role"},
	)
	wsEventsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_ws_events_total",
			Help: "Total client events dispatched to handlers.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_ws_messages_delivered_total",
			Help: "Total websocket frames delivered to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsEventsDispatched, wsMessagesDelivered)
}

func incConnections(role string) {
	wsConnections.WithLabelValues(role).Inc()
}

func decConnections(role string) {
	wsConnections.WithLabelValues(role).Dec()
}

func incDispatched() {
	wsEventsDispatched.Inc()
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}
