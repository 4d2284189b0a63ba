package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_desk_ws_connections",
			Help: "Current number of active websocket connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_desk_ws_rooms",
			Help: "Current number of websocket rooms.",
		},
	)
	wsEventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_desk_ws_events_delivered_total",
			Help: "Total websocket events delivered to clients.",
		},
	)
	wsTypingDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_desk_ws_typing_dropped_total",
			Help: "Typing events dropped because a subscriber queue was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsEventsDelivered, wsTypingDropped)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsEventsDelivered.Add(float64(count))
}

func addDroppedTyping(count int) {
	wsTypingDropped.Add(float64(count))
}
