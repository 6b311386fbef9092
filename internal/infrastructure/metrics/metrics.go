package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	ConnectedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mes_connected_sessions",
			Help: "Number of currently connected realtime sessions",
		},
	)

	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mes_active_rooms",
			Help: "Number of rooms with at least one member",
		},
	)

	// Dispatcher metrics
	ActiveWorkOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mes_active_work_orders",
			Help: "Number of work orders currently in the derived active cache",
		},
	)

	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mes_events_dispatched_total",
			Help: "Total outbound events produced, by event name",
		},
		[]string{"event"},
	)

	ActionsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mes_actions_received_total",
			Help: "Total inbound client actions accepted at the transport boundary, by event name",
		},
		[]string{"event"},
	)

	DeliveriesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mes_deliveries_dropped_total",
			Help: "Total per-session deliveries dropped due to a full send buffer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectedSessions,
		ActiveRooms,
		ActiveWorkOrders,
		EventsDispatched,
		ActionsReceived,
		DeliveriesDropped,
	)
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
