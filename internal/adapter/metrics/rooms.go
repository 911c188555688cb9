package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoomMetrics holds Prometheus metrics for the room registry and socket connections.
type RoomMetrics struct {
	ActiveRooms       prometheus.Gauge
	Subscriptions     prometheus.Gauge
	ActiveConnections prometheus.Gauge
	Broadcasts        *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	CommandDepth      prometheus.Gauge
	RejectedJoins     prometheus.Counter
	RejectedConns     *prometheus.CounterVec
}

// NewRoomMetrics creates and registers room metrics on the given registry.
func NewRoomMetrics(reg prometheus.Registerer) *RoomMetrics {
	m := &RoomMetrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "active",
			Help:      "Number of rooms with at least one subscriber.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "subscriptions",
			Help:      "Number of (room, subscriber) memberships.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "broadcasts_total",
			Help:      "Total number of room broadcasts, by room kind.",
		}, []string{"kind"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "delivery_failures_total",
			Help:      "Total number of subscribers dropped because a push could not be delivered.",
		}),
		CommandDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "command_channel_depth",
			Help:      "Number of queued registry commands.",
		}),
		RejectedJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "rejected_joins_total",
			Help:      "Total number of joins rejected because the room was full.",
		}),
		RejectedConns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of WebSocket upgrades refused by a connection limit, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveRooms, m.Subscriptions, m.ActiveConnections, m.Broadcasts, m.DeliveryFailures, m.CommandDepth, m.RejectedJoins, m.RejectedConns)
	return m
}
