package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_appended_total",
		Help: "Messages committed to the log.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_published_total",
		Help: "Change events published to the bus.",
	}, []string{"kind"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_delivered_total",
		Help: "Diffs delivered to live subscriptions.",
	}, []string{"kind"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_gateway_connections",
		Help: "Open websocket connections.",
	})

	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatsync_gateway_subscriptions",
		Help: "Live subscriptions by kind.",
	}, []string{"kind"})

	SlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_gateway_slow_clients_dropped_total",
		Help: "Connections dropped because their send buffer filled.",
	})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
