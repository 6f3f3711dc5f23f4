// Package metrics provides Prometheus instrumentation for the meiXuP
// realtime gateway. It exposes gauges for connection counts, counters for
// swipe/message/delivery throughput, and histograms for delivery latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meixup_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of users with a presence entry.
	// It can lag ConnectionsTotal briefly while a superseded connection is
	// being torn down.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meixup_online_users",
		Help: "Current number of users registered as online",
	})

	// MessagesTotal counts chat messages processed, labeled by outcome:
	// "persisted" or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meixup_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"})

	// SwipesTotal counts swipes recorded, labeled by kind.
	SwipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meixup_swipes_total",
		Help: "Total number of swipes recorded",
	}, []string{"kind"})

	// MatchesTotal counts mutual matches created.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meixup_matches_total",
		Help: "Total number of matches created",
	})

	// DeliveriesTotal counts realtime event delivery attempts, labeled by
	// result: "delivered", "offline" (recipient had no connection), or
	// "failed" (send error, entry evicted).
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meixup_deliveries_total",
		Help: "Total number of realtime event delivery attempts",
	}, []string{"result"})

	// DeliveryLatency records the time spent writing an event to a recipient.
	DeliveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meixup_delivery_latency_seconds",
		Help:    "Time spent writing a realtime event to a recipient",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// BroadcastRecipients records the snapshot size of each broadcast.
	BroadcastRecipients = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meixup_broadcast_recipients",
		Help:    "Number of recipients per broadcast",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		SwipesTotal,
		MatchesTotal,
		DeliveriesTotal,
		DeliveryLatency,
		BroadcastRecipients,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
