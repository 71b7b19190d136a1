// Package metrics holds the Prometheus collectors exposed by the chat
// server: connection counts, decoded frame kinds, broadcast fan-out
// latency, and clients dropped for falling behind.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently connected clients.",
	})

	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_total",
		Help: "Total decoded frames processed by kind.",
	}, []string{"kind"})

	BroadcastFanoutDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_broadcast_fanout_seconds",
		Help:    "Time to enqueue one drained batch of broadcasts across all connected clients.",
		Buckets: prometheus.DefBuckets,
	}, []string{})

	SlowClientsDisconnected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_slow_clients_disconnected_total",
		Help: "Clients disconnected for exceeding the outbound queue watermark.",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(BroadcastFanoutDuration)
	prometheus.MustRegister(SlowClientsDisconnected)
}
