package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isolink",
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Messages packed and written per channel.",
		},
		[]string{"channel"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isolink",
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Messages read and unpacked per channel.",
		},
		[]string{"channel"},
	)
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "isolink",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Accepted connections with a live handler.",
		},
		[]string{"server"},
	)
	muxPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "isolink",
			Subsystem: "mux",
			Name:      "pending_requests",
			Help:      "In-flight requests awaiting a matching response.",
		},
		[]string{"mux"},
	)
	muxTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isolink",
			Subsystem: "mux",
			Name:      "timeouts_total",
			Help:      "Requests resolved by deadline instead of a match.",
		},
		[]string{"mux"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesSent, messagesReceived, connectionsActive, muxPending, muxTimeouts)
	})
}

func RecordSend(channel string) {
	RegisterMetrics()
	messagesSent.WithLabelValues(channel).Inc()
}

func RecordReceive(channel string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(channel).Inc()
}

func ConnectionOpened(server string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(server).Inc()
}

func ConnectionClosed(server string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(server).Dec()
}

func PendingAdded(mux string) {
	RegisterMetrics()
	muxPending.WithLabelValues(mux).Inc()
}

func PendingRemoved(mux string) {
	RegisterMetrics()
	muxPending.WithLabelValues(mux).Dec()
}

func RecordTimeout(mux string) {
	RegisterMetrics()
	muxTimeouts.WithLabelValues(mux).Inc()
}
