// Package metrics defines the Prometheus instruments exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound messages by resolved command.
	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_handled_total",
			Help: "Inbound SMS messages handled, by resolved command",
		},
		[]string{"command"},
	)

	// Digest fan-out outcomes per recipient.
	DigestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_messages_total",
			Help: "Daily digest messages, by outcome",
		},
		[]string{"outcome"}, // sent, send_failed, compose_failed
	)

	// Message handling latency.
	MessageHandleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_handle_duration_seconds",
			Help:    "Time to interpret one inbound message",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// ObserveMessageHandled records one handled inbound message.
func ObserveMessageHandled(command string, duration time.Duration) {
	MessagesHandled.WithLabelValues(command).Inc()
	MessageHandleDuration.Observe(duration.Seconds())
}

// ObserveDigestMessage records one digest fan-out outcome.
func ObserveDigestMessage(outcome string) {
	DigestMessages.WithLabelValues(outcome).Inc()
}
