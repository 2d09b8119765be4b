package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "progression_consumer"

var (
	processedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_processed_total",
		Help:      "Messages handled and committed, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "handler_errors_total",
		Help:      "Failed handler attempts, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "handler_retries_total",
		Help:      "Extra attempts spent on transiently failing messages.",
	}, []string{"topic"})

	decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "decode_errors_total",
		Help:      "Records skipped because their framing or headers were invalid.",
	}, []string{"topic"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "handle_duration_seconds",
		Help:      "Time spent in a single handler attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"event_type"})

	consumerLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "event_age_seconds",
		Help:      "Age of the most recently committed record when it was handled.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedMessages, handlerErrors, handlerRetries, decodeErrors, handleDuration, consumerLag)
}

func observeProcessed(msg Message) {
	processedMessages.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		consumerLag.WithLabelValues(msg.Topic).Set(time.Since(msg.Timestamp).Seconds())
	}
}
