package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "progression_outbox"

// DLQ entry outcomes.
const (
	dlqRequeued       = "requeued"
	dlqRetryScheduled = "retry_scheduled"
	dlqQuarantined    = "quarantined"
)

var (
	deliveredEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_delivered_total",
		Help:      "Outbox rows published to Kafka, by event type.",
	}, []string{"event_type"})

	failedBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "batches_failed_total",
		Help:      "Dispatch batches that could not be published, by failing stage.",
	}, []string{"stage"})

	deadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_dead_lettered_total",
		Help:      "Outbox rows moved to outbox_dlq, by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming a non-empty batch to settling it.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dlq_entries_total",
		Help:      "Dead-letter entries handled by the replay sweep, by outcome and event type.",
	}, []string{"outcome", "event_type"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "dlq_backlog",
		Help:      "Dead-letter entries still awaiting replay.",
	})
)

func init() {
	prometheus.MustRegister(deliveredEvents, failedBatches, deadLettered, batchDuration, dlqOutcomes, dlqBacklog)
}

func observeDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredEvents.WithLabelValues(msg.EventType).Inc()
	}
}

func observeDLQ(outcome string, entry dlqEntry) {
	dlqOutcomes.WithLabelValues(outcome, entry.EventType).Inc()
}

// refreshDLQBacklog is best effort; a failed count leaves the previous value.
func refreshDLQBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.bypass_rls', 'on', true)"); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	})
	if err == nil {
		dlqBacklog.Set(float64(count))
	}
}
