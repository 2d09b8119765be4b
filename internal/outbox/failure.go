package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter dead-letters undeliverable outbox rows.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// WriteBatch copies messages into outbox_dlq and closes their outbox rows in a single
// transaction, so a dead-lettered row is never claimed again by the dispatcher.
func (w *DLQWriter) WriteBatch(ctx context.Context, messages []Message, reason string) error {
	if len(messages) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		for _, msg := range messages {
			if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", msg.TenantID); err != nil {
				return err
			}
			entryReason := fmt.Sprintf("%s (topic=%s event_type=%s)", reason, msg.Topic, msg.EventType)
			if _, err := tx.Exec(ctx,
				`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
				msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, entryReason,
				msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
			); err != nil {
				return fmt.Errorf("dead-letter event %d: %w", msg.EventID, err)
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = $1`, msg.EventID); err != nil {
				return err
			}
		}
		return nil
	})
}
