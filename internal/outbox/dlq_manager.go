package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultDLQMaxRetries = 5
	defaultDLQBaseDelay  = time.Minute
	maxDLQDelay          = time.Hour
	quarantineReason     = "retry limit reached"
)

// DLQManager replays dead-lettered progression events. Each ready entry is either
// copied back into the outbox, rescheduled with exponential backoff, or quarantined
// once it has used up its retries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to 5 retries
// and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultDLQMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultDLQBaseDelay
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce sweeps up to batchSize ready entries and returns how many went back to the
// outbox. Failures on single entries are joined into the returned error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.ready(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	var errs error
	for _, entry := range entries {
		outcome, err := m.settle(ctx, entry)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		observeDLQ(outcome, entry)
		if outcome == dlqRequeued {
			requeued++
		}
	}
	refreshDLQBacklog(ctx, m.pool)
	return requeued, errs
}

func (m *DLQManager) ready(ctx context.Context, batchSize int) ([]dlqEntry, error) {
	const query = `SELECT dlq_id, tenant_id, event_id, event_type, topic, payload, reason, aggregate_type,
                          aggregate_id, schema_subject, partition_key, retry_count
                     FROM outbox_dlq
                    WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                    ORDER BY created_at
                    LIMIT $1`

	var entries []dlqEntry
	err := pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.bypass_rls', 'on', true)"); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, batchSize)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, pgx.RowToStructByName[dlqEntry])
		return err
	})
	return entries, err
}

// settle decides the fate of one entry inside the entry's tenant scope.
func (m *DLQManager) settle(ctx context.Context, entry dlqEntry) (string, error) {
	if entry.RetryCount >= m.maxRetries {
		return dlqQuarantined, m.inTenant(ctx, entry.TenantID, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
				quarantineReason, entry.ID)
			return err
		})
	}

	requeueErr := m.inTenant(ctx, entry.TenantID, func(tx pgx.Tx) error {
		if err := requeue(ctx, tx, entry); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if requeueErr == nil {
		return dlqRequeued, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// The failed requeue rolled back, so the retry bookkeeping needs its own transaction.
	return dlqRetryScheduled, m.inTenant(ctx, entry.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			m.backoffDelay(entry.RetryCount+1), requeueErr.Error(), entry.ID)
		return err
	})
}

func (m *DLQManager) inTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// backoffDelay returns baseDelay doubled per prior attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDLQDelay {
			return maxDLQDelay
		}
	}
	return min(delay, maxDLQDelay)
}

// requeue copies the entry back into the outbox as a fresh row. dedupe_key stays NULL
// so a replay never collides with the original row.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}
	if _, ok := schemaCatalog[entry.EventType]; !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", entry.EventType)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.TenantID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload,
	)
	return err
}

// dlqEntry is an outbox_dlq row awaiting a decision.
type dlqEntry struct {
	ID            int64  `db:"dlq_id"`
	TenantID      string `db:"tenant_id"`
	EventID       int64  `db:"event_id"`
	EventType     string `db:"event_type"`
	Topic         string `db:"topic"`
	Payload       []byte `db:"payload"`
	Reason        string `db:"reason"`
	AggregateType string `db:"aggregate_type"`
	AggregateID   string `db:"aggregate_id"`
	SchemaSubject string `db:"schema_subject"`
	PartitionKey  string `db:"partition_key"`
	RetryCount    int    `db:"retry_count"`
}
