// Package postgres stores progressions, the activity ledger and the outbox in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/rewards"
)

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for progressions and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Update runs fn against the locked row and commits the state, ledger entry and outbox rows together.
func (r *Repository) Update(ctx context.Context, tenantID, userID string, fn domain.UpdateFunc) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, tenantID); err != nil {
		return err
	}
	// Serialises first writes for users that have no row to lock yet.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+":"+userID); err != nil {
		return err
	}

	current, err := loadProgression(ctx, tx, tenantID, userID, true)
	if err != nil {
		return err
	}

	mutation, err := fn(current)
	if err != nil {
		return err
	}

	if mutation.Ledger != nil {
		if err = insertLedger(ctx, tx, *mutation.Ledger); err != nil {
			return err
		}
	}
	if mutation.State != nil {
		if err = upsertProgression(ctx, tx, mutation.State); err != nil {
			return err
		}
	}
	for _, evt := range mutation.Events {
		if err = insertOutbox(ctx, tx, tenantID, userID, evt); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordProgressionPersisted(time.Now())
	return nil
}

// Get retrieves a progression, returning nil when the user has none.
func (r *Repository) Get(ctx context.Context, tenantID, userID string) (*domain.Progression, error) {
	var result *domain.Progression
	err := r.readTx(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		result, err = loadProgression(ctx, tx, tenantID, userID, false)
		return err
	})
	return result, err
}

// FindLedgerEntry returns the ledger entry for activityID, or nil.
func (r *Repository) FindLedgerEntry(ctx context.Context, tenantID, userID, activityID string) (*domain.LedgerEntry, error) {
	const query = `SELECT tenant_id, user_id, activity_id, activity_type, duration_min, points_earned, challenge_points, leveled_up, summary, recorded_at
        FROM progression_ledger WHERE tenant_id=$1 AND user_id=$2 AND activity_id=$3`

	var result *domain.LedgerEntry
	err := r.readTx(ctx, tenantID, func(tx pgx.Tx) error {
		entry, err := scanLedger(tx.QueryRow(ctx, query, tenantID, userID, activityID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		result = &entry
		return nil
	})
	return result, err
}

// ListLedger returns ledger entries newest first using keyset pagination.
func (r *Repository) ListLedger(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.LedgerEntry, *domain.Cursor, error) {
	args := []any{tenantID, userID, limit}
	query := `SELECT tenant_id, user_id, activity_id, activity_type, duration_min, points_earned, challenge_points, leveled_up, summary, recorded_at
        FROM progression_ledger WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (recorded_at, activity_id) < ($4, $5)`
		args = append(args, cursor.RecordedAt, cursor.ActivityID)
	}
	query += ` ORDER BY recorded_at DESC, activity_id DESC LIMIT $3`

	results := make([]domain.LedgerEntry, 0, limit)
	err := r.readTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanLedger(rows)
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ActivityID: last.ActivityID}
	}
	return results, next, nil
}

// ListUsers pages through every tenant's progressions for maintenance jobs.
func (r *Repository) ListUsers(ctx context.Context, after domain.UserRef, limit int) ([]domain.UserRef, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.bypass_rls', 'on', true)"); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT tenant_id, user_id FROM progressions
          WHERE (tenant_id, user_id) > ($1, $2)
          ORDER BY tenant_id, user_id
          LIMIT $3`,
		after.TenantID, after.UserID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]domain.UserRef, 0, limit)
	for rows.Next() {
		var ref domain.UserRef
		if err := rows.Scan(&ref.TenantID, &ref.UserID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, tx.Commit(ctx)
}

func (r *Repository) readTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID)
	return err
}

func loadProgression(ctx context.Context, tx pgx.Tx, tenantID, userID string, forUpdate bool) (*domain.Progression, error) {
	query := `SELECT state, version, created_at, updated_at FROM progressions WHERE tenant_id=$1 AND user_id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		raw   []byte
		state domain.Progression
	)
	err := tx.QueryRow(ctx, query, tenantID, userID).Scan(&raw, &state.Version, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	version, createdAt, updatedAt := state.Version, state.CreatedAt, state.UpdatedAt
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode progression %s/%s: %w", tenantID, userID, err)
	}
	// Row columns win over whatever the document carries.
	state.TenantID, state.UserID = tenantID, userID
	state.Version, state.CreatedAt, state.UpdatedAt = version, createdAt, updatedAt
	return &state, nil
}

func upsertProgression(ctx context.Context, tx pgx.Tx, state *domain.Progression) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO progressions (tenant_id, user_id, points, level, version, state, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, user_id) DO UPDATE
           SET points = EXCLUDED.points,
               level = EXCLUDED.level,
               version = EXCLUDED.version,
               state = EXCLUDED.state,
               updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, stmt,
		state.TenantID,
		state.UserID,
		state.Stats.Points,
		state.Stats.Level,
		state.Version,
		body,
		state.CreatedAt,
		state.UpdatedAt,
	)
	return err
}

func insertLedger(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) error {
	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO progression_ledger (tenant_id, user_id, activity_id, activity_type, duration_min, points_earned, challenge_points, leveled_up, summary, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = tx.Exec(ctx, stmt,
		entry.TenantID,
		entry.UserID,
		entry.ActivityID,
		string(entry.ActivityType),
		entry.DurationMin,
		entry.PointsEarned,
		entry.ChallengePoints,
		entry.LeveledUp,
		summary,
		entry.RecordedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrIdempotentReplay
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (domain.LedgerEntry, error) {
	var (
		entry        domain.LedgerEntry
		activityType string
		summary      []byte
	)
	if err := row.Scan(&entry.TenantID, &entry.UserID, &entry.ActivityID, &activityType, &entry.DurationMin, &entry.PointsEarned, &entry.ChallengePoints, &entry.LeveledUp, &summary, &entry.RecordedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	entry.ActivityType = rewards.ActivityType(activityType)
	if err := json.Unmarshal(summary, &entry.Summary); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("decode ledger summary %s: %w", entry.ActivityID, err)
	}
	return entry, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, userID string, evt domain.Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[evt.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}

	partitionKey := fmt.Sprintf("%s:%s", tenantID, userID)
	dedupeKey := fmt.Sprintf("%s:%s:%s", tenantID, userID, evt.Key)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		"progression",
		userID,
		evt.Type,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// ProgressionTopic carries every event the service produces.
const ProgressionTopic = "progression_events"

func progressionEvent(eventType string) EventMetadata {
	return EventMetadata{Topic: ProgressionTopic, SchemaSubject: ProgressionTopic + "-" + eventType}
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityRewarded:    progressionEvent(events.TypeActivityRewarded),
	events.TypeLevelChanged:        progressionEvent(events.TypeLevelChanged),
	events.TypeAchievementUnlocked: progressionEvent(events.TypeAchievementUnlocked),
	events.TypeItemUnlocked:        progressionEvent(events.TypeItemUnlocked),
	events.TypeChallengeCompleted:  progressionEvent(events.TypeChallengeCompleted),
	events.TypeRewardClaimed:       progressionEvent(events.TypeRewardClaimed),
	events.TypeGameCompleted:       progressionEvent(events.TypeGameCompleted),
}
