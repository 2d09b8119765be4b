// Package memory provides an in-process progression store for local development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"example.com/progression/internal/domain"
)

// DefaultEventLimit is the number of recent events a Repository retains.
const DefaultEventLimit = 1024

// Repository stores progressions in memory. Every read and write works on copies.
// Only the most recent events are kept, since nothing publishes them.
type Repository struct {
	mu           sync.RWMutex
	progressions map[domain.UserRef]*domain.Progression
	ledger       map[domain.UserRef][]domain.LedgerEntry
	events       []domain.Event
	eventLimit   int
}

// Option configures a Repository.
type Option func(*Repository)

// WithEventLimit changes how many recent events are retained. Zero disables retention.
func WithEventLimit(n int) Option {
	return func(r *Repository) {
		r.eventLimit = max(n, 0)
	}
}

// NewRepository constructs an empty Repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		progressions: make(map[domain.UserRef]*domain.Progression),
		ledger:       make(map[domain.UserRef][]domain.LedgerEntry),
		eventLimit:   DefaultEventLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update implements domain.Repository.
func (r *Repository) Update(ctx context.Context, tenantID, userID string, fn domain.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.UserRef{TenantID: tenantID, UserID: userID}
	mutation, err := fn(r.progressions[key].Clone())
	if err != nil {
		return err
	}

	if mutation.Ledger != nil {
		for _, entry := range r.ledger[key] {
			if entry.ActivityID == mutation.Ledger.ActivityID {
				return domain.ErrIdempotentReplay
			}
		}
		r.ledger[key] = append(r.ledger[key], *mutation.Ledger)
	}
	if mutation.State != nil {
		r.progressions[key] = mutation.State.Clone()
	}
	r.events = append(r.events, mutation.Events...)
	if over := len(r.events) - r.eventLimit; over > 0 {
		r.events = slices.Delete(r.events, 0, over)
	}
	return nil
}

// Get implements domain.Repository.
func (r *Repository) Get(ctx context.Context, tenantID, userID string) (*domain.Progression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progressions[domain.UserRef{TenantID: tenantID, UserID: userID}].Clone(), nil
}

// FindLedgerEntry implements domain.Repository.
func (r *Repository) FindLedgerEntry(ctx context.Context, tenantID, userID, activityID string) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.ledger[domain.UserRef{TenantID: tenantID, UserID: userID}] {
		if entry.ActivityID == activityID {
			found := entry
			return &found, nil
		}
	}
	return nil, nil
}

// ListLedger implements domain.Repository.
func (r *Repository) ListLedger(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.LedgerEntry, *domain.Cursor, error) {
	r.mu.RLock()
	entries := append([]domain.LedgerEntry(nil), r.ledger[domain.UserRef{TenantID: tenantID, UserID: userID}]...)
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RecordedAt.Equal(entries[j].RecordedAt) {
			return entries[i].ActivityID > entries[j].ActivityID
		}
		return entries[i].RecordedAt.After(entries[j].RecordedAt)
	})

	results := make([]domain.LedgerEntry, 0, limit)
	for _, entry := range entries {
		if cursor != nil && !before(entry, *cursor) {
			continue
		}
		results = append(results, entry)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(results) == limit && limit > 0 {
		last := results[len(results)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ActivityID: last.ActivityID}
	}
	return results, next, nil
}

// before reports whether entry sorts after the cursor in newest-first order.
func before(entry domain.LedgerEntry, cursor domain.Cursor) bool {
	if entry.RecordedAt.Equal(cursor.RecordedAt) {
		return entry.ActivityID < cursor.ActivityID
	}
	return entry.RecordedAt.Before(cursor.RecordedAt)
}

// ListUsers implements domain.Repository.
func (r *Repository) ListUsers(ctx context.Context, after domain.UserRef, limit int) ([]domain.UserRef, error) {
	r.mu.RLock()
	refs := make([]domain.UserRef, 0, len(r.progressions))
	for ref := range r.progressions {
		refs = append(refs, ref)
	}
	r.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool { return less(refs[i], refs[j]) })

	out := make([]domain.UserRef, 0, limit)
	for _, ref := range refs {
		if after != (domain.UserRef{}) && !less(after, ref) {
			continue
		}
		out = append(out, ref)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func less(a, b domain.UserRef) bool {
	if a.TenantID != b.TenantID {
		return a.TenantID < b.TenantID
	}
	return a.UserID < b.UserID
}

// Events returns the retained events, oldest first.
func (r *Repository) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Event(nil), r.events...)
}
