package domain

import (
	"time"

	"example.com/progression/internal/rewards"
)

// LedgerEntry is the stored record of one credited activity. ActivityID doubles as the idempotency key.
type LedgerEntry struct {
	TenantID        string
	UserID          string
	ActivityID      string
	ActivityType    rewards.ActivityType
	DurationMin     int
	PointsEarned    int
	ChallengePoints int
	LeveledUp       bool
	Summary         ActivitySummary
	RecordedAt      time.Time
}

// Cursor models the ledger pagination token.
type Cursor struct {
	RecordedAt time.Time
	ActivityID string
}

// UserRef identifies one user's progression across tenants.
type UserRef struct {
	TenantID string
	UserID   string
}

func newLedgerEntry(tenantID, userID string, summary ActivitySummary) *LedgerEntry {
	return &LedgerEntry{
		TenantID:        tenantID,
		UserID:          userID,
		ActivityID:      summary.ActivityID,
		ActivityType:    summary.ActivityType,
		DurationMin:     summary.DurationMin,
		PointsEarned:    summary.PointsEarned,
		ChallengePoints: summary.ChallengePoints,
		LeveledUp:       summary.LeveledUp,
		Summary:         summary,
		RecordedAt:      summary.RecordedAt,
	}
}
