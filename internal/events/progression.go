package events

import "time"

// ActivityRewarded is emitted once per recorded activity.
type ActivityRewarded struct {
	TenantID           string    `json:"tenant_id"`
	UserID             string    `json:"user_id"`
	ActivityID         string    `json:"activity_id"`
	ActivityType       string    `json:"activity_type"`
	DurationMin        int       `json:"duration_min"`
	PointsEarned       int       `json:"points_earned"`
	ChallengePoints    int       `json:"challenge_points"`
	StreakBonusApplied bool      `json:"streak_bonus_applied"`
	TotalPoints        int       `json:"total_points"`
	Level              int       `json:"level"`
	Streak             int       `json:"streak"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// LevelChanged is emitted when a user's level increases.
type LevelChanged struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	Level         int       `json:"level"`
	TotalPoints   int       `json:"total_points"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AchievementUnlocked is emitted the first time an achievement unlocks.
type AchievementUnlocked struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// ItemUnlocked is emitted when an inventory item unlocks, either by roll or by grant.
type ItemUnlocked struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Category   string    `json:"category"`
	ItemID     string    `json:"item_id"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChallengeCompleted is emitted when the active daily challenge completes.
type ChallengeCompleted struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	ChallengeID   string    `json:"challenge_id"`
	ChallengeType string    `json:"challenge_type"`
	Points        int       `json:"points"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Reward kinds carried by RewardClaimed.
const (
	RewardDaily       = "daily"
	RewardAchievement = "achievement"
)

// RewardClaimed is emitted when a daily or achievement reward is paid out.
type RewardClaimed struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	Kind          string    `json:"kind"`
	AchievementID string    `json:"achievement_id,omitempty"`
	Points        int       `json:"points"`
	DailyStreak   int       `json:"daily_streak,omitempty"`
	TotalPoints   int       `json:"total_points"`
	Level         int       `json:"level"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// GameCompleted is emitted once per finished game session.
type GameCompleted struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	GameID        string    `json:"game_id"`
	Score         int       `json:"score"`
	DurationMin   int       `json:"duration_min"`
	PointsEarned  int       `json:"points_earned"`
	TotalPoints   int       `json:"total_points"`
	Level         int       `json:"level"`
	UnlockedGames []string  `json:"unlocked_games"`
	OccurredAt    time.Time `json:"occurred_at"`
}
