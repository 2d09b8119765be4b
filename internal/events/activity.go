// Package events defines the event payloads exchanged over Kafka.
package events

import "time"

// Event types consumed and produced by the progression service.
const (
	TypeActivityCreated = "activity.created"

	TypeActivityRewarded    = "progression.activity_rewarded"
	TypeLevelChanged        = "progression.level_changed"
	TypeAchievementUnlocked = "progression.achievement_unlocked"
	TypeItemUnlocked        = "progression.item_unlocked"
	TypeChallengeCompleted  = "progression.challenge_completed"
	TypeRewardClaimed       = "progression.reward_claimed"
	TypeGameCompleted       = "progression.game_completed"
)

// ActivityCreated represents the message emitted upstream when a new activity is accepted.
type ActivityCreated struct {
	ActivityID   string    `json:"activity_id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
	DurationMin  int       `json:"duration_min"`
	Source       string    `json:"source"`
	Version      string    `json:"version"`
}
