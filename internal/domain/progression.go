package domain

import (
	"maps"
	"slices"
	"time"

	"example.com/progression/internal/rewards"
)

// AchievementState records whether and when an achievement was unlocked, and whether
// its reward has been paid out.
type AchievementState struct {
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	Claimed    bool       `json:"claimed,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
}

// UserStats are the counters the engine maintains for one user.
type UserStats struct {
	Points            int                                        `json:"points"`
	Level             int                                        `json:"level"`
	WorkoutsCompleted int                                        `json:"workouts_completed"`
	Streak            int                                        `json:"streak"`
	LongestStreak     int                                        `json:"longest_streak"`
	LastActiveOn      time.Time                                  `json:"last_active_on,omitzero"`
	TotalMinutes      int                                        `json:"total_minutes"`
	ActivityCounts    map[rewards.ActivityType]int               `json:"activity_counts,omitempty"`
	Achievements      map[rewards.AchievementID]AchievementState `json:"achievements,omitempty"`
	DailyRewardStreak int                                        `json:"daily_reward_streak"`
	LastDailyRewardOn time.Time                                  `json:"last_daily_reward_on,omitzero"`
	GamesPlayed       int                                        `json:"games_played"`
}

// CanClaimDailyReward reports whether the daily reward is still open for today.
func (s UserStats) CanClaimDailyReward(today time.Time) bool {
	return s.LastDailyRewardOn.IsZero() || s.LastDailyRewardOn.Before(today)
}

// MetricValue returns the statistic an achievement metric refers to.
func (s UserStats) MetricValue(metric rewards.Metric) int {
	switch metric {
	case rewards.MetricWorkouts:
		return s.WorkoutsCompleted
	case rewards.MetricLevel:
		return s.Level
	case rewards.MetricPoints:
		return s.Points
	case rewards.MetricStreak:
		return s.Streak
	case rewards.MetricMinutes:
		return s.TotalMinutes
	default:
		return 0
	}
}

// AchievementUnlocked reports whether the achievement has been recorded as unlocked.
func (s UserStats) AchievementUnlocked(id rewards.AchievementID) bool {
	return s.Achievements[id].Unlocked
}

// DailyChallenge is the single active challenge of a user.
type DailyChallenge struct {
	ID          string               `json:"id"`
	Type        rewards.ActivityType `json:"type"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Target      int                  `json:"target"`
	Progress    int                  `json:"progress"`
	Points      int                  `json:"points"`
	Completed   bool                 `json:"completed"`
	AssignedOn  time.Time            `json:"assigned_on,omitzero"`
}

// advance moves progress forward by delta, clamped to the target.
// It returns true when this call completed the challenge.
func (c *DailyChallenge) advance(delta int) bool {
	if c.Completed || delta <= 0 {
		return false
	}
	c.Progress = min(c.Progress+delta, c.Target)
	c.Completed = c.Progress >= c.Target
	return c.Completed
}

func (c *DailyChallenge) normalize() {
	c.Progress = min(max(c.Progress, 0), c.Target)
	c.Completed = c.Target > 0 && c.Progress >= c.Target
}

// Inventory maps a category to its unlocked items in unlock order.
type Inventory map[rewards.CategoryID][]string

// Has reports whether the item is unlocked.
func (inv Inventory) Has(category rewards.CategoryID, itemID string) bool {
	return slices.Contains(inv[category], itemID)
}

// Count returns the number of unlocked items across categories.
func (inv Inventory) Count() int {
	total := 0
	for _, items := range inv {
		total += len(items)
	}
	return total
}

func (inv Inventory) add(category rewards.CategoryID, itemID string) bool {
	if inv.Has(category, itemID) {
		return false
	}
	inv[category] = append(inv[category], itemID)
	return true
}

// AvatarCustomization is the presentation state of the user's avatar.
type AvatarCustomization struct {
	Style           string `json:"style" validate:"required"`
	BackgroundColor string `json:"background_color"`
	Theme           string `json:"theme"`
	Mood            string `json:"mood"`
	Seed            string `json:"seed"`
}

// DefaultAvatar returns the avatar assigned to a new user.
func DefaultAvatar(userID string) AvatarCustomization {
	return AvatarCustomization{
		Style:           rewards.DefaultAvatarStyle,
		BackgroundColor: "blue",
		Theme:           "superhero",
		Mood:            "happy",
		Seed:            userID,
	}
}

// Progression is the persisted aggregate for one user.
type Progression struct {
	TenantID  string              `json:"tenant_id"`
	UserID    string              `json:"user_id"`
	Stats     UserStats           `json:"stats"`
	Challenge DailyChallenge      `json:"challenge"`
	Inventory Inventory           `json:"inventory"`
	Avatar    AvatarCustomization `json:"avatar"`
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// NewProgression returns the default state for a user seen for the first time.
func NewProgression(tenantID, userID string, challenge DailyChallenge, now time.Time) *Progression {
	p := &Progression{
		TenantID:  tenantID,
		UserID:    userID,
		Stats:     UserStats{Level: 1},
		Challenge: challenge,
		Inventory: Inventory{},
		Avatar:    DefaultAvatar(userID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.ensureMaps()
	return p
}

// Normalize repairs derived values after a load. Level is always recomputed from points.
func (p *Progression) Normalize(table rewards.Table) {
	p.ensureMaps()
	if p.Stats.Points < 0 {
		p.Stats.Points = 0
	}
	p.Stats.Level = table.LevelForPoints(p.Stats.Points)
	p.Stats.Streak = max(p.Stats.Streak, 0)
	p.Stats.LongestStreak = max(p.Stats.LongestStreak, p.Stats.Streak)
	p.Stats.DailyRewardStreak = max(p.Stats.DailyRewardStreak, 0)
	p.Challenge.normalize()
	if p.Avatar.Style == "" {
		p.Avatar = DefaultAvatar(p.UserID)
	}
}

func (p *Progression) ensureMaps() {
	if p.Stats.ActivityCounts == nil {
		p.Stats.ActivityCounts = make(map[rewards.ActivityType]int)
	}
	if p.Stats.Achievements == nil {
		p.Stats.Achievements = make(map[rewards.AchievementID]AchievementState)
	}
	if p.Inventory == nil {
		p.Inventory = Inventory{}
	}
}

// Clone returns a deep copy.
func (p *Progression) Clone() *Progression {
	if p == nil {
		return nil
	}
	out := *p
	out.Stats.ActivityCounts = maps.Clone(p.Stats.ActivityCounts)
	out.Stats.Achievements = make(map[rewards.AchievementID]AchievementState, len(p.Stats.Achievements))
	for id, state := range p.Stats.Achievements {
		if state.UnlockedAt != nil {
			at := *state.UnlockedAt
			state.UnlockedAt = &at
		}
		if state.ClaimedAt != nil {
			at := *state.ClaimedAt
			state.ClaimedAt = &at
		}
		out.Stats.Achievements[id] = state
	}
	out.Inventory = make(Inventory, len(p.Inventory))
	for category, items := range p.Inventory {
		out.Inventory[category] = slices.Clone(items)
	}
	return &out
}
