package api

import (
	"sort"
	"time"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/rewards"
	"example.com/progression/internal/unlock"
)

// RecordActivityRequest is the payload for POST /activities.
type RecordActivityRequest struct {
	ActivityType string `json:"activity_type" validate:"required,max=64"`
	DurationMin  int    `json:"duration_min" validate:"gt=0,lte=1440"`
	BasePoints   *int   `json:"base_points,omitempty" validate:"omitempty,gte=0,lte=100000"`
}

// RecordActivityResponse wraps the activity summary.
type RecordActivityResponse struct {
	Summary ActivitySummaryView `json:"summary"`
	Replay  bool                `json:"idempotent_replay"`
}

// AssignChallengeRequest is the payload for PUT /challenge.
type AssignChallengeRequest struct {
	Type        string `json:"type" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Target      int    `json:"target" validate:"gt=0"`
	Progress    int    `json:"progress" validate:"gte=0"`
	Points      int    `json:"points" validate:"gte=0"`
}

func (r AssignChallengeRequest) toDomain() domain.DailyChallenge {
	return domain.DailyChallenge{
		Type:        rewards.NormalizeActivityType(r.Type),
		Title:       r.Title,
		Description: r.Description,
		Target:      r.Target,
		Progress:    r.Progress,
		Points:      r.Points,
	}
}

// UnlockItemRequest is the payload for POST /items.
type UnlockItemRequest struct {
	Category rewards.CategoryID `json:"category" validate:"required"`
	ItemID   string             `json:"item_id" validate:"required"`
}

// UnlockAchievementRequest is the payload for POST /achievements.
type UnlockAchievementRequest struct {
	AchievementID rewards.AchievementID `json:"achievement_id" validate:"required"`
}

// UnlockResponse reports whether a grant changed anything.
type UnlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

// GameSessionRequest is the payload for POST /games/sessions.
type GameSessionRequest struct {
	GameID      string `json:"game_id" validate:"required,max=64"`
	Score       int    `json:"score" validate:"gte=0,lte=1000000"`
	DurationMin int    `json:"duration_min" validate:"gte=0,lte=1440"`
}

// AvatarRequest is the payload for PUT /avatar.
type AvatarRequest struct {
	Style           string `json:"style" validate:"required"`
	BackgroundColor string `json:"background_color" validate:"max=32"`
	Theme           string `json:"theme" validate:"max=32"`
	Mood            string `json:"mood" validate:"max=32"`
	Seed            string `json:"seed" validate:"max=128"`
}

func (r AvatarRequest) toDomain() domain.AvatarCustomization {
	return domain.AvatarCustomization{
		Style:           r.Style,
		BackgroundColor: r.BackgroundColor,
		Theme:           r.Theme,
		Mood:            r.Mood,
		Seed:            r.Seed,
	}
}

// AvatarView exposes the avatar customization.
type AvatarView struct {
	Style           string `json:"style"`
	BackgroundColor string `json:"background_color"`
	Theme           string `json:"theme"`
	Mood            string `json:"mood"`
	Seed            string `json:"seed"`
}

func toAvatarView(a domain.AvatarCustomization) AvatarView {
	return AvatarView(a)
}

// ActivitySummaryView describes the outcome of recording one activity.
type ActivitySummaryView struct {
	ActivityID                string          `json:"activity_id"`
	ActivityType              string          `json:"activity_type"`
	DurationMin               int             `json:"duration_min"`
	BasePoints                int             `json:"base_points"`
	PointsEarned              int             `json:"points_earned"`
	StreakBonusApplied        bool            `json:"streak_bonus_applied"`
	FirstWorkoutBonus         int             `json:"first_workout_bonus"`
	ChallengePoints           int             `json:"challenge_points"`
	ChallengeCompleted        bool            `json:"challenge_completed"`
	Level                     int             `json:"level"`
	LeveledUp                 bool            `json:"leveled_up"`
	TotalPoints               int             `json:"total_points"`
	Streak                    int             `json:"streak"`
	NewlyUnlockedAchievements []string        `json:"newly_unlocked_achievements"`
	NewlyUnlockedItem         *unlock.ItemRef `json:"newly_unlocked_item,omitempty"`
	RecordedAt                time.Time       `json:"recorded_at"`
}

func toActivitySummaryView(s domain.ActivitySummary) ActivitySummaryView {
	return ActivitySummaryView{
		ActivityID:                s.ActivityID,
		ActivityType:              string(s.ActivityType),
		DurationMin:               s.DurationMin,
		BasePoints:                s.BasePoints,
		PointsEarned:              s.PointsEarned,
		StreakBonusApplied:        s.StreakBonusApplied,
		FirstWorkoutBonus:         s.FirstWorkoutBonus,
		ChallengePoints:           s.ChallengePoints,
		ChallengeCompleted:        s.ChallengeCompleted,
		Level:                     s.Level,
		LeveledUp:                 s.LeveledUp,
		TotalPoints:               s.TotalPoints,
		Streak:                    s.Streak,
		NewlyUnlockedAchievements: achievementIDs(s.NewlyUnlockedAchievements),
		NewlyUnlockedItem:         s.NewlyUnlockedItem,
		RecordedAt:                s.RecordedAt,
	}
}

// HistoryResponse packages a page of ledger entries.
type HistoryResponse struct {
	Items      []ActivitySummaryView `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// ChallengeView exposes the daily challenge.
type ChallengeView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Target      int       `json:"target"`
	Progress    int       `json:"progress"`
	Points      int       `json:"points"`
	Completed   bool      `json:"completed"`
	AssignedOn  time.Time `json:"assigned_on"`
}

func toChallengeView(c domain.DailyChallenge) ChallengeView {
	return ChallengeView{
		ID:          c.ID,
		Type:        string(c.Type),
		Title:       c.Title,
		Description: c.Description,
		Target:      c.Target,
		Progress:    c.Progress,
		Points:      c.Points,
		Completed:   c.Completed,
		AssignedOn:  c.AssignedOn,
	}
}

// ChallengeSummaryView describes a challenge completion.
type ChallengeSummaryView struct {
	Challenge                 ChallengeView `json:"challenge"`
	PointsAwarded             int           `json:"points_awarded"`
	AlreadyCompleted          bool          `json:"already_completed"`
	Level                     int           `json:"level"`
	LeveledUp                 bool          `json:"leveled_up"`
	NewlyUnlockedAchievements []string      `json:"newly_unlocked_achievements"`
}

func toChallengeSummaryView(s domain.ChallengeSummary) ChallengeSummaryView {
	return ChallengeSummaryView{
		Challenge:                 toChallengeView(s.Challenge),
		PointsAwarded:             s.PointsAwarded,
		AlreadyCompleted:          s.AlreadyCompleted,
		Level:                     s.Level,
		LeveledUp:                 s.LeveledUp,
		NewlyUnlockedAchievements: achievementIDs(s.NewlyUnlockedAchievements),
	}
}

// DailyRewardView describes a daily reward payout.
type DailyRewardView struct {
	PointsAwarded             int       `json:"points_awarded"`
	DailyStreak               int       `json:"daily_streak"`
	ClaimedOn                 time.Time `json:"claimed_on"`
	Level                     int       `json:"level"`
	LeveledUp                 bool      `json:"leveled_up"`
	TotalPoints               int       `json:"total_points"`
	NewlyUnlockedAchievements []string  `json:"newly_unlocked_achievements"`
}

func toDailyRewardView(s domain.DailyRewardSummary) DailyRewardView {
	return DailyRewardView{
		PointsAwarded:             s.PointsAwarded,
		DailyStreak:               s.Streak,
		ClaimedOn:                 s.ClaimedOn,
		Level:                     s.Level,
		LeveledUp:                 s.LeveledUp,
		TotalPoints:               s.TotalPoints,
		NewlyUnlockedAchievements: achievementIDs(s.NewlyUnlockedAchievements),
	}
}

// AchievementRewardView describes an achievement reward payout.
type AchievementRewardView struct {
	AchievementID             string   `json:"achievement_id"`
	Name                      string   `json:"name"`
	PointsAwarded             int      `json:"points_awarded"`
	Level                     int      `json:"level"`
	LeveledUp                 bool     `json:"leveled_up"`
	TotalPoints               int      `json:"total_points"`
	NewlyUnlockedAchievements []string `json:"newly_unlocked_achievements"`
}

func toAchievementRewardView(s domain.AchievementRewardSummary) AchievementRewardView {
	return AchievementRewardView{
		AchievementID:             string(s.AchievementID),
		Name:                      s.Name,
		PointsAwarded:             s.PointsAwarded,
		Level:                     s.Level,
		LeveledUp:                 s.LeveledUp,
		TotalPoints:               s.TotalPoints,
		NewlyUnlockedAchievements: achievementIDs(s.NewlyUnlockedAchievements),
	}
}

// GameSessionView describes a credited game session.
type GameSessionView struct {
	SessionID                 string   `json:"session_id"`
	GameID                    string   `json:"game_id"`
	Score                     int      `json:"score"`
	PointsEarned              int      `json:"points_earned"`
	GamesPlayed               int      `json:"games_played"`
	Level                     int      `json:"level"`
	LeveledUp                 bool     `json:"leveled_up"`
	TotalPoints               int      `json:"total_points"`
	NewlyUnlockedGames        []string `json:"newly_unlocked_games"`
	NewlyUnlockedAchievements []string `json:"newly_unlocked_achievements"`
}

func toGameSessionView(s domain.GameSessionSummary) GameSessionView {
	return GameSessionView{
		SessionID:                 s.SessionID,
		GameID:                    s.GameID,
		Score:                     s.Score,
		PointsEarned:              s.PointsEarned,
		GamesPlayed:               s.GamesPlayed,
		Level:                     s.Level,
		LeveledUp:                 s.LeveledUp,
		TotalPoints:               s.TotalPoints,
		NewlyUnlockedGames:        s.NewlyUnlockedGames,
		NewlyUnlockedAchievements: achievementIDs(s.NewlyUnlockedAchievements),
	}
}

// AchievementView reports one achievement's progress.
type AchievementView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Progress     int        `json:"progress"`
	Target       int        `json:"target"`
	Fraction     float64    `json:"fraction"`
	Unlocked     bool       `json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
	RewardPoints int        `json:"reward_points"`
	Claimed      bool       `json:"claimed"`
}

// StatsView exposes the user's counters.
type StatsView struct {
	Points              int            `json:"points"`
	Level               int            `json:"level"`
	PointsToNextLevel   int            `json:"points_to_next_level"`
	WorkoutsCompleted   int            `json:"workouts_completed"`
	TotalMinutes        int            `json:"total_minutes"`
	Streak              int            `json:"streak"`
	LongestStreak       int            `json:"longest_streak"`
	ActivityCounts      map[string]int `json:"activity_counts"`
	GamesPlayed         int            `json:"games_played"`
	DailyRewardStreak   int            `json:"daily_reward_streak"`
	CanClaimDailyReward bool           `json:"can_claim_daily_reward"`
}

// ProgressView is the response body for GET /.
type ProgressView struct {
	UserID          string                `json:"user_id"`
	Stats           StatsView             `json:"stats"`
	Achievements    []AchievementView     `json:"achievements"`
	Challenge       ChallengeView         `json:"challenge"`
	Inventory       map[string][]string   `json:"inventory"`
	Avatar          AvatarView            `json:"avatar"`
	AvailableStyles []rewards.AvatarStyle `json:"available_styles"`
	NextStyle       *rewards.AvatarStyle  `json:"next_style,omitempty"`
	UnlockedGames   []string              `json:"unlocked_games"`
	Version         int64                 `json:"version"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func toProgressView(v domain.ProgressView, table rewards.Table) ProgressView {
	p := v.Progression
	counts := make(map[string]int, len(p.Stats.ActivityCounts))
	for activityType, n := range p.Stats.ActivityCounts {
		counts[string(activityType)] = n
	}
	inventory := make(map[string][]string, len(p.Inventory))
	for category, items := range p.Inventory {
		inventory[string(category)] = items
	}

	achievements := make([]AchievementView, 0, len(v.Achievements))
	for id, progress := range v.Achievements {
		view := AchievementView{
			ID:       string(id),
			Progress: progress.Progress,
			Target:   progress.Target,
			Fraction: progress.Fraction(),
			Unlocked: progress.Unlocked,
		}
		if def, ok := table.Achievement(id); ok {
			view.Name = def.Name
			view.RewardPoints = def.RewardPoints
		}
		if state, ok := p.Stats.Achievements[id]; ok {
			view.UnlockedAt = state.UnlockedAt
			view.Claimed = state.Claimed
		}
		achievements = append(achievements, view)
	}
	sort.Slice(achievements, func(i, j int) bool { return achievements[i].ID < achievements[j].ID })

	return ProgressView{
		UserID: p.UserID,
		Stats: StatsView{
			Points:              p.Stats.Points,
			Level:               p.Stats.Level,
			PointsToNextLevel:   v.PointsToNextLevel,
			WorkoutsCompleted:   p.Stats.WorkoutsCompleted,
			TotalMinutes:        p.Stats.TotalMinutes,
			Streak:              p.Stats.Streak,
			LongestStreak:       p.Stats.LongestStreak,
			ActivityCounts:      counts,
			GamesPlayed:         p.Stats.GamesPlayed,
			DailyRewardStreak:   p.Stats.DailyRewardStreak,
			CanClaimDailyReward: v.CanClaimDailyReward,
		},
		Achievements:    achievements,
		Challenge:       toChallengeView(p.Challenge),
		Inventory:       inventory,
		Avatar:          toAvatarView(p.Avatar),
		AvailableStyles: v.AvailableStyles,
		NextStyle:       v.NextStyle,
		UnlockedGames:   v.UnlockedGames,
		Version:         p.Version,
		UpdatedAt:       p.UpdatedAt,
	}
}

// CatalogView publishes the static reward configuration clients render against.
type CatalogView struct {
	PointsPerLevel int                             `json:"points_per_level"`
	UnlockChance   float64                         `json:"unlock_chance"`
	DailyReward    rewards.DailyReward             `json:"daily_reward"`
	GameSession    rewards.GameSessionReward       `json:"game_session"`
	Achievements   []rewards.AchievementDefinition `json:"achievements"`
	ItemPools      []rewards.ItemPool              `json:"item_pools"`
	Activities     []rewards.ActivityDefinition    `json:"activities"`
	AvatarStyles   []rewards.AvatarStyle           `json:"avatar_styles"`
	GameUnlocks    []rewards.GameUnlock            `json:"game_unlocks"`
}

// toCatalogView reports achievements and the unlock chance as the engine applies them.
func toCatalogView(rules domain.Rules) CatalogView {
	t := rules.Table
	view := CatalogView{
		PointsPerLevel: t.PointsPerLevel,
		UnlockChance:   t.UnlockChance,
		DailyReward:    t.DailyReward,
		GameSession:    t.GameSession,
		Achievements:   t.Achievements,
		ItemPools:      t.ItemPools,
		Activities:     t.Activities,
		AvatarStyles:   t.AvatarStyles,
		GameUnlocks:    t.GameUnlocks,
	}
	if rules.Evaluator != nil {
		view.Achievements = rules.Evaluator.Definitions()
	}
	if rules.Selector != nil {
		view.UnlockChance = rules.Selector.Chance()
	}
	return view
}

func achievementIDs(ids []rewards.AchievementID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
