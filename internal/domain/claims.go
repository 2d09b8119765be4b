package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/events"
	"example.com/progression/internal/rewards"
)

// DailyRewardSummary describes one daily reward payout.
type DailyRewardSummary struct {
	PointsAwarded             int                     `json:"points_awarded"`
	Streak                    int                     `json:"daily_streak"`
	ClaimedOn                 time.Time               `json:"claimed_on"`
	PreviousLevel             int                     `json:"previous_level"`
	Level                     int                     `json:"level"`
	LeveledUp                 bool                    `json:"leveled_up"`
	TotalPoints               int                     `json:"total_points"`
	NewlyUnlockedAchievements []rewards.AchievementID `json:"newly_unlocked_achievements"`
}

// AchievementRewardSummary describes the payout for one claimed achievement.
type AchievementRewardSummary struct {
	AchievementID             rewards.AchievementID   `json:"achievement_id"`
	Name                      string                  `json:"name"`
	PointsAwarded             int                     `json:"points_awarded"`
	PreviousLevel             int                     `json:"previous_level"`
	Level                     int                     `json:"level"`
	LeveledUp                 bool                    `json:"leveled_up"`
	TotalPoints               int                     `json:"total_points"`
	NewlyUnlockedAchievements []rewards.AchievementID `json:"newly_unlocked_achievements"`
}

// GameSessionSummary describes the outcome of one finished game.
type GameSessionSummary struct {
	SessionID                 string                  `json:"session_id"`
	GameID                    string                  `json:"game_id"`
	Score                     int                     `json:"score"`
	PointsEarned              int                     `json:"points_earned"`
	GamesPlayed               int                     `json:"games_played"`
	PreviousLevel             int                     `json:"previous_level"`
	Level                     int                     `json:"level"`
	LeveledUp                 bool                    `json:"leveled_up"`
	TotalPoints               int                     `json:"total_points"`
	NewlyUnlockedGames        []string                `json:"newly_unlocked_games"`
	NewlyUnlockedAchievements []rewards.AchievementID `json:"newly_unlocked_achievements"`
}

// ClaimDailyReward pays the daily reward at most once per calendar day. Claims on
// consecutive days extend the claim streak; a skipped day restarts it at one.
func (e *Engine) ClaimDailyReward() (DailyRewardSummary, error) {
	now := e.rules.now()
	today := CalendarDay(now, e.rules.Location)
	stats := &e.state.Stats

	if !stats.CanClaimDailyReward(today) {
		return DailyRewardSummary{}, fmt.Errorf("%w: daily reward for %s", ErrRewardClaimed, today.Format(time.DateOnly))
	}
	if stats.LastDailyRewardOn.Equal(today.AddDate(0, 0, -1)) {
		stats.DailyRewardStreak++
	} else {
		stats.DailyRewardStreak = 1
	}
	stats.LastDailyRewardOn = today

	summary := DailyRewardSummary{
		PointsAwarded:             e.rules.Table.DailyRewardPoints(stats.DailyRewardStreak),
		Streak:                    stats.DailyRewardStreak,
		ClaimedOn:                 today,
		PreviousLevel:             stats.Level,
		NewlyUnlockedAchievements: []rewards.AchievementID{},
	}
	e.addPoints(summary.PointsAwarded)
	e.emit(events.TypeRewardClaimed, "reward:daily:"+today.Format(time.DateOnly), events.RewardClaimed{
		TenantID:    e.state.TenantID,
		UserID:      e.state.UserID,
		Kind:        events.RewardDaily,
		Points:      summary.PointsAwarded,
		DailyStreak: stats.DailyRewardStreak,
		TotalPoints: stats.Points,
		Level:       stats.Level,
		OccurredAt:  now,
	})

	summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, e.settleAchievements(now)...)
	summary.Level = stats.Level
	summary.LeveledUp = stats.Level > summary.PreviousLevel
	summary.TotalPoints = stats.Points
	e.emitLevelChange(summary.PreviousLevel, now)
	return summary, nil
}

// ClaimAchievementReward pays an achievement's reward points once. The achievement
// must be unlocked, either on record or because its condition holds now.
func (e *Engine) ClaimAchievementReward(id rewards.AchievementID) (AchievementRewardSummary, error) {
	def, ok := e.rules.Table.Achievement(id)
	if !ok {
		return AchievementRewardSummary{}, fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	stats := &e.state.Stats
	if stats.Achievements[id].Claimed {
		return AchievementRewardSummary{}, fmt.Errorf("%w: achievement %s", ErrRewardClaimed, id)
	}
	if !e.rules.Evaluator.Evaluate(*stats)[id].Unlocked {
		return AchievementRewardSummary{}, fmt.Errorf("%w: %s needs %s >= %d", ErrAchievementLocked, id, def.Metric, def.Target)
	}

	now := e.rules.now()
	summary := AchievementRewardSummary{
		AchievementID:             id,
		Name:                      def.Name,
		PointsAwarded:             def.RewardPoints,
		PreviousLevel:             stats.Level,
		NewlyUnlockedAchievements: []rewards.AchievementID{},
	}
	if e.unlockAchievement(id, now) {
		summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, id)
	}
	state := stats.Achievements[id]
	at := now
	state.Claimed, state.ClaimedAt = true, &at
	stats.Achievements[id] = state

	e.addPoints(def.RewardPoints)
	e.emit(events.TypeRewardClaimed, "reward:achievement:"+string(id), events.RewardClaimed{
		TenantID:      e.state.TenantID,
		UserID:        e.state.UserID,
		Kind:          events.RewardAchievement,
		AchievementID: string(id),
		Points:        def.RewardPoints,
		TotalPoints:   stats.Points,
		Level:         stats.Level,
		OccurredAt:    now,
	})

	summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, e.settleAchievements(now)...)
	summary.Level = stats.Level
	summary.LeveledUp = stats.Level > summary.PreviousLevel
	summary.TotalPoints = stats.Points
	e.emitLevelChange(summary.PreviousLevel, now)
	return summary, nil
}

// CompleteGameSession credits a finished game. Only games unlocked at the user's level
// can be played; a level-up reports the games it opened.
func (e *Engine) CompleteGameSession(gameID string, score, durationMin int) (GameSessionSummary, error) {
	table := e.rules.Table
	required, ok := table.GameUnlockLevel(gameID)
	if !ok {
		return GameSessionSummary{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	stats := &e.state.Stats
	if stats.Level < required {
		return GameSessionSummary{}, fmt.Errorf("%w: %s requires level %d", ErrGameLocked, gameID, required)
	}

	now := e.rules.now()
	before := table.UnlockedGames(stats.Level)
	summary := GameSessionSummary{
		SessionID:                 uuid.NewString(),
		GameID:                    gameID,
		Score:                     score,
		PointsEarned:              table.GameSessionPoints(score),
		PreviousLevel:             stats.Level,
		NewlyUnlockedGames:        []string{},
		NewlyUnlockedAchievements: []rewards.AchievementID{},
	}
	stats.GamesPlayed++
	e.addPoints(summary.PointsEarned)

	for _, game := range table.UnlockedGames(stats.Level) {
		if !slices.Contains(before, game) {
			summary.NewlyUnlockedGames = append(summary.NewlyUnlockedGames, game)
		}
	}
	e.emit(events.TypeGameCompleted, "game:"+summary.SessionID, events.GameCompleted{
		TenantID:      e.state.TenantID,
		UserID:        e.state.UserID,
		SessionID:     summary.SessionID,
		GameID:        gameID,
		Score:         score,
		DurationMin:   durationMin,
		PointsEarned:  summary.PointsEarned,
		TotalPoints:   stats.Points,
		Level:         stats.Level,
		UnlockedGames: summary.NewlyUnlockedGames,
		OccurredAt:    now,
	})

	summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, e.settleAchievements(now)...)
	summary.GamesPlayed = stats.GamesPlayed
	summary.Level = stats.Level
	summary.LeveledUp = stats.Level > summary.PreviousLevel
	summary.TotalPoints = stats.Points
	e.emitLevelChange(summary.PreviousLevel, now)
	return summary, nil
}
