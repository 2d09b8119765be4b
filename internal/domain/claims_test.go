package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/events"
	"example.com/progression/internal/rewards"
)

func TestClaimDailyRewardOncePerDay(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)

	summary, err := engine.ClaimDailyReward()
	require.NoError(t, err)
	require.Equal(t, 10, summary.PointsAwarded)
	require.Equal(t, 1, summary.Streak)
	require.Equal(t, CalendarDay(clock.now, time.UTC), summary.ClaimedOn)
	require.Equal(t, 10, engine.State().Stats.Points)
	require.Equal(t, []string{events.TypeRewardClaimed}, eventTypes(engine.Events()))

	snapshot := engine.State().Clone()
	_, err = engine.ClaimDailyReward()
	require.ErrorIs(t, err, ErrRewardClaimed)
	require.Equal(t, snapshot, engine.State(), "a refused claim changes nothing")
	require.Len(t, engine.Events(), 1)
}

func TestClaimDailyRewardStreak(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)

	var awarded, streaks []int
	claim := func() {
		t.Helper()
		summary, err := engine.ClaimDailyReward()
		require.NoError(t, err)
		awarded = append(awarded, summary.PointsAwarded)
		streaks = append(streaks, summary.Streak)
	}

	claim()
	clock.advanceDays(1)
	claim()
	clock.advanceDays(1)
	claim()
	clock.advanceDays(2)
	claim()

	require.Equal(t, []int{1, 2, 3, 1}, streaks, "a skipped day restarts the claim streak")
	require.Equal(t, []int{10, 15, 20, 10}, awarded)
	require.Equal(t, 55, engine.State().Stats.Points)
	require.Zero(t, engine.State().Stats.Streak, "claims do not count as workouts")
}

func TestClaimDailyRewardIsCapped(t *testing.T) {
	engine, clock := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.DailyRewardStreak = 30
	})
	engine.State().Stats.LastDailyRewardOn = CalendarDay(clock.now, time.UTC).AddDate(0, 0, -1)

	summary, err := engine.ClaimDailyReward()
	require.NoError(t, err)
	require.Equal(t, 31, summary.Streak)
	require.Equal(t, 40, summary.PointsAwarded, "payout stops growing after seven days")
}

func TestClaimDailyRewardCanLevelUp(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) { p.Stats.Points = 95 })

	summary, err := engine.ClaimDailyReward()
	require.NoError(t, err)
	require.True(t, summary.LeveledUp)
	require.Equal(t, 2, summary.Level)
	require.Equal(t, 105, summary.TotalPoints)
	require.ElementsMatch(t, []string{events.TypeRewardClaimed, events.TypeLevelChanged}, eventTypes(engine.Events()))
}

func TestClaimAchievementRewardRequiresUnlock(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	_, err := engine.ClaimAchievementReward(rewards.AchievementFirstWorkout)
	require.ErrorIs(t, err, ErrAchievementLocked)

	_, err = engine.ClaimAchievementReward("centuryClub")
	require.ErrorIs(t, err, ErrUnknownAchievement)
	require.Empty(t, engine.Events())
	require.Zero(t, engine.State().Stats.Points)
}

func TestClaimAchievementRewardPaysOnce(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)
	engine.RecordActivity(rewards.ActivityCardio, 20, 50)
	require.Equal(t, 100, engine.State().Stats.Points)

	summary, err := engine.ClaimAchievementReward(rewards.AchievementFirstWorkout)
	require.NoError(t, err)
	require.Equal(t, 50, summary.PointsAwarded)
	require.Equal(t, "First Workout", summary.Name)
	require.Equal(t, 150, summary.TotalPoints)
	require.Empty(t, summary.NewlyUnlockedAchievements, "already unlocked by the workout")

	state := engine.State().Stats.Achievements[rewards.AchievementFirstWorkout]
	require.True(t, state.Claimed)
	require.NotNil(t, state.ClaimedAt)
	require.Equal(t, clock.now, *state.ClaimedAt)

	_, err = engine.ClaimAchievementReward(rewards.AchievementFirstWorkout)
	require.ErrorIs(t, err, ErrRewardClaimed)
	require.Equal(t, 150, engine.State().Stats.Points)
}

func TestClaimAchievementRewardRecordsPendingUnlock(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) { p.Stats.Points = 1000 })

	summary, err := engine.ClaimAchievementReward(rewards.AchievementPoints1000)
	require.NoError(t, err)
	require.Equal(t, 250, summary.PointsAwarded)
	require.Contains(t, summary.NewlyUnlockedAchievements, rewards.AchievementPoints1000)
	require.Contains(t, summary.NewlyUnlockedAchievements, rewards.AchievementLevel5)
	require.True(t, engine.State().Stats.AchievementUnlocked(rewards.AchievementPoints1000))
	require.Equal(t, 1250, engine.State().Stats.Points)
}

func TestClaimAchievementRewardHonoursGrants(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)
	require.True(t, engine.UnlockAchievement(rewards.AchievementWeek1))

	summary, err := engine.ClaimAchievementReward(rewards.AchievementWeek1)
	require.NoError(t, err)
	require.Equal(t, 100, summary.PointsAwarded)
	require.True(t, summary.LeveledUp)
}

func TestCompleteGameSessionChecksUnlocks(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	_, err := engine.CompleteGameSession("magic", 100, 5)
	require.ErrorIs(t, err, ErrGameLocked)

	_, err = engine.CompleteGameSession("chess", 100, 5)
	require.ErrorIs(t, err, ErrUnknownGame)
	require.Zero(t, engine.State().Stats.GamesPlayed)
}

func TestCompleteGameSessionUnlocksGamesOnLevelUp(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) { p.Stats.Points = 95 })

	summary, err := engine.CompleteGameSession("memory-match", 120, 8)
	require.NoError(t, err)
	require.NotEmpty(t, summary.SessionID)
	require.Equal(t, 22, summary.PointsEarned, "10 base plus one per 10 score")
	require.Equal(t, 1, summary.GamesPlayed)
	require.True(t, summary.LeveledUp)
	require.Equal(t, []string{"sports", "sequence-memory"}, summary.NewlyUnlockedGames)
	require.ElementsMatch(t, []string{events.TypeGameCompleted, events.TypeLevelChanged}, eventTypes(engine.Events()))

	again, err := engine.CompleteGameSession("sports", 10000, 8)
	require.NoError(t, err)
	require.Equal(t, 60, again.PointsEarned, "score bonus is capped")
	require.Empty(t, again.NewlyUnlockedGames)
	require.Equal(t, 2, engine.State().Stats.GamesPlayed)
	require.Zero(t, engine.State().Stats.WorkoutsCompleted)
}
