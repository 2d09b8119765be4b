package domain

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/events"
	"example.com/progression/internal/rewards"
	"example.com/progression/internal/unlock"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advanceDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func newTestEngine(t *testing.T, chance float64, mutate func(*Progression)) (*Engine, *testClock) {
	t.Helper()
	table := rewards.Default()
	table.UnlockChance = chance

	clock := &testClock{now: time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)}
	rules := NewRules(table, unlock.NewSeededSource(1), time.UTC)
	rules.Now = clock.Now

	state := NewProgression("tenant-1", "user-1", DailyChallenge{
		ID:     "challenge-1",
		Type:   rewards.ActivityStrength,
		Title:  "Power Up",
		Target: 2,
		Points: 40,
	}, clock.now)
	if mutate != nil {
		mutate(state)
	}
	return NewEngine(rules, state), clock
}

func eventTypes(evts []Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func TestRecordActivityFirstWorkout(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	summary := engine.RecordActivity(rewards.ActivityCardio, 20, 50)

	require.Equal(t, 100, summary.PointsEarned, "50 base plus 50 first-workout bonus")
	require.Equal(t, 50, summary.FirstWorkoutBonus)
	require.False(t, summary.StreakBonusApplied)
	require.Equal(t, 1, summary.PreviousLevel)
	require.Equal(t, 2, summary.Level, "exactly 100 points is level 2")
	require.True(t, summary.LeveledUp)
	require.Contains(t, summary.NewlyUnlockedAchievements, rewards.AchievementFirstWorkout)
	require.Nil(t, summary.NewlyUnlockedItem)

	stats := engine.State().Stats
	require.Equal(t, 100, stats.Points)
	require.Equal(t, 1, stats.WorkoutsCompleted)
	require.Equal(t, 20, stats.TotalMinutes)
	require.Equal(t, 1, stats.ActivityCounts[rewards.ActivityCardio])
	require.True(t, stats.AchievementUnlocked(rewards.AchievementFirstWorkout))

	require.ElementsMatch(t, []string{events.TypeAchievementUnlocked, events.TypeLevelChanged}, eventTypes(engine.Events()))
}

func TestFirstWorkoutBonusAppliesOnce(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	engine.RecordActivity(rewards.ActivityCardio, 20, 50)
	second := engine.RecordActivity(rewards.ActivityCardio, 20, 50)

	require.Zero(t, second.FirstWorkoutBonus)
	require.Equal(t, 50, second.PointsEarned)
	require.NotContains(t, second.NewlyUnlockedAchievements, rewards.AchievementFirstWorkout)
	require.Equal(t, 150, engine.State().Stats.Points)
}

func TestRecordActivityStreakBonus(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.Streak = 5
		p.Stats.WorkoutsCompleted = 3
		p.Stats.Achievements[rewards.AchievementFirstWorkout] = AchievementState{Unlocked: true}
	})

	summary := engine.RecordActivity(rewards.ActivityYoga, 15, 100)

	require.True(t, summary.StreakBonusApplied)
	require.Equal(t, 20, summary.StreakBonus)
	require.Equal(t, 120, summary.PointsEarned)
	require.Equal(t, 6, summary.Streak)
}

func TestStreakBonusRequiresMoreThanThreeDays(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.Streak = 3
		p.Stats.WorkoutsCompleted = 3
	})

	summary := engine.RecordActivity(rewards.ActivityYoga, 15, 100)
	require.False(t, summary.StreakBonusApplied)
	require.Equal(t, 100, summary.PointsEarned)
}

func TestRecordActivityCompletesMatchingChallenge(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.WorkoutsCompleted = 1
		p.Challenge = DailyChallenge{ID: "yoga-1", Type: rewards.ActivityYoga, Target: 5, Progress: 4, Points: 30}
	})

	summary := engine.RecordActivity(rewards.ActivityYoga, 10, 40)

	require.True(t, summary.ChallengeCompleted)
	require.Equal(t, 30, summary.ChallengePoints)
	require.Equal(t, 40, summary.PointsEarned, "challenge points are reported separately")
	require.Equal(t, 70, engine.State().Stats.Points)
	require.Equal(t, 5, engine.State().Challenge.Progress)
	require.True(t, engine.State().Challenge.Completed)

	again := engine.RecordActivity(rewards.ActivityYoga, 10, 40)
	require.False(t, again.ChallengeCompleted)
	require.Zero(t, again.ChallengePoints)
	require.Equal(t, 5, engine.State().Challenge.Progress)
	require.Equal(t, 110, engine.State().Stats.Points)
}

func TestUnknownActivityTypeDoesNotFail(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	summary := engine.RecordActivity("parkour", 10, 25)
	require.Equal(t, 75, summary.PointsEarned)
	require.False(t, summary.ChallengeCompleted)
	require.Zero(t, engine.State().Challenge.Progress)
	require.Equal(t, 1, engine.State().Stats.WorkoutsCompleted)
	require.NotContains(t, engine.State().Stats.ActivityCounts, rewards.ActivityType("parkour"),
		"only catalog activity types are counted")
}

func TestActivityCountsStayWithinCatalog(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	for i := 0; i < 50; i++ {
		engine.RecordActivity(rewards.ActivityType(fmt.Sprintf("made-up-%d", i)), 5, 1)
	}
	engine.RecordActivity(rewards.ActivityYoga, 5, 1)

	require.Equal(t, map[rewards.ActivityType]int{rewards.ActivityYoga: 1}, engine.State().Stats.ActivityCounts)
	require.Equal(t, 51, engine.State().Stats.WorkoutsCompleted)
}

func TestPointsSaturateInsteadOfOverflowing(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	prev := 0
	for i := 0; i < 3; i++ {
		summary := engine.RecordActivity(rewards.ActivityCardio, 10, math.MaxInt/2)
		require.GreaterOrEqual(t, summary.TotalPoints, prev, "call %d", i)
		require.Positive(t, summary.TotalPoints)
		prev = summary.TotalPoints
	}

	stats := engine.State().Stats
	require.Equal(t, math.MaxInt, stats.Points)
	require.Equal(t, math.MaxInt/100+1, stats.Level)
	require.True(t, stats.AchievementUnlocked(rewards.AchievementPoints1000))
}

func TestStreakBonusOnHugeBaseDoesNotWrap(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.Streak = 5
		p.Stats.WorkoutsCompleted = 1
	})

	summary := engine.RecordActivity(rewards.ActivityCardio, 10, math.MaxInt/10)
	require.True(t, summary.StreakBonusApplied)
	require.Equal(t, 184467440737095516, summary.StreakBonus)
	require.Equal(t, math.MaxInt/10+184467440737095516, summary.PointsEarned)
}

func TestCompleteDailyChallengeMatchesRecordedSequence(t *testing.T) {
	viaActivities, _ := newTestEngine(t, 0, func(p *Progression) { p.Stats.WorkoutsCompleted = 1 })
	viaActivities.RecordActivity(rewards.ActivityStrength, 10, 0)
	viaActivities.RecordActivity(rewards.ActivityStrength, 10, 0)

	viaComplete, _ := newTestEngine(t, 0, func(p *Progression) { p.Stats.WorkoutsCompleted = 1 })
	summary := viaComplete.CompleteDailyChallenge()

	require.Equal(t, 40, summary.PointsAwarded)
	require.False(t, summary.AlreadyCompleted)
	require.Equal(t, viaActivities.State().Challenge, viaComplete.State().Challenge)
	require.Equal(t, viaActivities.State().Stats.Points, viaComplete.State().Stats.Points)

	repeat := viaComplete.CompleteDailyChallenge()
	require.True(t, repeat.AlreadyCompleted)
	require.Zero(t, repeat.PointsAwarded)
	require.Equal(t, 40, viaComplete.State().Stats.Points)
}

func TestCompleteDailyChallengeEvaluatesAchievements(t *testing.T) {
	engine, _ := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.Points = 980
		p.Challenge.Points = 40
	})

	summary := engine.CompleteDailyChallenge()
	require.Contains(t, summary.NewlyUnlockedAchievements, rewards.AchievementPoints1000)
	require.Contains(t, summary.NewlyUnlockedAchievements, rewards.AchievementLevel5)
	require.True(t, summary.LeveledUp)
	require.Equal(t, 11, summary.Level)
}

func TestStreakPolicy(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)

	engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Equal(t, 1, engine.State().Stats.Streak)

	engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Equal(t, 1, engine.State().Stats.Streak, "same day does not extend the streak")

	clock.advanceDays(1)
	engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Equal(t, 2, engine.State().Stats.Streak)

	clock.advanceDays(1)
	engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Equal(t, 3, engine.State().Stats.Streak)

	clock.advanceDays(3)
	summary := engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Equal(t, 1, summary.Streak, "a missed day resets the streak")
	require.Equal(t, 3, engine.State().Stats.LongestStreak)
}

func TestBrokenStreakEarnsNoBonus(t *testing.T) {
	engine, clock := newTestEngine(t, 0, func(p *Progression) {
		p.Stats.WorkoutsCompleted = 10
		p.Stats.Streak = 6
	})
	p := engine.State()
	p.Stats.LastActiveOn = CalendarDay(clock.now, time.UTC).AddDate(0, 0, -3)

	summary := engine.RecordActivity(rewards.ActivityCardio, 10, 100)
	require.False(t, summary.StreakBonusApplied)
	require.Equal(t, 1, summary.Streak)
}

func TestWeekStreakUnlocksAchievement(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)

	var unlocked []rewards.AchievementID
	for day := 0; day < 7; day++ {
		summary := engine.RecordActivity(rewards.ActivityDance, 10, 5)
		unlocked = append(unlocked, summary.NewlyUnlockedAchievements...)
		clock.advanceDays(1)
	}
	require.Contains(t, unlocked, rewards.AchievementWeek1)
	require.Equal(t, 7, engine.State().Stats.LongestStreak)
}

func TestRecordActivityUnlocksItemOnSuccessfulRoll(t *testing.T) {
	engine, _ := newTestEngine(t, 1, nil)

	summary := engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.NotNil(t, summary.NewlyUnlockedItem)
	require.True(t, engine.State().Inventory.Has(summary.NewlyUnlockedItem.Category, summary.NewlyUnlockedItem.ItemID))
	require.Contains(t, eventTypes(engine.Events()), events.TypeItemUnlocked)
}

func TestRollIsNoOpWhenEverythingUnlocked(t *testing.T) {
	engine, _ := newTestEngine(t, 1, func(p *Progression) {
		for _, pool := range rewards.Default().ItemPools {
			p.Inventory[pool.Category] = append([]string(nil), pool.Items...)
		}
	})

	summary := engine.RecordActivity(rewards.ActivityCardio, 10, 10)
	require.Nil(t, summary.NewlyUnlockedItem)
	require.Equal(t, 9, engine.State().Inventory.Count())
}

func TestUnlockItemIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	require.True(t, engine.UnlockItem(rewards.CategoryHair, "spiky"))
	snapshot := engine.State().Clone()
	require.False(t, engine.UnlockItem(rewards.CategoryHair, "spiky"))
	require.Equal(t, snapshot, engine.State())

	require.False(t, engine.UnlockItem(rewards.CategoryHair, "mohawk"))
	require.False(t, engine.UnlockItem("shoes", "spiky"))
	require.Len(t, engine.Events(), 1)
}

func TestUnlockAchievementIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	require.True(t, engine.UnlockAchievement(rewards.AchievementLevel5))
	first := engine.State().Stats.Achievements[rewards.AchievementLevel5]
	require.NotNil(t, first.UnlockedAt)

	require.False(t, engine.UnlockAchievement(rewards.AchievementLevel5))
	require.Equal(t, first, engine.State().Stats.Achievements[rewards.AchievementLevel5])
	require.False(t, engine.UnlockAchievement("unknown"))
	require.Equal(t, 1, engine.State().Stats.Level, "explicit grants skip criteria")
}

func TestRecordActivityIsMonotonic(t *testing.T) {
	engine, clock := newTestEngine(t, 0.3, nil)
	types := []rewards.ActivityType{rewards.ActivityCardio, rewards.ActivityStrength, rewards.ActivityYoga, "unknown"}

	prev := engine.State().Clone()
	for i := 0; i < 60; i++ {
		engine.RecordActivity(types[i%len(types)], 5+i%20, i%70)
		if i%5 == 0 {
			clock.advanceDays(1 + i%3)
		}
		cur := engine.State()
		require.GreaterOrEqual(t, cur.Stats.Points, prev.Stats.Points)
		require.Equal(t, prev.Stats.WorkoutsCompleted+1, cur.Stats.WorkoutsCompleted)
		require.GreaterOrEqual(t, cur.Challenge.Progress, prev.Challenge.Progress)
		require.Equal(t, cur.Stats.Points/100+1, cur.Stats.Level)
		require.Equal(t, cur.Challenge.Progress >= cur.Challenge.Target, cur.Challenge.Completed)
		require.LessOrEqual(t, cur.Challenge.Progress, cur.Challenge.Target)
		for category, items := range prev.Inventory {
			for _, item := range items {
				require.True(t, cur.Inventory.Has(category, item), "unlocked items never revert")
			}
		}
		prev = cur.Clone()
	}
}

func TestSelectAvatar(t *testing.T) {
	engine, _ := newTestEngine(t, 0, nil)

	err := engine.SelectAvatar(AvatarCustomization{Style: "bottts"})
	require.ErrorIs(t, err, ErrStyleLocked)

	err = engine.SelectAvatar(AvatarCustomization{Style: "cubism"})
	require.ErrorIs(t, err, ErrUnknownStyle)

	engine.State().Stats.Points = 450
	engine.State().Normalize(rewards.Default())
	require.NoError(t, engine.SelectAvatar(AvatarCustomization{Style: "bottts", Mood: "calm"}))
	require.Equal(t, "bottts", engine.State().Avatar.Style)
	require.Equal(t, "user-1", engine.State().Avatar.Seed)
}

func TestAssignDailyChallenge(t *testing.T) {
	engine, clock := newTestEngine(t, 0, nil)

	require.ErrorIs(t, engine.AssignDailyChallenge(DailyChallenge{Type: rewards.ActivityYoga}), ErrInvalidChallenge)

	require.NoError(t, engine.AssignDailyChallenge(DailyChallenge{Type: rewards.ActivityYoga, Target: 3, Progress: 7, Points: 10}))
	challenge := engine.State().Challenge
	require.NotEmpty(t, challenge.ID)
	require.Equal(t, 3, challenge.Progress)
	require.True(t, challenge.Completed)
	require.Equal(t, CalendarDay(clock.now, time.UTC), challenge.AssignedOn)
}

func TestNormalizeRecomputesStaleLevel(t *testing.T) {
	state := NewProgression("t", "u", DailyChallenge{Type: rewards.ActivityYoga, Target: 2, Progress: 5}, time.Now())
	state.Stats.Points = 350
	state.Stats.Level = 42

	state.Normalize(rewards.Default())
	require.Equal(t, 4, state.Stats.Level)
	require.Equal(t, 2, state.Challenge.Progress)
	require.True(t, state.Challenge.Completed)
}

func TestCalendarDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2025, time.March, 11, 2, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC), CalendarDay(ts, time.UTC))
	require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), CalendarDay(ts, loc))
}

func TestPickChallengeUsesCatalog(t *testing.T) {
	rules := NewRules(rewards.Default(), unlock.NewSeededSource(3), time.UTC)
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	challenge := rules.PickChallenge(day)
	require.NotEmpty(t, challenge.ID)
	require.Equal(t, day, challenge.AssignedOn)
	require.Positive(t, challenge.Target)
	require.False(t, challenge.Completed)
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	require.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	require.Zero(t, locks.size())
}
