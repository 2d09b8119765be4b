package achievement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/rewards"
)

type stubStats struct {
	metrics  map[rewards.Metric]int
	unlocked map[rewards.AchievementID]bool
}

func (s stubStats) MetricValue(metric rewards.Metric) int {
	return s.metrics[metric]
}

func (s stubStats) AchievementUnlocked(id rewards.AchievementID) bool {
	return s.unlocked[id]
}

func TestEvaluateClampsProgressToTarget(t *testing.T) {
	evaluator := NewEvaluator(rewards.Default().Achievements)
	stats := stubStats{metrics: map[rewards.Metric]int{
		rewards.MetricWorkouts: 12,
		rewards.MetricLevel:    3,
		rewards.MetricPoints:   250,
		rewards.MetricStreak:   9,
	}}

	got := evaluator.Evaluate(stats)

	require.Equal(t, Progress{Progress: 1, Target: 1, Unlocked: true}, got[rewards.AchievementFirstWorkout])
	require.Equal(t, Progress{Progress: 3, Target: 5, Unlocked: false}, got[rewards.AchievementLevel5])
	require.Equal(t, Progress{Progress: 250, Target: 1000, Unlocked: false}, got[rewards.AchievementPoints1000])
	require.Equal(t, Progress{Progress: 7, Target: 7, Unlocked: true}, got[rewards.AchievementWeek1])
	require.InDelta(t, 0.25, got[rewards.AchievementPoints1000].Fraction(), 0.0001)
}

func TestEvaluateHonoursExplicitUnlocks(t *testing.T) {
	evaluator := NewEvaluator(rewards.Default().Achievements)
	stats := stubStats{
		metrics:  map[rewards.Metric]int{rewards.MetricLevel: 1},
		unlocked: map[rewards.AchievementID]bool{rewards.AchievementLevel5: true},
	}

	got := evaluator.Evaluate(stats)
	require.True(t, got[rewards.AchievementLevel5].Unlocked)
	require.Equal(t, 1, got[rewards.AchievementLevel5].Progress)
}

func TestEvaluateIsPure(t *testing.T) {
	evaluator := NewEvaluator(rewards.Default().Achievements)
	stats := stubStats{
		metrics:  map[rewards.Metric]int{rewards.MetricPoints: 1200, rewards.MetricWorkouts: 4},
		unlocked: map[rewards.AchievementID]bool{},
	}

	first := evaluator.Evaluate(stats)
	second := evaluator.Evaluate(stats)
	require.Equal(t, first, second)
	require.Empty(t, stats.unlocked, "evaluate must not record unlocks")
}

func TestPendingListsNewlySatisfiedOnly(t *testing.T) {
	evaluator := NewEvaluator(rewards.Default().Achievements)
	stats := stubStats{
		metrics: map[rewards.Metric]int{
			rewards.MetricWorkouts: 1,
			rewards.MetricLevel:    11,
			rewards.MetricPoints:   1000,
		},
		unlocked: map[rewards.AchievementID]bool{rewards.AchievementFirstWorkout: true},
	}

	require.Equal(t, []rewards.AchievementID{rewards.AchievementLevel5, rewards.AchievementPoints1000}, evaluator.Pending(stats))
}

func TestDataDrivenAchievement(t *testing.T) {
	defs := append(rewards.Default().Achievements, rewards.AchievementDefinition{
		ID: "marathon", Name: "Marathon", Metric: rewards.MetricMinutes, Target: 600,
	})
	evaluator := NewEvaluator(defs)

	got := evaluator.Evaluate(stubStats{metrics: map[rewards.Metric]int{rewards.MetricMinutes: 640}})
	require.Equal(t, Progress{Progress: 600, Target: 600, Unlocked: true}, got["marathon"])
}
