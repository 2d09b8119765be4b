// Package observability holds process-wide Prometheus metrics for the progression domain.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "progression_service"

var (
	progressionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_progression_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent progression write.",
	})

	mutationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "mutation_duration_seconds",
		Help:      "Time spent locking, loading, applying and saving a progression mutation.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation", "outcome"})

	activitiesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "activities_recorded_total",
		Help:      "Number of activities credited, labeled by activity type.",
	}, []string{"activity_type"})

	pointsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "points_awarded_total",
		Help:      "Points awarded, labeled by reason (activity, challenge, daily, achievement, game).",
	}, []string{"reason"})

	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "level_ups_total",
		Help:      "Number of mutations that raised a user's level.",
	})

	achievementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "achievements_unlocked_total",
		Help:      "Achievements unlocked, labeled by achievement id.",
	}, []string{"achievement"})

	itemCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "items_unlocked_total",
		Help:      "Inventory items unlocked, labeled by category and source.",
	}, []string{"category", "source"})

	challengeCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "challenges_completed_total",
		Help:      "Daily challenges completed.",
	})

	rewardClaimCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rewards_claimed_total",
		Help:      "Daily and achievement rewards paid out, labeled by kind.",
	}, []string{"kind"})

	gameSessionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "game_sessions_total",
		Help:      "Finished game sessions, labeled by game.",
	}, []string{"game"})

	replayCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "idempotent_replays_total",
		Help:      "RecordActivity calls answered from the ledger.",
	})

	rotationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "challenges_rotated_total",
		Help:      "Daily challenges replaced by the rotation job.",
	})
)

func init() {
	prometheus.MustRegister(
		progressionPersistGauge,
		mutationDuration,
		activitiesCounter,
		pointsCounter,
		levelUpCounter,
		achievementCounter,
		itemCounter,
		challengeCounter,
		rewardClaimCounter,
		gameSessionCounter,
		replayCounter,
		rotationCounter,
	)
}

// RecordProgressionPersisted updates the persistence watermark gauge.
func RecordProgressionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	progressionPersistGauge.Set(float64(ts.Unix()))
}

// ObserveMutation records the latency of a service mutation.
func ObserveMutation(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mutationDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

// RecordActivity counts a credited activity and its points.
func RecordActivity(activityType string, points int) {
	activitiesCounter.WithLabelValues(activityType).Inc()
	if points > 0 {
		pointsCounter.WithLabelValues("activity").Add(float64(points))
	}
}

// RecordChallengeCompleted counts a completed challenge and its points.
func RecordChallengeCompleted(points int) {
	challengeCounter.Inc()
	if points > 0 {
		pointsCounter.WithLabelValues("challenge").Add(float64(points))
	}
}

// RecordRewardClaimed counts a paid out reward and its points.
func RecordRewardClaimed(kind string, points int) {
	rewardClaimCounter.WithLabelValues(kind).Inc()
	if points > 0 {
		pointsCounter.WithLabelValues(kind).Add(float64(points))
	}
}

// RecordGameSession counts a finished game and its points.
func RecordGameSession(game string, points int) {
	gameSessionCounter.WithLabelValues(game).Inc()
	if points > 0 {
		pointsCounter.WithLabelValues("game").Add(float64(points))
	}
}

// RecordLevelUp counts a level increase.
func RecordLevelUp() {
	levelUpCounter.Inc()
}

// RecordAchievement counts an unlocked achievement.
func RecordAchievement(id string) {
	achievementCounter.WithLabelValues(id).Inc()
}

// RecordItem counts an unlocked item.
func RecordItem(category, source string) {
	itemCounter.WithLabelValues(category, source).Inc()
}

// RecordReplay counts an idempotent replay.
func RecordReplay() {
	replayCounter.Inc()
}

// RecordRotation counts rotated challenges.
func RecordRotation(n int) {
	if n > 0 {
		rotationCounter.Add(float64(n))
	}
}
