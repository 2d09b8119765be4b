// Package rewards holds the static reward data consumed by the progression engine:
// point values, level thresholds, achievement criteria and unlockable item pools.
package rewards

import (
	"math"
	"sort"
	"strings"
)

// ActivityType identifies a kind of workout.
type ActivityType string

const (
	ActivityCardio      ActivityType = "cardio"
	ActivityStrength    ActivityType = "strength"
	ActivityYoga        ActivityType = "yoga"
	ActivityDance       ActivityType = "dance"
	ActivityFlexibility ActivityType = "flexibility"
	ActivitySports      ActivityType = "sports"
)

// NormalizeActivityType lower-cases and trims a raw activity type.
func NormalizeActivityType(raw string) ActivityType {
	return ActivityType(strings.ToLower(strings.TrimSpace(raw)))
}

// CategoryID identifies an inventory category.
type CategoryID string

const (
	CategoryHair        CategoryID = "hair"
	CategoryClothing    CategoryID = "clothing"
	CategoryAccessories CategoryID = "accessories"
)

// AchievementID identifies an achievement.
type AchievementID string

const (
	AchievementFirstWorkout AchievementID = "firstWorkout"
	AchievementLevel5       AchievementID = "level5"
	AchievementPoints1000   AchievementID = "points1000"
	AchievementWeek1        AchievementID = "week1"
)

// Metric names the user statistic an achievement is measured against.
type Metric string

const (
	MetricWorkouts Metric = "workouts"
	MetricLevel    Metric = "level"
	MetricPoints   Metric = "points"
	MetricStreak   Metric = "streak"
	MetricMinutes  Metric = "minutes"
)

// AchievementDefinition unlocks once Metric reaches Target.
type AchievementDefinition struct {
	ID          AchievementID `json:"id" validate:"required"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description"`
	Metric      Metric        `json:"metric" validate:"oneof=workouts level points streak minutes"`
	Target      int           `json:"target" validate:"gt=0"`
	// RewardPoints are granted once when the user claims the unlocked achievement.
	RewardPoints int `json:"reward_points" validate:"gte=0,lte=100000"`
}

// ItemPool is the ordered list of unlockable items of one category.
type ItemPool struct {
	Category CategoryID `json:"category" validate:"required"`
	Items    []string   `json:"items" validate:"required,min=1,dive,required"`
}

// ActivityDefinition carries the default base points for an activity type.
type ActivityDefinition struct {
	Type       ActivityType `json:"type" validate:"required"`
	Title      string       `json:"title"`
	BasePoints int          `json:"base_points" validate:"gte=0,lte=100000"`
}

// AvatarStyle is a selectable avatar style gated by level.
type AvatarStyle struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name"`
	RequiredLevel int    `json:"required_level" validate:"gte=1"`
}

// ChallengeTemplate seeds a new daily challenge.
type ChallengeTemplate struct {
	Type        ActivityType `json:"type" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Target      int          `json:"target" validate:"gt=0"`
	Points      int          `json:"points" validate:"gte=0"`
}

// GameUnlock lists the games that open up at Level.
type GameUnlock struct {
	Level int      `json:"level" validate:"gte=1"`
	Games []string `json:"games"`
}

// MaxBasePoints bounds the base points of a single activity.
const MaxBasePoints = 100000

// Table is the complete reward configuration.
type Table struct {
	PointsPerLevel       int                     `json:"points_per_level" validate:"gt=0"`
	StreakBonusThreshold int                     `json:"streak_bonus_threshold" validate:"gte=0"`
	StreakBonusPercent   int                     `json:"streak_bonus_percent" validate:"gte=0,lte=1000"`
	FirstWorkoutBonus    int                     `json:"first_workout_bonus" validate:"gte=0"`
	DefaultBasePoints    int                     `json:"default_base_points" validate:"gte=0,lte=100000"`
	UnlockChance         float64                 `json:"unlock_chance" validate:"gte=0,lte=1"`
	DailyReward          DailyReward             `json:"daily_reward"`
	GameSession          GameSessionReward       `json:"game_session"`
	Achievements         []AchievementDefinition `json:"achievements" validate:"dive"`
	ItemPools            []ItemPool              `json:"item_pools" validate:"dive"`
	Activities           []ActivityDefinition    `json:"activities" validate:"dive"`
	AvatarStyles         []AvatarStyle           `json:"avatar_styles" validate:"dive"`
	Challenges           []ChallengeTemplate     `json:"challenges" validate:"min=1,dive"`
	GameUnlocks          []GameUnlock            `json:"game_unlocks" validate:"dive"`
}

// DailyReward pays Points on the first claim of a claim streak and Step more for every
// further consecutive day, up to StreakCap days.
type DailyReward struct {
	Points    int `json:"points" validate:"gte=0"`
	Step      int `json:"step" validate:"gte=0"`
	StreakCap int `json:"streak_cap" validate:"gte=1"`
}

// GameSessionReward pays BaseXP per finished game plus one point per ScorePerPoint of
// score, capped at MaxScoreBonus.
type GameSessionReward struct {
	BaseXP        int `json:"base_xp" validate:"gte=0"`
	ScorePerPoint int `json:"score_per_point" validate:"gt=0"`
	MaxScoreBonus int `json:"max_score_bonus" validate:"gte=0"`
}

// Default returns the built-in reward table.
func Default() Table {
	return Table{
		PointsPerLevel:       100,
		StreakBonusThreshold: 3,
		StreakBonusPercent:   20,
		FirstWorkoutBonus:    50,
		DefaultBasePoints:    25,
		UnlockChance:         0.3,
		DailyReward:          DailyReward{Points: 10, Step: 5, StreakCap: 7},
		GameSession:          GameSessionReward{BaseXP: 10, ScorePerPoint: 10, MaxScoreBonus: 50},
		Achievements: []AchievementDefinition{
			{ID: AchievementFirstWorkout, Name: "First Workout", Description: "Complete your first workout", Metric: MetricWorkouts, Target: 1, RewardPoints: 50},
			{ID: AchievementLevel5, Name: "Level 5", Description: "Reach level 5", Metric: MetricLevel, Target: 5, RewardPoints: 200},
			{ID: AchievementPoints1000, Name: "Point Collector", Description: "Earn 1000 points", Metric: MetricPoints, Target: 1000, RewardPoints: 250},
			{ID: AchievementWeek1, Name: "Week Warrior", Description: "Work out 7 days in a row", Metric: MetricStreak, Target: 7, RewardPoints: 100},
		},
		ItemPools: []ItemPool{
			{Category: CategoryHair, Items: []string{"spiky", "wavy", "braided"}},
			{Category: CategoryClothing, Items: []string{"sportswear", "tank-top", "tracksuit"}},
			{Category: CategoryAccessories, Items: []string{"sweatband", "water-bottle", "medal"}},
		},
		Activities: []ActivityDefinition{
			{Type: ActivityCardio, Title: "Cardio Blast", BasePoints: 50},
			{Type: ActivityStrength, Title: "Strength Training", BasePoints: 60},
			{Type: ActivityYoga, Title: "Yoga Flow", BasePoints: 40},
			{Type: ActivityDance, Title: "Dance Party", BasePoints: 45},
			{Type: ActivityFlexibility, Title: "Stretch Session", BasePoints: 30},
			{Type: ActivitySports, Title: "Sports Practice", BasePoints: 55},
		},
		AvatarStyles: []AvatarStyle{
			{ID: "pixel-art", Name: "Pixel Art", RequiredLevel: 1},
			{ID: "identicon", Name: "Geometric", RequiredLevel: 3},
			{ID: "bottts", Name: "Robots", RequiredLevel: 5},
			{ID: "shapes", Name: "Abstract", RequiredLevel: 8},
			{ID: "adventurer", Name: "Adventurer", RequiredLevel: 10},
			{ID: "big-ears", Name: "Big Ears", RequiredLevel: 12},
			{ID: "croodles", Name: "Croodles", RequiredLevel: 15},
			{ID: "personas", Name: "Personas", RequiredLevel: 18},
			{ID: "miniavs", Name: "Mini Avatars", RequiredLevel: 20},
		},
		Challenges: []ChallengeTemplate{
			{Type: ActivityCardio, Title: "Cardio Crusher", Description: "Complete 3 cardio workouts today", Target: 3, Points: 50},
			{Type: ActivityStrength, Title: "Power Up", Description: "Complete 2 strength workouts today", Target: 2, Points: 40},
			{Type: ActivityYoga, Title: "Zen Master", Description: "Complete 5 yoga sessions today", Target: 5, Points: 30},
			{Type: ActivityDance, Title: "Dance Fever", Description: "Complete 2 dance workouts today", Target: 2, Points: 35},
		},
		GameUnlocks: []GameUnlock{
			{Level: 1, Games: []string{"dance", "yoga", "memory-match"}},
			{Level: 2, Games: []string{"sports", "sequence-memory"}},
			{Level: 3, Games: []string{"ninja", "lightning-ladders"}},
			{Level: 4, Games: []string{"rhythm", "shadow-punch", "adventure"}},
			{Level: 5, Games: []string{"magic"}},
			{Level: 6, Games: []string{"superhero"}},
		},
	}
}

// LevelForPoints returns floor(points/PointsPerLevel)+1. Negative totals count as zero.
func (t Table) LevelForPoints(points int) int {
	if points < 0 {
		points = 0
	}
	return points/t.PointsPerLevel + 1
}

// PointsForLevel returns the total needed to reach level, saturating at math.MaxInt.
func (t Table) PointsForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	if level-1 > math.MaxInt/t.PointsPerLevel {
		return math.MaxInt
	}
	return (level - 1) * t.PointsPerLevel
}

// StreakBonusApplies reports whether a streak earns the percentage bonus.
func (t Table) StreakBonusApplies(streak int) bool {
	return streak > t.StreakBonusThreshold
}

// StreakBonus returns floor(basePoints * StreakBonusPercent / 100) when the streak qualifies.
// The product is split so that it cannot overflow for any non-negative base.
func (t Table) StreakBonus(basePoints, streak int) int {
	if !t.StreakBonusApplies(streak) || basePoints <= 0 {
		return 0
	}
	pct := t.StreakBonusPercent
	return basePoints/100*pct + basePoints%100*pct/100
}

// DailyRewardPoints returns the payout for the given claim streak.
func (t Table) DailyRewardPoints(streak int) int {
	days := min(max(streak, 1), max(t.DailyReward.StreakCap, 1))
	return t.DailyReward.Points + t.DailyReward.Step*(days-1)
}

// GameSessionPoints returns the payout for one finished game. Negative scores earn no bonus.
func (t Table) GameSessionPoints(score int) int {
	cfg := t.GameSession
	bonus := 0
	if score > 0 && cfg.ScorePerPoint > 0 {
		bonus = min(score/cfg.ScorePerPoint, cfg.MaxScoreBonus)
	}
	return cfg.BaseXP + bonus
}

// GameUnlockLevel returns the level at which game opens up.
func (t Table) GameUnlockLevel(game string) (int, bool) {
	for _, unlock := range t.GameUnlocks {
		for _, g := range unlock.Games {
			if g == game {
				return unlock.Level, true
			}
		}
	}
	return 0, false
}

// BasePoints returns the catalog base points for an activity type.
func (t Table) BasePoints(activityType ActivityType) int {
	for _, def := range t.Activities {
		if def.Type == activityType {
			return def.BasePoints
		}
	}
	return t.DefaultBasePoints
}

// KnownActivity reports whether the activity type is in the catalog.
func (t Table) KnownActivity(activityType ActivityType) bool {
	for _, def := range t.Activities {
		if def.Type == activityType {
			return true
		}
	}
	return false
}

// Achievement looks up an achievement definition.
func (t Table) Achievement(id AchievementID) (AchievementDefinition, bool) {
	for _, def := range t.Achievements {
		if def.ID == id {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}

// HasItem reports whether itemID belongs to the category pool.
func (t Table) HasItem(category CategoryID, itemID string) bool {
	for _, pool := range t.ItemPools {
		if pool.Category != category {
			continue
		}
		for _, item := range pool.Items {
			if item == itemID {
				return true
			}
		}
	}
	return false
}

// Style looks up an avatar style.
func (t Table) Style(id string) (AvatarStyle, bool) {
	for _, style := range t.AvatarStyles {
		if style.ID == id {
			return style, true
		}
	}
	return AvatarStyle{}, false
}

// AvailableStyles returns the styles selectable at level, ordered by required level.
func (t Table) AvailableStyles(level int) []AvatarStyle {
	out := make([]AvatarStyle, 0, len(t.AvatarStyles))
	for _, style := range t.AvatarStyles {
		if level >= style.RequiredLevel {
			out = append(out, style)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequiredLevel < out[j].RequiredLevel })
	return out
}

// NextStyle returns the cheapest style still locked at level.
func (t Table) NextStyle(level int) (AvatarStyle, bool) {
	var next AvatarStyle
	found := false
	for _, style := range t.AvatarStyles {
		if style.RequiredLevel <= level {
			continue
		}
		if !found || style.RequiredLevel < next.RequiredLevel {
			next = style
			found = true
		}
	}
	return next, found
}

// UnlockedGames returns every game unlocked at or below level.
func (t Table) UnlockedGames(level int) []string {
	var out []string
	for _, unlock := range t.GameUnlocks {
		if level >= unlock.Level {
			out = append(out, unlock.Games...)
		}
	}
	return out
}
