package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/achievement"
	"example.com/progression/internal/events"
	"example.com/progression/internal/rewards"
	"example.com/progression/internal/unlock"
)

// Rules bundles the static configuration and collaborators the engine consults.
type Rules struct {
	Table     rewards.Table
	Source    unlock.Source
	Selector  *unlock.Selector
	Evaluator *achievement.Evaluator
	Location  *time.Location
	Now       func() time.Time
}

// NewRules wires a selector and evaluator for the table. Streak days are computed in loc.
func NewRules(table rewards.Table, src unlock.Source, loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{
		Table:     table,
		Source:    src,
		Selector:  unlock.NewSelector(src, table.UnlockChance),
		Evaluator: achievement.NewEvaluator(table.Achievements),
		Location:  loc,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r Rules) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Today returns the current calendar day in the configured location.
func (r Rules) Today() time.Time {
	return CalendarDay(r.now(), r.Location)
}

// PickChallenge draws a challenge template uniformly and stamps it for day.
func (r Rules) PickChallenge(day time.Time) DailyChallenge {
	templates := r.Table.Challenges
	if len(templates) == 0 {
		return DailyChallenge{}
	}
	idx := 0
	if r.Source != nil && len(templates) > 1 {
		idx = r.Source.IntN(len(templates))
	}
	tpl := templates[idx]
	return DailyChallenge{
		ID:          uuid.NewString(),
		Type:        tpl.Type,
		Title:       tpl.Title,
		Description: tpl.Description,
		Target:      tpl.Target,
		Points:      tpl.Points,
		AssignedOn:  day,
	}
}

// Event is a domain event awaiting publication.
type Event struct {
	Type string
	// Key distinguishes events of the same type for one user and is used for deduplication.
	Key     string
	Payload any
}

// ActivitySummary describes the outcome of one recorded activity.
type ActivitySummary struct {
	ActivityID                string                  `json:"activity_id,omitempty"`
	ActivityType              rewards.ActivityType    `json:"activity_type"`
	DurationMin               int                     `json:"duration_min"`
	BasePoints                int                     `json:"base_points"`
	PointsEarned              int                     `json:"points_earned"`
	StreakBonusApplied        bool                    `json:"streak_bonus_applied"`
	StreakBonus               int                     `json:"streak_bonus"`
	FirstWorkoutBonus         int                     `json:"first_workout_bonus"`
	ChallengePoints           int                     `json:"challenge_points"`
	ChallengeCompleted        bool                    `json:"challenge_completed"`
	PreviousLevel             int                     `json:"previous_level"`
	Level                     int                     `json:"level"`
	LeveledUp                 bool                    `json:"leveled_up"`
	TotalPoints               int                     `json:"total_points"`
	Streak                    int                     `json:"streak"`
	NewlyUnlockedAchievements []rewards.AchievementID `json:"newly_unlocked_achievements"`
	NewlyUnlockedItem         *unlock.ItemRef         `json:"newly_unlocked_item,omitempty"`
	RecordedAt                time.Time               `json:"recorded_at"`
}

// ChallengeSummary describes the outcome of closing out the daily challenge.
type ChallengeSummary struct {
	Challenge                 DailyChallenge          `json:"challenge"`
	PointsAwarded             int                     `json:"points_awarded"`
	AlreadyCompleted          bool                    `json:"already_completed"`
	PreviousLevel             int                     `json:"previous_level"`
	Level                     int                     `json:"level"`
	LeveledUp                 bool                    `json:"leveled_up"`
	NewlyUnlockedAchievements []rewards.AchievementID `json:"newly_unlocked_achievements"`
}

// Engine applies progression rules to a single user's state. It is not safe for concurrent use;
// callers serialise access per user.
type Engine struct {
	rules  Rules
	state  *Progression
	events []Event
}

// NewEngine wraps state. Derived values are normalised before any rule runs.
func NewEngine(rules Rules, state *Progression) *Engine {
	state.Normalize(rules.Table)
	return &Engine{rules: rules, state: state}
}

// State returns the mutated progression.
func (e *Engine) State() *Progression {
	return e.state
}

// Events returns the events emitted so far.
func (e *Engine) Events() []Event {
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// RecordActivity credits one completed activity.
func (e *Engine) RecordActivity(activityType rewards.ActivityType, durationMin, basePoints int) ActivitySummary {
	now := e.rules.now()
	today := CalendarDay(now, e.rules.Location)
	table := e.rules.Table
	stats := &e.state.Stats

	summary := ActivitySummary{
		ActivityType:              activityType,
		DurationMin:               durationMin,
		BasePoints:                basePoints,
		PreviousLevel:             stats.Level,
		NewlyUnlockedAchievements: []rewards.AchievementID{},
		RecordedAt:                now,
	}

	firstWorkout := stats.WorkoutsCompleted == 0
	stats.WorkoutsCompleted++
	stats.TotalMinutes += durationMin
	if table.KnownActivity(activityType) {
		stats.ActivityCounts[activityType]++
	}

	settleStreak(stats, today)
	earned := basePoints
	if table.StreakBonusApplies(stats.Streak) {
		summary.StreakBonusApplied = true
		summary.StreakBonus = table.StreakBonus(basePoints, stats.Streak)
		earned += summary.StreakBonus
	}
	if firstWorkout {
		summary.FirstWorkoutBonus = table.FirstWorkoutBonus
		earned += table.FirstWorkoutBonus
		if e.unlockAchievement(rewards.AchievementFirstWorkout, now) {
			summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, rewards.AchievementFirstWorkout)
		}
	}
	summary.PointsEarned = earned
	e.addPoints(earned)
	advanceStreak(stats, today)

	challenge := &e.state.Challenge
	if challenge.Type == activityType && challenge.advance(1) {
		summary.ChallengeCompleted = true
		summary.ChallengePoints = challenge.Points
		e.addPoints(challenge.Points)
		e.emitChallengeCompleted(now)
	}

	if e.rules.Selector != nil {
		if ref, ok := e.rules.Selector.MaybeSelect(table.ItemPools, e.state.Inventory); ok {
			e.state.Inventory.add(ref.Category, ref.ItemID)
			summary.NewlyUnlockedItem = &ref
			e.emitItemUnlocked(ref, "roll", now)
		}
	}

	summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, e.settleAchievements(now)...)
	summary.Level = stats.Level
	summary.LeveledUp = stats.Level > summary.PreviousLevel
	summary.TotalPoints = stats.Points
	summary.Streak = stats.Streak
	e.emitLevelChange(summary.PreviousLevel, now)
	return summary
}

// CompleteDailyChallenge moves the active challenge to its target and awards its points once.
func (e *Engine) CompleteDailyChallenge() ChallengeSummary {
	now := e.rules.now()
	stats := &e.state.Stats
	challenge := &e.state.Challenge

	summary := ChallengeSummary{
		PreviousLevel:             stats.Level,
		Level:                     stats.Level,
		AlreadyCompleted:          challenge.Completed,
		NewlyUnlockedAchievements: []rewards.AchievementID{},
	}
	if challenge.advance(challenge.Target - challenge.Progress) {
		summary.PointsAwarded = challenge.Points
		e.addPoints(challenge.Points)
		e.emitChallengeCompleted(now)
		summary.NewlyUnlockedAchievements = append(summary.NewlyUnlockedAchievements, e.settleAchievements(now)...)
		summary.Level = stats.Level
		summary.LeveledUp = stats.Level > summary.PreviousLevel
		e.emitLevelChange(summary.PreviousLevel, now)
	}
	summary.Challenge = *challenge
	return summary
}

// UnlockItem grants an item outside the random roll. Unknown items and repeat grants return false.
func (e *Engine) UnlockItem(category rewards.CategoryID, itemID string) bool {
	if !e.rules.Table.HasItem(category, itemID) {
		return false
	}
	if !e.state.Inventory.add(category, itemID) {
		return false
	}
	e.emitItemUnlocked(unlock.ItemRef{Category: category, ItemID: itemID}, "grant", e.rules.now())
	return true
}

// UnlockAchievement grants an achievement without checking its criteria.
// Unknown ids and repeat grants return false.
func (e *Engine) UnlockAchievement(id rewards.AchievementID) bool {
	if _, ok := e.rules.Table.Achievement(id); !ok {
		return false
	}
	return e.unlockAchievement(id, e.rules.now())
}

// AssignDailyChallenge replaces the active challenge.
func (e *Engine) AssignDailyChallenge(challenge DailyChallenge) error {
	if challenge.Type == "" || challenge.Target <= 0 || challenge.Points < 0 {
		return fmt.Errorf("%w: type and positive target required", ErrInvalidChallenge)
	}
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if challenge.AssignedOn.IsZero() {
		challenge.AssignedOn = CalendarDay(e.rules.now(), e.rules.Location)
	}
	challenge.normalize()
	e.state.Challenge = challenge
	return nil
}

// SelectAvatar updates the avatar, refusing styles above the user's level.
func (e *Engine) SelectAvatar(avatar AvatarCustomization) error {
	style, ok := e.rules.Table.Style(avatar.Style)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStyle, avatar.Style)
	}
	if e.state.Stats.Level < style.RequiredLevel {
		return fmt.Errorf("%w: %s requires level %d", ErrStyleLocked, style.ID, style.RequiredLevel)
	}
	if avatar.Seed == "" {
		avatar.Seed = e.state.Avatar.Seed
	}
	if avatar.Seed == "" {
		avatar.Seed = e.state.UserID
	}
	e.state.Avatar = avatar
	return nil
}

// Evaluate reports achievement progress for the current stats.
func (e *Engine) Evaluate() map[rewards.AchievementID]achievement.Progress {
	return e.rules.Evaluator.Evaluate(e.state.Stats)
}

// AvailableStyles lists avatar styles selectable at the current level.
func (e *Engine) AvailableStyles() []rewards.AvatarStyle {
	return e.rules.Table.AvailableStyles(e.state.Stats.Level)
}

// UnlockedGames lists games playable at the current level.
func (e *Engine) UnlockedGames() []string {
	return e.rules.Table.UnlockedGames(e.state.Stats.Level)
}

// addPoints credits delta, saturating at math.MaxInt.
func (e *Engine) addPoints(delta int) {
	if delta <= 0 {
		return
	}
	stats := &e.state.Stats
	if stats.Points > math.MaxInt-delta {
		stats.Points = math.MaxInt
	} else {
		stats.Points += delta
	}
	stats.Level = e.rules.Table.LevelForPoints(stats.Points)
}

// settleAchievements unlocks every achievement whose condition now holds.
func (e *Engine) settleAchievements(now time.Time) []rewards.AchievementID {
	if e.rules.Evaluator == nil {
		return nil
	}
	var unlocked []rewards.AchievementID
	for _, id := range e.rules.Evaluator.Pending(e.state.Stats) {
		if e.unlockAchievement(id, now) {
			unlocked = append(unlocked, id)
		}
	}
	return unlocked
}

func (e *Engine) unlockAchievement(id rewards.AchievementID, now time.Time) bool {
	if e.state.Stats.AchievementUnlocked(id) {
		return false
	}
	at := now
	e.state.Stats.Achievements[id] = AchievementState{Unlocked: true, UnlockedAt: &at}
	e.emit(events.TypeAchievementUnlocked, "achievement:"+string(id), events.AchievementUnlocked{
		TenantID:      e.state.TenantID,
		UserID:        e.state.UserID,
		AchievementID: string(id),
		UnlockedAt:    now,
	})
	return true
}

func (e *Engine) emitLevelChange(previous int, now time.Time) {
	level := e.state.Stats.Level
	if level <= previous {
		return
	}
	e.emit(events.TypeLevelChanged, fmt.Sprintf("level:%d", level), events.LevelChanged{
		TenantID:      e.state.TenantID,
		UserID:        e.state.UserID,
		PreviousLevel: previous,
		Level:         level,
		TotalPoints:   e.state.Stats.Points,
		OccurredAt:    now,
	})
}

func (e *Engine) emitChallengeCompleted(now time.Time) {
	c := e.state.Challenge
	e.emit(events.TypeChallengeCompleted, "challenge:"+c.ID, events.ChallengeCompleted{
		TenantID:      e.state.TenantID,
		UserID:        e.state.UserID,
		ChallengeID:   c.ID,
		ChallengeType: string(c.Type),
		Points:        c.Points,
		OccurredAt:    now,
	})
}

func (e *Engine) emitItemUnlocked(ref unlock.ItemRef, source string, now time.Time) {
	e.emit(events.TypeItemUnlocked, fmt.Sprintf("item:%s:%s", ref.Category, ref.ItemID), events.ItemUnlocked{
		TenantID:   e.state.TenantID,
		UserID:     e.state.UserID,
		Category:   string(ref.Category),
		ItemID:     ref.ItemID,
		Source:     source,
		OccurredAt: now,
	})
}

func (e *Engine) emit(eventType, key string, payload any) {
	e.events = append(e.events, Event{Type: eventType, Key: key, Payload: payload})
}
