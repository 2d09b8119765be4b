// Package achievement derives achievement progress from user statistics.
package achievement

import "example.com/progression/internal/rewards"

// Stats is the read-only view of a user's statistics the evaluator needs.
type Stats interface {
	MetricValue(metric rewards.Metric) int
	AchievementUnlocked(id rewards.AchievementID) bool
}

// Progress is the evaluated state of one achievement.
type Progress struct {
	Progress int  `json:"progress"`
	Target   int  `json:"target"`
	Unlocked bool `json:"unlocked"`
}

// Fraction returns Progress/Target in [0,1].
func (p Progress) Fraction() float64 {
	if p.Target <= 0 {
		return 0
	}
	return float64(p.Progress) / float64(p.Target)
}

// Evaluator evaluates a fixed achievement table.
type Evaluator struct {
	defs []rewards.AchievementDefinition
}

// NewEvaluator builds an Evaluator over the provided definitions.
func NewEvaluator(defs []rewards.AchievementDefinition) *Evaluator {
	copied := make([]rewards.AchievementDefinition, len(defs))
	copy(copied, defs)
	return &Evaluator{defs: copied}
}

// Definitions returns the evaluated table in declaration order.
func (e *Evaluator) Definitions() []rewards.AchievementDefinition {
	out := make([]rewards.AchievementDefinition, len(e.defs))
	copy(out, e.defs)
	return out
}

// Evaluate reports progress, target and unlocked state for every achievement.
// An achievement counts as unlocked when it was explicitly granted or its condition holds.
func (e *Evaluator) Evaluate(stats Stats) map[rewards.AchievementID]Progress {
	out := make(map[rewards.AchievementID]Progress, len(e.defs))
	for _, def := range e.defs {
		value := stats.MetricValue(def.Metric)
		out[def.ID] = Progress{
			Progress: min(max(value, 0), def.Target),
			Target:   def.Target,
			Unlocked: stats.AchievementUnlocked(def.ID) || value >= def.Target,
		}
	}
	return out
}

// Pending lists achievements whose condition holds but which are not yet recorded as unlocked.
func (e *Evaluator) Pending(stats Stats) []rewards.AchievementID {
	var out []rewards.AchievementID
	for _, def := range e.defs {
		if stats.AchievementUnlocked(def.ID) {
			continue
		}
		if stats.MetricValue(def.Metric) >= def.Target {
			out = append(out, def.ID)
		}
	}
	return out
}
