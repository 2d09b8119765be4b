package domain

import "time"

// CalendarDay returns t's calendar date in loc, as midnight UTC.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// settleStreak drops a streak whose last active day is older than yesterday.
// A zero LastActiveOn keeps the stored streak.
func settleStreak(stats *UserStats, today time.Time) {
	if stats.LastActiveOn.IsZero() {
		return
	}
	if stats.LastActiveOn.Before(today.AddDate(0, 0, -1)) {
		stats.Streak = 0
	}
}

// advanceStreak counts today as an active day. Repeat activity on the same day is a no-op.
func advanceStreak(stats *UserStats, today time.Time) {
	if !stats.LastActiveOn.IsZero() && !stats.LastActiveOn.Before(today) {
		return
	}
	stats.Streak++
	stats.LongestStreak = max(stats.LongestStreak, stats.Streak)
	stats.LastActiveOn = today
}
