package reminder

import (
	"time"

	"daywatch/internal/store"
)

// Named schedule steps. Monthly is a fixed 30-day stride rather than a
// calendar month, so a reminder created on the 31st drifts instead of
// clamping.
const (
	DedupWindow = time.Hour

	dailyStep   = 24 * time.Hour
	weeklyStep  = 7 * 24 * time.Hour
	monthlyStep = 30 * 24 * time.Hour
)

// Advance returns the reminder's state after a successful notification
// at now. Recurring reminders move one stride forward from their
// scheduled time; one-shot reminders deactivate. Pure function, callers
// persist the result.
func Advance(r store.Reminder, now time.Time) store.Reminder {
	r.LastNotified = now

	switch r.Recurring {
	case store.RecurDaily:
		r.ScheduledAt = r.ScheduledAt.Add(dailyStep)
	case store.RecurWeekly:
		r.ScheduledAt = r.ScheduledAt.Add(weeklyStep)
	case store.RecurMonthly:
		r.ScheduledAt = r.ScheduledAt.Add(monthlyStep)
	default:
		r.Active = false
	}
	return r
}

// Suppressed reports whether a reminder notified at lastNotified is
// still inside the dedup window at now. A zero lastNotified never
// suppresses.
func Suppressed(lastNotified, now time.Time) bool {
	if lastNotified.IsZero() {
		return false
	}
	return now.Sub(lastNotified) <= DedupWindow
}
