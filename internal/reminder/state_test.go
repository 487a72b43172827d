package reminder

import (
	"testing"
	"time"

	"daywatch/internal/store"
)

func TestAdvanceRecurring(t *testing.T) {
	t.Parallel()

	sched := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2025, 5, 1, 9, 0, 30, 0, time.UTC)

	cases := []struct {
		recurring store.RecurringType
		want      time.Time
	}{
		{store.RecurDaily, sched.AddDate(0, 0, 1)},
		{store.RecurWeekly, sched.AddDate(0, 0, 7)},
		{store.RecurMonthly, sched.AddDate(0, 0, 30)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.recurring), func(t *testing.T) {
			t.Parallel()
			r := store.Reminder{ScheduledAt: sched, Recurring: tc.recurring, Active: true}
			got := Advance(r, now)
			if !got.ScheduledAt.Equal(tc.want) {
				t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, tc.want)
			}
			if !got.Active {
				t.Fatal("recurring reminder deactivated")
			}
			if !got.LastNotified.Equal(now) {
				t.Fatalf("LastNotified = %v, want %v", got.LastNotified, now)
			}
		})
	}
}

func TestAdvanceOneShot(t *testing.T) {
	t.Parallel()

	sched := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	now := sched.Add(time.Minute)
	r := store.Reminder{ScheduledAt: sched, Recurring: store.RecurNone, Active: true}

	got := Advance(r, now)
	if got.Active {
		t.Fatal("one-shot reminder still active after firing")
	}
	if !got.ScheduledAt.Equal(sched) {
		t.Fatalf("one-shot ScheduledAt moved to %v", got.ScheduledAt)
	}
	if !got.LastNotified.Equal(now) {
		t.Fatalf("LastNotified = %v, want %v", got.LastNotified, now)
	}
}

func TestSuppressed(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		last time.Time
		want bool
	}{
		{"never notified", time.Time{}, false},
		{"30 minutes ago", now.Add(-30 * time.Minute), true},
		{"exactly one hour ago", now.Add(-DedupWindow), true},
		{"61 minutes ago", now.Add(-61 * time.Minute), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Suppressed(tc.last, now); got != tc.want {
				t.Fatalf("Suppressed(%v) = %v, want %v", tc.last, got, tc.want)
			}
		})
	}
}
