package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "daywatch/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReminderRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sched := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	r := Reminder{
		Title:       "water plants",
		Description: "balcony first",
		ScheduledAt: sched,
		Recurring:   RecurWeekly,
	}
	if err := s.CreateReminder(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := s.Reminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Title != r.Title || got.Description != r.Description {
		t.Fatalf("got %+v", got)
	}
	if !got.ScheduledAt.Equal(sched) {
		t.Fatalf("ScheduledAt = %v, want %v", got.ScheduledAt, sched)
	}
	if got.Recurring != RecurWeekly || !got.Active {
		t.Fatalf("got %+v", got)
	}
	if !got.LastNotified.IsZero() {
		t.Fatalf("LastNotified = %v, want zero", got.LastNotified)
	}

	got.ScheduledAt = sched.AddDate(0, 0, 7)
	got.LastNotified = sched
	if err := s.SaveReminder(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := s.Reminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !back.ScheduledAt.Equal(sched.AddDate(0, 0, 7)) || !back.LastNotified.Equal(sched) {
		t.Fatalf("after save: %+v", back)
	}
}

func TestReminderNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Reminder(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.SaveReminder(ctx, Reminder{ID: 9999, Recurring: RecurNone}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save err = %v, want ErrNotFound", err)
	}
	if ok, err := s.DeleteReminder(ctx, 9999); err != nil || ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
}

func TestCreateReminderInvalidRecurring(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	r := Reminder{Title: "x", ScheduledAt: time.Now(), Recurring: "fortnightly"}
	if err := s.CreateReminder(context.Background(), &r); err == nil {
		t.Fatal("invalid recurring type accepted")
	}
}

func TestFindDueWindow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	advance := 15 * time.Minute

	mk := func(title string, at time.Time, active bool) {
		t.Helper()
		r := Reminder{Title: title, ScheduledAt: at}
		if err := s.CreateReminder(ctx, &r); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		if !active {
			if _, err := s.DeactivateReminder(ctx, r.ID); err != nil {
				t.Fatalf("deactivate %s: %v", title, err)
			}
		}
	}

	mk("too old", now.Add(-2*time.Minute), true)           // before look-behind
	mk("edge past", now.Add(-time.Minute), true)           // exactly at the lower bound
	mk("just now", now, true)                              // inside
	mk("edge future", now.Add(advance), true)              // exactly at the upper bound
	mk("too far", now.Add(advance+time.Second), true)      // past the window
	mk("inactive", now, false)                             // in window but deactivated

	due, err := s.FindDue(ctx, now, advance)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	got := make([]string, 0, len(due))
	for _, r := range due {
		got = append(got, r.Title)
	}
	want := []string{"edge past", "just now", "edge future"}
	if len(got) != len(want) {
		t.Fatalf("due = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("due = %v, want %v", got, want)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	tk := Task{Title: "file taxes", DueAt: now.Add(4 * time.Hour), Priority: PriorityHigh}
	if err := s.CreateTask(ctx, &tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	today, err := s.TodayTasks(ctx, now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if len(today) != 1 || today[0].ID != tk.ID {
		t.Fatalf("today = %+v", today)
	}

	overdue, err := s.OverdueTasks(ctx, now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("overdue = %+v", overdue)
	}

	doneAt := now.Add(time.Hour)
	if ok, err := s.CompleteTask(ctx, tk.ID, doneAt); err != nil || !ok {
		t.Fatalf("complete = %v, %v", ok, err)
	}
	open, err := s.Tasks(ctx, false)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open = %+v, want none", open)
	}

	// Not old enough to archive yet.
	n, err := s.ArchiveCompletedBefore(ctx, doneAt.Add(-time.Hour))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 0 {
		t.Fatalf("archived = %d, want 0", n)
	}
	n, err = s.ArchiveCompletedBefore(ctx, doneAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived = %d, want 1", n)
	}
}

func TestTaskDefaultPriority(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	tk := Task{Title: "x"}
	if err := s.CreateTask(context.Background(), &tk); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.Priority != PriorityMedium {
		t.Fatalf("priority = %q, want medium", tk.Priority)
	}

	bad := Task{Title: "y", Priority: "urgent"}
	if err := s.CreateTask(context.Background(), &bad); err == nil {
		t.Fatal("invalid priority accepted")
	}
}

func TestSnapshotPrune(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{now.AddDate(0, 0, -100), now.Add(-time.Hour), now} {
		snap := MarketSnapshot{IndexName: "SPX", IndexSymbol: "SPX", Value: 5000 + float64(i), TakenAt: at}
		if err := s.InsertSnapshot(ctx, &snap); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := s.PruneSnapshots(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}

	rest, err := s.Snapshots(ctx, now.AddDate(0, 0, -365))
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("remaining = %d, want 2", len(rest))
	}
}
