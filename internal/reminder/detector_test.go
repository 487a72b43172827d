package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"daywatch/internal/notify"
	"daywatch/internal/store"
	logx "daywatch/pkg/logx"
)

type fakeStore struct {
	due     []store.Reminder
	dueErr  error
	saved   []store.Reminder
	saveErr error
}

func (f *fakeStore) FindDue(_ context.Context, now time.Time, advance time.Duration) ([]store.Reminder, error) {
	return f.due, f.dueErr
}

func (f *fakeStore) SaveReminder(_ context.Context, r store.Reminder) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, r)
	return nil
}

type fakeNotifier struct {
	sent []notify.Request
	ok   bool
}

func (f *fakeNotifier) Send(_ context.Context, req notify.Request) bool {
	f.sent = append(f.sent, req)
	return f.ok
}

func newTestDetector(st Store, n Notifier, now time.Time) *Detector {
	d := NewDetector(st, n, 15*time.Minute, logx.Nop())
	d.now = func() time.Time { return now }
	return d
}

func TestCheckSendsAndAdvances(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{due: []store.Reminder{
		{ID: 1, Title: "standup", ScheduledAt: now.Add(5 * time.Minute), Recurring: store.RecurDaily, Active: true},
		{ID: 2, Title: "dentist", ScheduledAt: now.Add(-30 * time.Second), Active: true},
	}}
	n := &fakeNotifier{ok: true}

	if err := newTestDetector(st, n, now).Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(n.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(n.sent))
	}
	if n.sent[0].Title != "Reminder: standup" {
		t.Fatalf("title = %q", n.sent[0].Title)
	}
	if len(st.saved) != 2 {
		t.Fatalf("saved = %d, want 2", len(st.saved))
	}
	// Recurring advanced, one-shot deactivated.
	if !st.saved[0].Active || !st.saved[0].ScheduledAt.Equal(now.Add(5*time.Minute).AddDate(0, 0, 1)) {
		t.Fatalf("recurring state = %+v", st.saved[0])
	}
	if st.saved[1].Active {
		t.Fatalf("one-shot still active: %+v", st.saved[1])
	}
}

func TestCheckDedupSkips(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{due: []store.Reminder{
		{ID: 1, Title: "x", ScheduledAt: now, Active: true, LastNotified: now.Add(-30 * time.Minute)},
	}}
	n := &fakeNotifier{ok: true}

	if err := newTestDetector(st, n, now).Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent = %d, want 0 (inside dedup window)", len(n.sent))
	}
	if len(st.saved) != 0 {
		t.Fatalf("saved = %d, want 0", len(st.saved))
	}
}

func TestCheckFailedDeliveryKeepsState(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{due: []store.Reminder{
		{ID: 1, Title: "x", ScheduledAt: now, Recurring: store.RecurDaily, Active: true},
	}}
	n := &fakeNotifier{ok: false}

	if err := newTestDetector(st, n, now).Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(n.sent))
	}
	// State untouched so the next pass retries.
	if len(st.saved) != 0 {
		t.Fatalf("saved = %d, want 0 after failed delivery", len(st.saved))
	}
}

func TestCheckStoreReadFailure(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{dueErr: errors.New("db locked")}
	n := &fakeNotifier{ok: true}

	if err := newTestDetector(st, n, now).Check(context.Background()); err == nil {
		t.Fatal("expected error when the store read fails")
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(n.sent))
	}
}

func TestCheckSaveFailureContinues(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{
		due: []store.Reminder{
			{ID: 1, Title: "a", ScheduledAt: now, Active: true},
			{ID: 2, Title: "b", ScheduledAt: now, Active: true},
		},
		saveErr: errors.New("disk full"),
	}
	n := &fakeNotifier{ok: true}

	if err := newTestDetector(st, n, now).Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	// Both still notified even though persistence keeps failing.
	if len(n.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(n.sent))
	}
}
