package sched

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"daywatch/internal/eventbus"
	"daywatch/internal/trigger"
	logx "daywatch/pkg/logx"
)

func newTestRegistry(t *testing.T, workers int) *Registry {
	t.Helper()
	return New(trigger.New(time.UTC), Defaults{}, workers, logx.Nop(), eventbus.New())
}

func noopJob(context.Context) error { return nil }

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 1)

	if err := r.Register(JobConfig{ID: "", Spec: trigger.Every(time.Second)}, noopJob); err == nil {
		t.Fatal("empty id accepted")
	}
	if err := r.Register(JobConfig{ID: "a", Spec: trigger.Every(time.Second)}, nil); err == nil {
		t.Fatal("nil callable accepted")
	}
	if err := r.Register(JobConfig{ID: "a", Spec: trigger.Cron("bad")}, noopJob); err == nil {
		t.Fatal("invalid cron accepted")
	}
	// Unsatisfiable spec must fail at registration, not at first fire.
	err := r.Register(JobConfig{ID: "a", Spec: trigger.Cron("0 0 31 2 *")}, noopJob)
	if !errors.Is(err, trigger.ErrUnsatisfiable) {
		t.Fatalf("err = %v, want ErrUnsatisfiable", err)
	}

	if err := r.Register(JobConfig{ID: "a", Spec: trigger.Every(time.Second)}, noopJob); err != nil {
		t.Fatalf("register: %v", err)
	}
	err = r.Register(JobConfig{ID: "a", Spec: trigger.Every(time.Second)}, noopJob)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}
	if err := r.Register(JobConfig{ID: "a", Spec: trigger.Every(2 * time.Second), ReplaceExisting: true}, noopJob); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := len(r.Jobs()); got != 1 {
		t.Fatalf("jobs = %d, want 1 after replace", got)
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 1)

	if got := r.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := r.State(); got != StateRunning {
		t.Fatalf("state = %v, want running", got)
	}
	// Second start is a logged no-op.
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	r.Stop()
	r.Stop() // idempotent
	if got := r.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}

	// Stopped is terminal.
	if err := r.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("start after stop: %v, want ErrStopped", err)
	}
	if err := r.Register(JobConfig{ID: "late", Spec: trigger.Every(time.Second)}, noopJob); !errors.Is(err, ErrStopped) {
		t.Fatalf("register after stop: %v, want ErrStopped", err)
	}
}

func TestStopNeverStarted(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 1)
	r.Stop()
	if got := r.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
}

func TestRunJobNow(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 1)

	ran := make(chan struct{}, 1)
	if err := r.Register(JobConfig{ID: "manual", Spec: trigger.Cron("0 3 * * *")}, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Not running yet.
	if r.RunJobNow("manual") {
		t.Fatal("run-now succeeded on idle registry")
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	if r.RunJobNow("nope") {
		t.Fatal("run-now succeeded for unknown job")
	}
	if !r.RunJobNow("manual") {
		t.Fatal("run-now failed for known job")
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("forced job never executed")
	}
}

func TestMaxInstancesNoOverlap(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 4)

	var (
		mu      sync.Mutex
		entries []time.Time
		exits   []time.Time
	)
	if err := r.Register(JobConfig{
		ID:           "slow",
		Spec:         trigger.Every(20 * time.Millisecond),
		MaxInstances: 1,
		Coalesce:     true,
	}, func(ctx context.Context) error {
		mu.Lock()
		entries = append(entries, time.Now())
		mu.Unlock()
		time.Sleep(80 * time.Millisecond)
		mu.Lock()
		exits = append(exits, time.Now())
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(entries) < 2 {
		t.Fatalf("executions = %d, want at least 2", len(entries))
	}
	if len(entries) != len(exits) {
		t.Fatalf("entries = %d, exits = %d; stop should wait for in-flight runs", len(entries), len(exits))
	}
	// No entry may precede the previous exit.
	for i := 1; i < len(entries); i++ {
		if entries[i].Before(exits[i-1]) {
			t.Fatalf("run %d entered at %v before run %d exited at %v", i, entries[i], i-1, exits[i-1])
		}
	}
}

func TestJobsSnapshotOrder(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t, 1)

	for _, id := range []string{"c", "a", "b"} {
		if err := r.Register(JobConfig{ID: id, Spec: trigger.Every(time.Hour)}, noopJob); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	infos := r.Jobs()
	if len(infos) != 3 {
		t.Fatalf("jobs = %d, want 3", len(infos))
	}
	want := []string{"c", "a", "b"}
	for i, info := range infos {
		if info.ID != want[i] {
			t.Fatalf("jobs[%d] = %s, want %s (registration order)", i, info.ID, want[i])
		}
	}

	if !r.Unregister("a") {
		t.Fatal("unregister known job returned false")
	}
	if r.Unregister("a") {
		t.Fatal("unregister unknown job returned true")
	}
	ids := make([]string, 0, 2)
	for _, info := range r.Jobs() {
		ids = append(ids, info.ID)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("jobs after unregister = %v", ids)
	}
}

func TestMisfireSkipped(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := New(trigger.New(time.UTC), Defaults{MisfireGrace: time.Minute}, 1, logx.Nop(), bus)
	ran := false
	if err := r.Register(JobConfig{ID: "stale", Spec: trigger.Every(time.Hour)}, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// White-box: mark running and backdate the next-run past the grace.
	now := time.Now()
	r.mu.Lock()
	r.state = StateRunning
	r.queue = make(chan firing, 4)
	j := r.jobs["stale"]
	j.nextRun = now.Add(-10 * time.Minute)
	r.mu.Unlock()

	r.fireDue(now)

	select {
	case ev := <-events:
		if ev.Type != "job.skipped" {
			t.Fatalf("event = %s, want job.skipped", ev.Type)
		}
		je, ok := ev.Data.(JobEvent)
		if !ok || je.Reason != "misfire" {
			t.Fatalf("event data = %+v, want reason misfire", ev.Data)
		}
	default:
		t.Fatal("no skip event published")
	}
	if ran {
		t.Fatal("misfired job executed")
	}

	r.mu.Lock()
	next := r.jobs["stale"].nextRun
	r.mu.Unlock()
	if !next.After(now.Add(-10 * time.Minute)) {
		t.Fatalf("next-run not advanced after misfire: %v", next)
	}
}

func TestWithinGraceStillFires(t *testing.T) {
	t.Parallel()
	r := New(trigger.New(time.UTC), Defaults{MisfireGrace: time.Hour}, 1, logx.Nop(), eventbus.New())

	if err := r.Register(JobConfig{ID: "late", Spec: trigger.Every(time.Hour)}, noopJob); err != nil {
		t.Fatalf("register: %v", err)
	}

	now := time.Now()
	r.mu.Lock()
	r.state = StateRunning
	r.queue = make(chan firing, 4)
	j := r.jobs["late"]
	j.nextRun = now.Add(-10 * time.Minute) // late, but inside the grace
	r.mu.Unlock()

	r.fireDue(now)

	select {
	case f := <-r.queue:
		if f.id != "late" {
			t.Fatalf("queued firing = %s, want late", f.id)
		}
		f.release()
	default:
		t.Fatal("late-but-in-grace firing was not dispatched")
	}
}

func TestCoalescedSkipEvent(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := New(trigger.New(time.UTC), Defaults{}, 1, logx.Nop(), bus)
	if err := r.Register(JobConfig{
		ID:           "busy",
		Spec:         trigger.Every(time.Hour),
		MaxInstances: 1,
		Coalesce:     true,
	}, noopJob); err != nil {
		t.Fatalf("register: %v", err)
	}

	now := time.Now()
	r.mu.Lock()
	r.state = StateRunning
	r.queue = make(chan firing, 4)
	j := r.jobs["busy"]
	j.nextRun = now.Add(-time.Second)
	// Saturate the cap as if a previous run were still in flight.
	if !j.sem.tryAcquire() {
		r.mu.Unlock()
		t.Fatal("fresh semaphore refused acquire")
	}
	r.mu.Unlock()

	r.fireDue(now)

	select {
	case ev := <-events:
		je, ok := ev.Data.(JobEvent)
		if !ok || ev.Type != "job.skipped" || je.Reason != "coalesced" {
			t.Fatalf("event = %s %+v, want job.skipped/coalesced", ev.Type, ev.Data)
		}
	default:
		t.Fatal("no coalesce event published")
	}
	select {
	case <-r.queue:
		t.Fatal("coalesced firing was dispatched anyway")
	default:
	}
}

func TestSemaphore(t *testing.T) {
	t.Parallel()
	s := newSemaphore(2)
	if !s.tryAcquire() || !s.tryAcquire() {
		t.Fatal("acquire under limit failed")
	}
	if s.tryAcquire() {
		t.Fatal("acquire over limit succeeded")
	}
	if got := s.inUse(); got != 2 {
		t.Fatalf("inUse = %d, want 2", got)
	}
	s.release()
	if !s.tryAcquire() {
		t.Fatal("acquire after release failed")
	}
}
