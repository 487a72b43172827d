package notify

import (
	"context"
	"errors"
	"testing"

	"daywatch/internal/eventbus"
	logx "daywatch/pkg/logx"
)

// fakeChannel scripts per-attempt outcomes: each Send pops the next error
// (nil = success); past the script it keeps returning the last entry.
type fakeChannel struct {
	name    string
	enabled bool
	script  []error
	calls   int
	panics  bool
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) Send(ctx context.Context, title, message string, prio Priority) error {
	f.calls++
	if f.panics {
		panic("channel blew up")
	}
	if len(f.script) == 0 {
		return nil
	}
	i := f.calls - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i]
}

func newTestDispatcher(chs []Channel, opts Options) *Dispatcher {
	return NewDispatcher(chs, opts, logx.Nop(), eventbus.New())
}

func TestSendAggregateOneSuccess(t *testing.T) {
	t.Parallel()
	failing := errors.New("boom")
	a := &fakeChannel{name: "a", enabled: true, script: []error{failing}}
	b := &fakeChannel{name: "b", enabled: true}
	c := &fakeChannel{name: "c", enabled: true, script: []error{failing}}

	d := newTestDispatcher([]Channel{a, b, c}, Options{})
	if !d.Send(context.Background(), Request{Title: "t", Message: "m"}) {
		t.Fatal("aggregate = false, want true with one succeeding channel")
	}
	// All three were attempted; b succeeded first try.
	if b.calls != 1 {
		t.Fatalf("b.calls = %d, want 1", b.calls)
	}
}

func TestSendAllFail(t *testing.T) {
	t.Parallel()
	failing := errors.New("boom")
	a := &fakeChannel{name: "a", enabled: true, script: []error{failing}}
	b := &fakeChannel{name: "b", enabled: true, script: []error{failing}}

	d := newTestDispatcher([]Channel{a, b}, Options{})
	if d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = true, want false when every channel fails")
	}
}

func TestSendZeroChannels(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(nil, Options{})
	if d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = true with zero channels")
	}
}

func TestRetryExactAttempts(t *testing.T) {
	t.Parallel()
	failing := errors.New("boom")
	ch := &fakeChannel{name: "a", enabled: true, script: []error{failing}}

	d := newTestDispatcher([]Channel{ch}, Options{Retry: 3})
	if d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = true, want false")
	}
	if ch.calls != 3 {
		t.Fatalf("calls = %d, want exactly 3 attempts", ch.calls)
	}
}

func TestRetrySuccessShortCircuits(t *testing.T) {
	t.Parallel()
	failing := errors.New("boom")
	ch := &fakeChannel{name: "a", enabled: true, script: []error{failing, nil, failing}}

	d := newTestDispatcher([]Channel{ch}, Options{Retry: 3})
	if !d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = false, want true on second attempt")
	}
	if ch.calls != 2 {
		t.Fatalf("calls = %d, want 2 (stop at first success)", ch.calls)
	}
}

func TestDisabledChannelSkipped(t *testing.T) {
	t.Parallel()
	off := &fakeChannel{name: "off", enabled: false}
	on := &fakeChannel{name: "on", enabled: true}

	d := newTestDispatcher([]Channel{off, on}, Options{})
	if !d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = false, want true")
	}
	if off.calls != 0 {
		t.Fatalf("disabled channel attempted %d times", off.calls)
	}
}

func TestAllowlistCaseInsensitive(t *testing.T) {
	t.Parallel()
	desk := &fakeChannel{name: "desktop", enabled: true}
	mail := &fakeChannel{name: "email", enabled: true}

	d := newTestDispatcher([]Channel{desk, mail}, Options{})
	if !d.Send(context.Background(), Request{Title: "t", Channels: []string{" DeskTop "}}) {
		t.Fatal("aggregate = false, want true")
	}
	if desk.calls != 1 {
		t.Fatalf("desktop.calls = %d, want 1", desk.calls)
	}
	if mail.calls != 0 {
		t.Fatalf("email.calls = %d, want 0 (not in allowlist)", mail.calls)
	}
}

func TestAllowlistNoMatches(t *testing.T) {
	t.Parallel()
	desk := &fakeChannel{name: "desktop", enabled: true}

	d := newTestDispatcher([]Channel{desk}, Options{})
	if d.Send(context.Background(), Request{Title: "t", Channels: []string{"pager"}}) {
		t.Fatal("aggregate = true with no eligible channels")
	}
	if desk.calls != 0 {
		t.Fatalf("desktop.calls = %d, want 0", desk.calls)
	}
}

func TestChannelPanicContained(t *testing.T) {
	t.Parallel()
	bad := &fakeChannel{name: "bad", enabled: true, panics: true}
	good := &fakeChannel{name: "good", enabled: true}

	d := newTestDispatcher([]Channel{bad, good}, Options{Retry: 2})
	if !d.Send(context.Background(), Request{Title: "t"}) {
		t.Fatal("aggregate = false, want true (panic must not poison other channels)")
	}
	if bad.calls != 2 {
		t.Fatalf("bad.calls = %d, want 2 (panic counts as failed attempt)", bad.calls)
	}
}

func TestSendEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	failing := errors.New("boom")
	a := &fakeChannel{name: "a", enabled: true}
	b := &fakeChannel{name: "b", enabled: true, script: []error{failing}}
	d := NewDispatcher([]Channel{a, b}, Options{Retry: 2}, logx.Nop(), bus)

	d.Send(context.Background(), Request{Title: "t"})

	got := map[string]int{}
	for len(events) > 0 {
		ev := <-events
		got[ev.Type]++
	}
	if got["notify.sent"] != 1 || got["notify.failed"] != 1 {
		t.Fatalf("events = %v, want one notify.sent and one notify.failed", got)
	}
}

func TestDefaultPriority(t *testing.T) {
	t.Parallel()
	var seen Priority
	ch := &prioRecorder{rec: &seen}
	d := newTestDispatcher([]Channel{ch}, Options{})
	d.Send(context.Background(), Request{Title: "t"})
	if seen != PriorityNormal {
		t.Fatalf("priority = %q, want %q", seen, PriorityNormal)
	}
}

type prioRecorder struct{ rec *Priority }

func (p *prioRecorder) Name() string  { return "rec" }
func (p *prioRecorder) Enabled() bool { return true }
func (p *prioRecorder) Send(_ context.Context, _, _ string, prio Priority) error {
	*p.rec = prio
	return nil
}
