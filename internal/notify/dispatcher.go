// Package notify fans a single logical notification out across independently
// configured delivery channels, each wrapped in its own retry loop.
//
// Failure never escapes this package: callers see a boolean aggregate plus
// logs, nothing else.
package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"daywatch/internal/eventbus"
	logx "daywatch/pkg/logx"
)

const defaultRetry = 3

type Options struct {
	// Retry is the per-channel attempt budget (default 3). Retries are
	// immediate, with no backoff. A channel needing pacing must implement
	// it behind its own Send.
	Retry int

	// RatePerSec caps dispatch attempts per second across all channels.
	// 0 disables rate limiting.
	RatePerSec int
}

// Dispatcher owns the channel list for the life of the process. The list is
// read-only after construction, so no locking is required.
type Dispatcher struct {
	log      logx.Logger
	bus      eventbus.Bus
	channels []Channel
	retry    int
	limiter  *rate.Limiter
}

func NewDispatcher(channels []Channel, opts Options, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	retry := opts.Retry
	if retry <= 0 {
		retry = defaultRetry
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	d := &Dispatcher{
		log:      log,
		bus:      bus,
		channels: append([]Channel(nil), channels...),
		retry:    retry,
		limiter:  limiter,
	}
	for _, ch := range d.channels {
		log.Info("notification channel registered",
			logx.String("channel", ch.Name()), logx.Bool("enabled", ch.Enabled()))
	}
	return d
}

// Send delivers the request across all eligible channels in registration
// order and reports whether at least one succeeded. Zero eligible channels
// is a logged warning, not an error.
func (d *Dispatcher) Send(ctx context.Context, req Request) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if len(d.channels) == 0 {
		d.log.Warn("no notification channels configured", logx.String("title", req.Title))
		return false
	}

	ok := false
	attempted := 0
	for _, ch := range d.channels {
		if !ch.Enabled() {
			d.log.Debug("channel disabled; skipping", logx.String("channel", ch.Name()))
			continue
		}
		if !allowed(ch.Name(), req.Channels) {
			continue
		}
		attempted++
		if d.sendOne(ctx, ch, req) {
			ok = true
		}
	}

	if attempted == 0 {
		d.log.Warn("no eligible notification channels", logx.String("title", req.Title),
			logx.Any("allowlist", req.Channels))
	}
	return ok
}

// sendOne is the per-channel retry wrapper: up to d.retry attempts, first
// success short-circuits, every attempt logged with channel identity and
// attempt number. Panics from a channel count as a failed attempt.
func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, req Request) bool {
	name := ch.Name()
	var lastErr error
	for attempt := 1; attempt <= d.retry; attempt++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		err := d.attempt(ctx, ch, req)
		if err == nil {
			d.log.Info("notification sent",
				logx.String("channel", name),
				logx.String("title", req.Title),
				logx.Int("attempt", attempt))
			d.publish("notify.sent", Event{Title: req.Title, Channel: name, Priority: req.Priority,
				At: time.Now(), Attempts: attempt})
			return true
		}
		lastErr = err
		d.log.Warn("notification attempt failed",
			logx.String("channel", name),
			logx.Int("attempt", attempt),
			logx.Int("max", d.retry),
			logx.Err(err))
	}

	errStr := ""
	if lastErr != nil {
		errStr = lastErr.Error()
	}
	d.log.Error("notification failed after retries",
		logx.String("channel", name),
		logx.Int("attempts", d.retry),
		logx.String("title", req.Title))
	d.publish("notify.failed", Event{Title: req.Title, Channel: name, Priority: req.Priority,
		At: time.Now(), Attempts: d.retry, Error: errStr})
	return false
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, req Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			d.log.Error("channel panicked",
				logx.String("channel", ch.Name()),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())))
		}
	}()
	return ch.Send(ctx, req.Title, req.Message, req.Priority)
}

func (d *Dispatcher) publish(typ string, ev Event) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func allowed(name string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, a := range allowlist {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	return false
}
