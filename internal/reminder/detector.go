package reminder

import (
	"context"
	"fmt"
	"time"

	"daywatch/internal/notify"
	"daywatch/internal/store"
	logx "daywatch/pkg/logx"
)

// Notifier is the slice of the fan-out dispatcher the detector needs.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) bool
}

// Store is the persistence surface the detector needs.
type Store interface {
	FindDue(ctx context.Context, now time.Time, advance time.Duration) ([]store.Reminder, error)
	SaveReminder(ctx context.Context, r store.Reminder) error
}

// Detector scans for due reminders and pushes them through the
// notification fan-out. It owns the dedup and recurrence transitions;
// sending is delegated entirely to the Notifier.
type Detector struct {
	store   Store
	notif   Notifier
	advance time.Duration
	log     logx.Logger
	now     func() time.Time
}

func NewDetector(st Store, n Notifier, advance time.Duration, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{
		store:   st,
		notif:   n,
		advance: advance,
		log:     log,
		now:     time.Now,
	}
}

// Check runs one detection pass. A store read failure aborts the pass;
// per-reminder persistence failures are logged and the pass continues,
// so one broken row cannot starve the rest.
func (d *Detector) Check(ctx context.Context) error {
	now := d.now()

	due, err := d.store.FindDue(ctx, now, d.advance)
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	d.log.Debug("due reminders found", logx.Int("count", len(due)))

	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if Suppressed(r.LastNotified, now) {
			d.log.Debug("reminder suppressed by dedup window",
				logx.Int64("id", r.ID),
				logx.Time("last_notified", r.LastNotified))
			continue
		}

		delivered := d.notif.Send(ctx, notify.Request{
			Title:    "Reminder: " + r.Title,
			Message:  d.body(r, now),
			Priority: notify.PriorityHigh,
		})
		if !delivered {
			d.log.Warn("reminder delivery failed on all channels", logx.Int64("id", r.ID))
			continue
		}

		next := Advance(r, now)
		if err := d.store.SaveReminder(ctx, next); err != nil {
			d.log.Error("reminder state update failed",
				logx.Int64("id", r.ID),
				logx.Err(err))
			continue
		}
		if next.Active {
			d.log.Info("reminder rescheduled",
				logx.Int64("id", r.ID),
				logx.String("recurring", string(next.Recurring)),
				logx.Time("next", next.ScheduledAt))
		} else {
			d.log.Info("one-shot reminder completed", logx.Int64("id", r.ID))
		}
	}
	return nil
}

func (d *Detector) body(r store.Reminder, now time.Time) string {
	when := r.ScheduledAt.Format("15:04")
	if r.ScheduledAt.After(now) {
		in := r.ScheduledAt.Sub(now).Round(time.Minute)
		when = fmt.Sprintf("%s (in %s)", when, in)
	}
	if r.Description != "" {
		return fmt.Sprintf("%s\n\nScheduled for %s.", r.Description, when)
	}
	return fmt.Sprintf("Scheduled for %s.", when)
}
