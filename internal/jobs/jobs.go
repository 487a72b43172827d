// Package jobs wires the scheduled job bodies to the registry: the
// morning digest, the intraday market monitor, the due-reminder check,
// and the nightly cleanup.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"daywatch/internal/config"
	"daywatch/internal/market"
	"daywatch/internal/notify"
	"daywatch/internal/reminder"
	"daywatch/internal/sched"
	"daywatch/internal/todo"
	"daywatch/internal/trigger"
	logx "daywatch/pkg/logx"
)

// Job IDs, stable across restarts so RunJobNow and logs line up.
const (
	IDDailySummary  = "daily_summary"
	IDMarketMonitor = "market_monitor"
	IDReminderCheck = "reminder_check"
	IDCleanup       = "nightly_cleanup"
)

// Deps carries everything the job bodies need. All fields are owned by
// the caller; nothing here is a global.
type Deps struct {
	Settings config.Settings
	Todo     *todo.Service
	Market   *market.Service
	Detector *reminder.Detector
	Notifier *notify.Dispatcher
	Log      logx.Logger
}

// RegisterAll registers the standard job set. The reminder check and
// cleanup are always on; market jobs follow the market.enabled flag.
func RegisterAll(reg *sched.Registry, d Deps) error {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	hour, minute, err := trigger.ParseHHMM(d.Settings.MarketSummaryTime)
	if err != nil {
		return fmt.Errorf("summary time: %w", err)
	}
	if err := reg.Register(sched.JobConfig{
		ID:       IDDailySummary,
		Name:     "morning digest",
		Spec:     trigger.Daily(hour, minute),
		Coalesce: true,
		Timeout:  2 * time.Minute,
	}, dailySummary(d, log)); err != nil {
		return fmt.Errorf("register %s: %w", IDDailySummary, err)
	}

	if d.Settings.MarketEnabled {
		if err := reg.Register(sched.JobConfig{
			ID:       IDMarketMonitor,
			Name:     "market monitor",
			Spec:     trigger.Cron(monitorCron(d.Settings)),
			Coalesce: true,
			Timeout:  time.Minute,
		}, marketMonitor(d, log)); err != nil {
			return fmt.Errorf("register %s: %w", IDMarketMonitor, err)
		}
	}

	if err := reg.Register(sched.JobConfig{
		ID:       IDReminderCheck,
		Name:     "reminder check",
		Spec:     trigger.Every(d.Settings.ReminderCheckInterval),
		Coalesce: true,
		Timeout:  30 * time.Second,
	}, func(ctx context.Context) error {
		return d.Detector.Check(ctx)
	}); err != nil {
		return fmt.Errorf("register %s: %w", IDReminderCheck, err)
	}

	if err := reg.Register(sched.JobConfig{
		ID:       IDCleanup,
		Name:     "nightly cleanup",
		Spec:     trigger.Daily(0, 0),
		Coalesce: true,
		Timeout:  5 * time.Minute,
	}, cleanup(d, log)); err != nil {
		return fmt.Errorf("register %s: %w", IDCleanup, err)
	}
	return nil
}

// monitorCron builds the intraday monitor schedule, e.g.
// "*/30 9-15 * * 1-5" for a 30-minute cadence in trading hours.
func monitorCron(s config.Settings) string {
	return fmt.Sprintf("*/%d %d-%d * * 1-5", s.MarketIntervalMinutes, s.MarketOpenHour, s.MarketCloseHour)
}

func dailySummary(d Deps, log logx.Logger) sched.JobFunc {
	return func(ctx context.Context) error {
		now := time.Now().In(d.Settings.Location)

		var sections []string
		if d.Settings.MarketEnabled {
			mkt, err := d.Market.Summary(ctx, now)
			if err != nil {
				// The digest still goes out with whatever sections survived.
				log.Error("market summary failed", logx.Err(err))
			} else {
				sections = append(sections, mkt)
			}
		}
		tasks, err := d.Todo.Summary(ctx, now)
		if err != nil {
			log.Error("task summary failed", logx.Err(err))
		} else {
			sections = append(sections, tasks)
		}
		if len(sections) == 0 {
			return fmt.Errorf("no digest sections available")
		}

		d.Notifier.Send(ctx, notify.Request{
			Title:    "Good morning — " + now.Format("Monday, Jan 2"),
			Message:  strings.Join(sections, "\n\n"),
			Priority: notify.PriorityNormal,
		})
		return nil
	}
}

func marketMonitor(d Deps, log logx.Logger) sched.JobFunc {
	return func(ctx context.Context) error {
		now := time.Now().In(d.Settings.Location)

		text, alert, err := d.Market.LiveUpdate(ctx, now)
		if err != nil {
			return err
		}

		req := notify.Request{
			Title:    "Market update",
			Message:  text,
			Priority: notify.PriorityLow,
			// Routine updates stay on the desktop; alerts fan out everywhere.
			Channels: []string{"desktop"},
		}
		if alert {
			req.Title = "Market alert"
			req.Priority = notify.PriorityHigh
			req.Channels = nil
		}
		d.Notifier.Send(ctx, req)
		return nil
	}
}

func cleanup(d Deps, log logx.Logger) sched.JobFunc {
	return func(ctx context.Context) error {
		now := time.Now().In(d.Settings.Location)

		archived, err := d.Todo.Archive(ctx, now, d.Settings.TaskArchiveAfter)
		if err != nil {
			log.Error("task archive failed", logx.Err(err))
		}
		pruned, err := d.Market.Prune(ctx, now, d.Settings.SnapshotRetention)
		if err != nil {
			log.Error("snapshot prune failed", logx.Err(err))
		}
		log.Info("nightly cleanup done",
			logx.Int64("tasks_archived", archived),
			logx.Int64("snapshots_pruned", pruned))
		return nil
	}
}
