package sched

import (
	"context"
	"time"

	logx "daywatch/pkg/logx"
)

// maxWait bounds the idle sleep so clock adjustments and newly registered
// jobs are picked up even without an explicit wake.
const maxWait = time.Minute

func (r *Registry) loop(ctx context.Context, stopCh <-chan struct{}) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		r.fireDue(time.Now())

		wait := r.untilNext(time.Now())
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-r.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
	}
}

// untilNext returns how long to sleep before the earliest next-run.
func (r *Registry) untilNext(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	wait := maxWait
	for _, j := range r.jobs {
		if j.forceNow {
			return 0
		}
		if j.nextRun.IsZero() {
			continue
		}
		if d := j.nextRun.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// fireDue dispatches every job whose next-run has passed (or that was forced
// via RunJobNow), applying misfire grace, coalescing, and the per-job
// concurrency cap. Next-run times are recomputed here, at dispatch: a slow
// execution must not delay its own schedule, and the cap handles overlap.
func (r *Registry) fireDue(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return
	}

	for _, id := range r.order {
		j, ok := r.jobs[id]
		if !ok {
			continue
		}

		forced := j.forceNow
		if !forced && (j.nextRun.IsZero() || j.nextRun.After(now)) {
			continue
		}
		j.forceNow = false

		scheduled := j.nextRun
		if forced {
			scheduled = now
		}

		// A firing that is too late is dropped, not executed late.
		if !forced && now.Sub(scheduled) > j.cfg.MisfireGrace {
			r.log.Warn("firing misfired; skipping",
				logx.String("job", id),
				logx.Time("scheduled", scheduled),
				logx.Duration("late_by", now.Sub(scheduled)),
				logx.Duration("grace", j.cfg.MisfireGrace))
			r.publish("job.skipped", JobEvent{ID: id, Name: j.cfg.Name, At: now, Reason: "misfire"})
			r.recomputeLocked(j, scheduled, now)
			continue
		}

		if !j.sem.tryAcquire() {
			if j.cfg.Coalesce {
				r.log.Debug("firing coalesced: previous run still in flight", logx.String("job", id))
				r.publish("job.skipped", JobEvent{ID: id, Name: j.cfg.Name, At: now, Reason: "coalesced"})
			} else {
				r.log.Warn("firing dropped: max instances reached", logx.String("job", id),
					logx.Int("max_instances", j.cfg.MaxInstances))
				r.publish("job.skipped", JobEvent{ID: id, Name: j.cfg.Name, At: now, Reason: "max_instances"})
			}
			if !forced {
				r.recomputeLocked(j, scheduled, now)
			}
			continue
		}

		f := firing{
			id:        id,
			name:      j.cfg.Name,
			timeout:   j.cfg.Timeout,
			run:       j.run,
			scheduled: scheduled,
			release:   j.sem.release,
		}
		select {
		case r.queue <- f:
			j.lastFire = scheduled
			r.publish("job.fired", JobEvent{ID: id, Name: j.cfg.Name, At: now})
		default:
			j.sem.release()
			r.log.Warn("firing dropped: queue full", logx.String("job", id))
			r.publish("job.skipped", JobEvent{ID: id, Name: j.cfg.Name, At: now, Reason: "queue_full"})
		}
		if !forced {
			r.recomputeLocked(j, scheduled, now)
		}
	}
}

// recomputeLocked advances a job's next-run past the given scheduled time.
// With coalesce, missed occurrences between scheduled and now collapse into
// the first future one.
func (r *Registry) recomputeLocked(j *job, scheduled, now time.Time) {
	ref := scheduled
	if ref.IsZero() {
		ref = now
	}

	next, err := r.engine.NextFire(j.cfg.Spec, ref)
	if err != nil {
		r.log.Error("next-run recompute failed; job parked",
			logx.String("job", j.cfg.ID), logx.Err(err))
		j.nextRun = time.Time{}
		return
	}
	if j.cfg.Coalesce {
		// Bounded catch-up: collapse everything already in the past.
		for i := 0; i < 10000 && !next.After(now); i++ {
			next, err = r.engine.NextFire(j.cfg.Spec, next)
			if err != nil {
				r.log.Error("next-run recompute failed; job parked",
					logx.String("job", j.cfg.ID), logx.Err(err))
				j.nextRun = time.Time{}
				return
			}
		}
		if !next.After(now) {
			next = now.Add(time.Second)
		}
	}
	j.nextRun = next
}
