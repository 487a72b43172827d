package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "daywatch/pkg/logx"
)

func (r *Registry) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan firing) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f, ok := <-queue:
			if !ok {
				return
			}
			r.execOne(ctx, f)
		}
	}
}

// execOne runs a single firing. Job errors and panics are contained here:
// they are logged with job id and stack context and never reach the loop or
// other jobs.
func (r *Registry) execOne(ctx context.Context, f firing) {
	defer f.release()

	start := time.Now()
	runCtx := ctx
	var cancel func()
	if f.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
				r.log.Error("job panicked",
					logx.String("job", f.id),
					logx.Any("panic", rec),
					logx.Stack(string(debug.Stack())))
			}
		}()
		err = f.run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	if err != nil {
		r.log.Warn("job failed", logx.String("job", f.id), logx.Err(err), logx.Duration("dur", dur))
		r.publish("job.failed", JobEvent{ID: f.id, Name: f.name, At: start, Duration: dur, Error: err.Error()})
		return
	}
	r.log.Debug("job completed", logx.String("job", f.id), logx.Duration("dur", dur))
	r.publish("job.completed", JobEvent{ID: f.id, Name: f.name, At: start, Duration: dur})
}
