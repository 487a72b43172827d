// Package sched owns the job registry: named jobs bound to triggers, a
// background firing loop, and a small worker pool that executes job bodies
// with per-job concurrency caps.
package sched

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"daywatch/internal/eventbus"
	"daywatch/internal/trigger"
	logx "daywatch/pkg/logx"
)

type Registry struct {
	mu sync.Mutex

	log      logx.Logger
	bus      eventbus.Bus
	engine   *trigger.Engine
	defaults Defaults

	state State
	jobs  map[string]*job
	order []string // registration order, for stable snapshots

	queue  chan firing
	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	workers int
}

// New builds an idle registry. Pass the trigger engine and registry-wide job
// defaults explicitly; there is no package-level instance.
func New(engine *trigger.Engine, defaults Defaults, workers int, log logx.Logger, bus eventbus.Bus) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaults.MaxInstances <= 0 {
		defaults.MaxInstances = 1
	}
	if defaults.MisfireGrace <= 0 {
		defaults.MisfireGrace = 5 * time.Minute
	}
	if workers <= 0 {
		workers = 2
	}
	return &Registry{
		log:      log,
		bus:      bus,
		engine:   engine,
		defaults: defaults,
		jobs:     map[string]*job{},
		wake:     make(chan struct{}, 1),
		workers:  workers,
	}
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Register adds a job. A bad trigger spec is fatal here, before the job ever
// enters the table. Re-registering an existing id requires ReplaceExisting;
// the swap is atomic and the firing loop keeps running throughout.
func (r *Registry) Register(cfg JobConfig, fn JobFunc) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("job id required")
	}
	if fn == nil {
		return fmt.Errorf("job %s: callable required", cfg.ID)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = r.defaults.MaxInstances
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = r.defaults.MisfireGrace
	}
	if !cfg.Coalesce {
		cfg.Coalesce = r.defaults.Coalesce
	}
	if err := r.engine.Validate(cfg.Spec); err != nil {
		return fmt.Errorf("job %s: %w", cfg.ID, err)
	}
	// Unsatisfiable specs are fatal at registration, not at first fire.
	if _, err := r.engine.NextFire(cfg.Spec, time.Now()); err != nil {
		return fmt.Errorf("job %s: %w", cfg.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateStopped {
		return ErrStopped
	}

	prev, exists := r.jobs[cfg.ID]
	if exists && !cfg.ReplaceExisting {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, cfg.ID)
	}

	j := &job{cfg: cfg, run: fn}
	if exists && prev.sem != nil && prev.sem.limit == cfg.MaxInstances {
		// Keep the live semaphore so in-flight runs stay counted.
		j.sem = prev.sem
	} else {
		j.sem = newSemaphore(cfg.MaxInstances)
	}
	if !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.jobs[cfg.ID] = j

	if r.state == StateRunning {
		next, err := r.engine.NextFire(cfg.Spec, time.Now())
		if err != nil {
			delete(r.jobs, cfg.ID)
			return fmt.Errorf("job %s: %w", cfg.ID, err)
		}
		j.nextRun = next
		r.wakeLocked()
	}

	r.log.Info("job registered",
		logx.String("job", cfg.ID),
		logx.String("spec", cfg.Spec.String()),
		logx.Int("max_instances", cfg.MaxInstances),
		logx.Bool("replaced", exists))
	return nil
}

// Unregister removes a job. In-flight executions finish normally.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.wakeLocked()
	r.log.Info("job unregistered", logx.String("job", id))
	return true
}

// Start transitions idle -> running, computes the initial next-run for every
// registered job, and begins the firing loop. Starting a running registry is
// a logged no-op; starting a stopped one is an error.
func (r *Registry) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	switch r.state {
	case StateRunning:
		r.mu.Unlock()
		r.log.Warn("registry already running; start ignored")
		return nil
	case StateStopped:
		r.mu.Unlock()
		return ErrStopped
	}

	now := time.Now()
	for id, j := range r.jobs {
		next, err := r.engine.NextFire(j.cfg.Spec, now)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("job %s: %w", id, err)
		}
		j.nextRun = next
	}

	r.state = StateRunning
	r.stopCh = make(chan struct{})
	r.queue = make(chan firing, 64)
	queue := r.queue
	stopCh := r.stopCh
	workers := r.workers
	n := len(r.jobs)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, stopCh)
	}()
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.worker(ctx, stopCh, queue)
		}()
	}

	r.log.Info("registry started", logx.Int("jobs", n), logx.Int("workers", workers),
		logx.String("tz", r.engine.Location().String()))
	return nil
}

// Stop transitions running -> stopped and blocks until all in-flight job
// executions complete. It is idempotent on an already-stopped registry.
// Cancellation is cooperative: a stuck callable is waited for, not killed.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	prev := r.state
	r.state = StateStopped
	stopCh := r.stopCh
	r.stopCh = nil
	r.mu.Unlock()

	if prev == StateIdle {
		r.log.Info("registry stopped (never started)")
		return
	}

	start := time.Now()
	if stopCh != nil {
		close(stopCh)
	}
	r.wg.Wait()
	r.log.Info("registry stopped", logx.Duration("took", time.Since(start)))
}

// RunJobNow forces the named job's next firing to "immediately", bypassing
// its trigger and misfire grace. It returns false, never an error, when the
// id is unknown or the registry is not running.
func (r *Registry) RunJobNow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		r.log.Warn("run-now refused: registry not running", logx.String("job", id))
		return false
	}
	j, ok := r.jobs[id]
	if !ok {
		r.log.Warn("run-now refused: unknown job", logx.String("job", id))
		return false
	}
	j.forceNow = true
	r.wakeLocked()
	r.log.Info("job triggered manually", logx.String("job", id))
	return true
}

// Jobs returns a snapshot of registered jobs in registration order. The
// slice and its elements are copies; mutating them does not touch the table.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobInfo, 0, len(r.order))
	for _, id := range r.order {
		j, ok := r.jobs[id]
		if !ok {
			continue
		}
		out = append(out, JobInfo{
			ID:       j.cfg.ID,
			Name:     j.cfg.Name,
			Spec:     j.cfg.Spec.String(),
			NextRun:  j.nextRun,
			LastFire: j.lastFire,
			Running:  j.sem.inUse(),
		})
	}
	return out
}

func (r *Registry) wakeLocked() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) publish(typ string, ev JobEvent) {
	if r.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
