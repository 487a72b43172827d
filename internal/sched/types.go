package sched

import (
	"context"
	"errors"
	"time"

	"daywatch/internal/trigger"
)

var (
	ErrStopped           = errors.New("registry stopped; construct a new one")
	ErrAlreadyRegistered = errors.New("job id already registered")
)

// State is the registry lifecycle. Stopped is terminal: a stopped registry
// must be re-constructed, not restarted in place.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// JobFunc is a job body. It must respect ctx cancellation; errors are logged
// at the firing boundary and never stop the loop.
type JobFunc func(ctx context.Context) error

// Defaults are applied to registrations that leave the corresponding
// JobConfig field zero.
type Defaults struct {
	MaxInstances int
	Coalesce     bool
	MisfireGrace time.Duration
}

// JobConfig describes one registered job.
type JobConfig struct {
	ID   string
	Name string
	Spec trigger.Spec

	// MaxInstances caps concurrent executions of this job id (queued firings
	// count against the cap). 0 means the registry default.
	MaxInstances int

	// Coalesce collapses a firing that arrives while the cap is saturated
	// into a no-op instead of dropping it with a warning.
	Coalesce bool

	// MisfireGrace is how late a firing may run before it is skipped.
	// 0 means the registry default.
	MisfireGrace time.Duration

	// Timeout bounds a single execution. 0 disables the per-run timeout.
	Timeout time.Duration

	// ReplaceExisting atomically swaps an existing registration with the
	// same ID instead of failing.
	ReplaceExisting bool
}

// JobInfo is a read-only snapshot of a registered job.
type JobInfo struct {
	ID       string
	Name     string
	Spec     string
	NextRun  time.Time
	LastFire time.Time
	Running  int
}

// job is the registry's mutable record. All fields are guarded by the
// registry mutex except sem, which is internally synchronized.
type job struct {
	cfg JobConfig
	run JobFunc

	nextRun  time.Time
	lastFire time.Time
	forceNow bool

	sem *semaphore
}

// firing is a dispatched execution handed to the worker pool.
type firing struct {
	id        string
	name      string
	timeout   time.Duration
	run       JobFunc
	scheduled time.Time
	release   func()
}

// JobEvent is published on the event bus for job lifecycle events.
type JobEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
}
