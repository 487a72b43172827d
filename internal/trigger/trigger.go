// Package trigger computes fire times for job schedules.
//
// The engine is pure: given a spec and a reference instant it returns the next
// instant the spec matches, always strictly after the reference. It never
// sleeps, never stores state; the scheduler owns last-fire bookkeeping and
// passes the right reference in.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnsatisfiable is returned when a spec has no matching instant within the
// bounded search horizon (e.g. "0 0 31 2 *"). The cron library scans roughly
// five years ahead before giving up; an interval spec can never hit this.
var ErrUnsatisfiable = errors.New("trigger unsatisfiable: no matching instant within search horizon")

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// Spec declares when a job should fire: either a 5-field cron expression
// (minute, hour, day-of-month, month, day-of-week; ranges like "9-15" and
// steps like "*/30" supported) or a fixed interval period.
type Spec struct {
	Kind  Kind
	Cron  string
	Every time.Duration
}

// Cron returns a cron spec.
func Cron(expr string) Spec { return Spec{Kind: KindCron, Cron: expr} }

// Every returns an interval spec with the given period.
func Every(period time.Duration) Spec { return Spec{Kind: KindInterval, Every: period} }

// Daily returns a cron spec firing once a day at hh:mm.
func Daily(hour, minute int) Spec {
	return Cron(fmt.Sprintf("%d %d * * *", minute, hour))
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

// Engine evaluates specs in a fixed timezone.
type Engine struct {
	parser cron.Parser
	loc    *time.Location
}

func New(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:    loc,
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Validate reports whether the spec can ever be scheduled. A bad cron
// expression or non-positive interval is fatal at registration time.
func (e *Engine) Validate(spec Spec) error {
	switch spec.Kind {
	case KindCron:
		if strings.TrimSpace(spec.Cron) == "" {
			return errors.New("cron expression required")
		}
		if _, err := e.parser.Parse(spec.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec.Cron, err)
		}
		return nil
	case KindInterval:
		if spec.Every <= 0 {
			return errors.New("interval must be > 0")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %d", int(spec.Kind))
	}
}

// NextFire returns the earliest instant strictly after ref that satisfies the
// spec.
//
// For interval specs the reference is the last fire time (next = last + period);
// a scheduler with no recorded prior fire passes "now" and gets now + period.
// For cron specs the expression is evaluated in the engine's timezone.
func (e *Engine) NextFire(spec Spec, ref time.Time) (time.Time, error) {
	switch spec.Kind {
	case KindInterval:
		if spec.Every <= 0 {
			return time.Time{}, errors.New("interval must be > 0")
		}
		return ref.Add(spec.Every), nil
	case KindCron:
		sched, err := e.parser.Parse(spec.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", spec.Cron, err)
		}
		next := sched.Next(ref.In(e.loc))
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnsatisfiable, spec.Cron)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown trigger kind %d", int(spec.Kind))
	}
}
