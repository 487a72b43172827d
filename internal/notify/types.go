package notify

import (
	"context"
	"time"
)

// Priority is a notification priority level.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Request is one logical notification. It is transient: it exists only for
// the duration of a dispatch call and is never persisted.
type Request struct {
	Title    string
	Message  string
	Priority Priority

	// Channels is an optional allow-list of channel identities
	// (case-insensitive). Empty means all registered channels.
	Channels []string
}

// Channel is a delivery transport. Implementations own their credentials and
// must enforce their own send timeout; a hanging Send blocks the dispatching
// job for its duration.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, title, message string, prio Priority) error
}

// Event is published on the event bus for notification outcomes.
type Event struct {
	Title    string    `json:"title"`
	Channel  string    `json:"channel,omitempty"`
	Priority Priority  `json:"priority"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
