package store

import "time"

// RecurringType selects how a reminder reschedules itself after firing.
// The empty string means one-shot.
type RecurringType string

const (
	RecurNone    RecurringType = ""
	RecurDaily   RecurringType = "daily"
	RecurWeekly  RecurringType = "weekly"
	RecurMonthly RecurringType = "monthly"
)

func (r RecurringType) Valid() bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly, RecurMonthly:
		return true
	default:
		return false
	}
}

// Reminder is a user reminder. A one-shot reminder is deactivated after its
// single notification; a recurring one has ScheduledAt advanced instead.
// LastNotified is the zero time when the reminder has never fired.
type Reminder struct {
	ID           int64
	Title        string
	Description  string
	ScheduledAt  time.Time
	Recurring    RecurringType
	Active       bool
	CreatedAt    time.Time
	LastNotified time.Time
}

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a to-do item.
type Task struct {
	ID          int64
	Title       string
	Description string
	DueAt       time.Time // zero = no due date
	Priority    string    // low | medium | high
	Completed   bool
	CreatedAt   time.Time
	CompletedAt time.Time
}

// MarketSnapshot records one observed index value for historical tracking.
type MarketSnapshot struct {
	ID            int64
	IndexName     string
	IndexSymbol   string
	Value         float64
	Change        float64
	ChangePercent float64
	TakenAt       time.Time
}
