package config

import (
	"strings"
	"time"
)

// Effective runtime settings after defaults are applied. Keeping this
// apart from Config means the raw file round-trips unchanged while the
// rest of the program never has to re-check for zero values.
type Settings struct {
	Location     *time.Location
	Workers      int
	MaxInstances int
	MisfireGrace time.Duration
	Coalesce     bool

	ReminderCheckInterval time.Duration
	ReminderAdvance       time.Duration

	TaskArchiveAfter time.Duration

	MarketEnabled         bool
	MarketSummaryTime     string
	MarketOpenHour        int
	MarketCloseHour       int
	MarketIntervalMinutes int
	MarketIndices         []string
	MarketAlertMovePct    float64
	SnapshotRetention     time.Duration

	NotifyRetryMax   int
	NotifyRatePerSec int

	StoragePath        string
	StorageBusyTimeout time.Duration
}

// Resolve applies defaults on top of the parsed config. Validate is
// expected to have passed already; malformed durations fall back to
// their defaults here.
func (c *Config) Resolve() Settings {
	s := Settings{
		Location:              time.Local,
		Workers:               2,
		MaxInstances:          1,
		MisfireGrace:          5 * time.Minute,
		MarketEnabled:         c.Market.Enabled,
		Coalesce:              c.Scheduler.Coalesce,
		ReminderCheckInterval: time.Minute,
		ReminderAdvance:       15 * time.Minute,
		TaskArchiveAfter:      30 * 24 * time.Hour,
		MarketSummaryTime:     "07:00",
		MarketOpenHour:        9,
		MarketCloseHour:       15,
		MarketIntervalMinutes: 30,
		MarketAlertMovePct:    2.0,
		SnapshotRetention:     90 * 24 * time.Hour,
		NotifyRetryMax:        3,
		NotifyRatePerSec:      c.Notifications.RatePerSec,
		StoragePath:           "./daywatch.db",
		StorageBusyTimeout:    5 * time.Second,
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			s.Location = loc
		}
	}
	if c.Scheduler.Workers > 0 {
		s.Workers = c.Scheduler.Workers
	}
	if c.Scheduler.MaxInstances > 0 {
		s.MaxInstances = c.Scheduler.MaxInstances
	}
	if d, err := ParseDurationOrDefault("scheduler.misfire_grace", c.Scheduler.MisfireGrace, s.MisfireGrace); err == nil {
		s.MisfireGrace = d
	}
	if d, err := ParseDurationOrDefault("reminders.check_interval", c.Reminders.CheckInterval, s.ReminderCheckInterval); err == nil {
		s.ReminderCheckInterval = d
	}
	if c.Reminders.AdvanceMinutes > 0 {
		s.ReminderAdvance = time.Duration(c.Reminders.AdvanceMinutes) * time.Minute
	}
	switch {
	case c.Tasks.ArchiveAfterDays > 0:
		s.TaskArchiveAfter = time.Duration(c.Tasks.ArchiveAfterDays) * 24 * time.Hour
	case c.Tasks.ArchiveAfterDays < 0:
		s.TaskArchiveAfter = 0
	}
	if st := strings.TrimSpace(c.Market.SummaryTime); st != "" {
		s.MarketSummaryTime = st
	}
	if c.Market.OpenHour > 0 {
		s.MarketOpenHour = c.Market.OpenHour
	}
	if c.Market.CloseHour > 0 {
		s.MarketCloseHour = c.Market.CloseHour
	}
	if c.Market.IntervalMinutes > 0 {
		s.MarketIntervalMinutes = c.Market.IntervalMinutes
	}
	if len(c.Market.Indices) > 0 {
		s.MarketIndices = append([]string(nil), c.Market.Indices...)
	}
	if c.Market.AlertMovePct > 0 {
		s.MarketAlertMovePct = c.Market.AlertMovePct
	}
	if c.Market.SnapshotRetentionDays > 0 {
		s.SnapshotRetention = time.Duration(c.Market.SnapshotRetentionDays) * 24 * time.Hour
	}
	if c.Notifications.RetryMax > 0 {
		s.NotifyRetryMax = c.Notifications.RetryMax
	}
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		s.StoragePath = p
	}
	if d, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, s.StorageBusyTimeout); err == nil {
		s.StorageBusyTimeout = d
	}
	return s
}
