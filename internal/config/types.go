package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminders RemindersConfig `json:"reminders"`
	Tasks     TasksConfig     `json:"tasks"`
	Market    MarketConfig    `json:"market"`

	Notifications NotificationsConfig `json:"notifications"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the sqlite persistence layer.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SchedulerConfig controls the job registry.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - max_instances: 1
//   - misfire_grace: "5m"
//   - coalesce: false
type SchedulerConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	Workers      int    `json:"workers,omitempty"`
	MaxInstances int    `json:"max_instances,omitempty"`
	MisfireGrace string `json:"misfire_grace,omitempty"`
	Coalesce     bool   `json:"coalesce,omitempty"`
}

// RemindersConfig controls the due-reminder detector.
type RemindersConfig struct {
	// CheckInterval is how often the detector scans for due reminders.
	// Defaults to "1m".
	CheckInterval string `json:"check_interval,omitempty"`
	// AdvanceMinutes is how far ahead of the scheduled time a reminder
	// is considered due. Defaults to 15.
	AdvanceMinutes int `json:"advance_minutes,omitempty"`
}

// TasksConfig controls the todo list housekeeping job.
type TasksConfig struct {
	// ArchiveAfterDays removes completed tasks older than this many days
	// during the nightly cleanup. Defaults to 30. Zero keeps the default;
	// use -1 to disable archiving.
	ArchiveAfterDays int `json:"archive_after_days,omitempty"`
}

// MarketConfig controls the market summary and live monitor jobs.
type MarketConfig struct {
	Enabled bool `json:"enabled"`

	// SummaryTime is the local HH:MM at which the daily summary fires.
	// Defaults to "07:00".
	SummaryTime string `json:"summary_time,omitempty"`

	// OpenHour/CloseHour bound the weekday live monitor window (24h clock).
	// Defaults: 9 and 15.
	OpenHour  int `json:"open_hour,omitempty"`
	CloseHour int `json:"close_hour,omitempty"`

	// IntervalMinutes is the live monitor cadence inside the window.
	// Defaults to 30.
	IntervalMinutes int `json:"interval_minutes,omitempty"`

	// Indices to track, e.g. ["SPX", "NDX"].
	Indices []string `json:"indices,omitempty"`

	// AlertMovePct escalates a live update when an index moved more than
	// this percentage since the previous snapshot. Defaults to 2.0.
	AlertMovePct float64 `json:"alert_move_pct,omitempty"`

	// SnapshotRetentionDays prunes stored snapshots during the nightly
	// cleanup. Defaults to 90.
	SnapshotRetentionDays int `json:"snapshot_retention_days,omitempty"`
}

// NotificationsConfig controls the fan-out dispatcher and its channels.
type NotificationsConfig struct {
	// RetryMax is the per-channel delivery attempt count. Defaults to 3.
	RetryMax int `json:"retry_max,omitempty"`
	// RatePerSec throttles outgoing sends across all channels.
	// Zero disables throttling.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Desktop  DesktopConfig  `json:"desktop"`
	Email    EmailConfig    `json:"email"`
	Telegram TelegramConfig `json:"telegram"`
}

type DesktopConfig struct {
	Enabled bool   `json:"enabled"`
	AppName string `json:"app_name,omitempty"`
}

type EmailConfig struct {
	Enabled    bool   `json:"enabled"`
	SMTPServer string `json:"smtp_server,omitempty"`
	SMTPPort   int    `json:"smtp_port,omitempty"`
	UseTLS     bool   `json:"use_tls"`
	Sender     string `json:"sender,omitempty"`
	Password   string `json:"password,omitempty"` // do not log
	Recipient  string `json:"recipient,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // do not log
	ChatID  int64  `json:"chat_id,omitempty"`
}

// Validate checks cross-field constraints that the strict decoder
// cannot express. It does not mutate the config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("scheduler.misfire_grace", c.Scheduler.MisfireGrace); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminders.check_interval", c.Reminders.CheckInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Reminders.AdvanceMinutes < 0 {
		return fmt.Errorf("reminders.advance_minutes: must be >= 0")
	}
	if st := strings.TrimSpace(c.Market.SummaryTime); st != "" {
		if err := validateHHMM("market.summary_time", st); err != nil {
			return err
		}
	}
	if c.Market.OpenHour < 0 || c.Market.OpenHour > 23 {
		return fmt.Errorf("market.open_hour: must be in [0,23]")
	}
	if c.Market.CloseHour < 0 || c.Market.CloseHour > 23 {
		return fmt.Errorf("market.close_hour: must be in [0,23]")
	}
	if c.Market.OpenHour != 0 && c.Market.CloseHour != 0 && c.Market.CloseHour < c.Market.OpenHour {
		return fmt.Errorf("market.close_hour: must not precede open_hour")
	}
	if c.Market.IntervalMinutes < 0 || c.Market.IntervalMinutes > 59 {
		return fmt.Errorf("market.interval_minutes: must be in [0,59]")
	}
	if c.Notifications.RetryMax < 0 {
		return fmt.Errorf("notifications.retry_max: must be >= 0")
	}
	return nil
}

func validateHHMM(path, s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return fmt.Errorf("%s: want HH:MM, got %q", path, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("%s: want HH:MM, got %q", path, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s: out of range %q", path, s)
	}
	return nil
}
