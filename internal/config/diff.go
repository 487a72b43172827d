package config

import (
	"reflect"
	"sort"
	"strings"

	logx "daywatch/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (email password, telegram
// token) are reduced to set/unset booleans.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.max_instances", newCfg.Scheduler.MaxInstances),
			logx.String("scheduler.misfire_grace", strings.TrimSpace(newCfg.Scheduler.MisfireGrace)),
			logx.Bool("scheduler.coalesce", newCfg.Scheduler.Coalesce),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.check_interval", strings.TrimSpace(newCfg.Reminders.CheckInterval)),
			logx.Int("reminders.advance_minutes", newCfg.Reminders.AdvanceMinutes),
		)
	}

	if !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.archive_after_days", newCfg.Tasks.ArchiveAfterDays),
		)
	}

	if !reflect.DeepEqual(oldCfg.Market, newCfg.Market) {
		changed = append(changed, "market")
		attrs = append(attrs,
			logx.Bool("market.enabled", newCfg.Market.Enabled),
			logx.String("market.summary_time", strings.TrimSpace(newCfg.Market.SummaryTime)),
			logx.Int("market.open_hour", newCfg.Market.OpenHour),
			logx.Int("market.close_hour", newCfg.Market.CloseHour),
			logx.Int("market.interval_minutes", newCfg.Market.IntervalMinutes),
			logx.Int("market.index_count", len(newCfg.Market.Indices)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifications, newCfg.Notifications) {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.Int("notify.retry_max", newCfg.Notifications.RetryMax),
			logx.Int("notify.rate_per_sec", newCfg.Notifications.RatePerSec),
			logx.Bool("notify.desktop_enabled", newCfg.Notifications.Desktop.Enabled),
			logx.Bool("notify.email_enabled", newCfg.Notifications.Email.Enabled),
			logx.Bool("notify.email_password_set", strings.TrimSpace(newCfg.Notifications.Email.Password) != ""),
			logx.Bool("notify.telegram_enabled", newCfg.Notifications.Telegram.Enabled),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(newCfg.Notifications.Telegram.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
