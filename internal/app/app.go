// Package app assembles the daywatch services: config, logging, store,
// notification fan-out, the job registry and the standard job set.
// Everything is owned explicitly by the App; there are no package-level
// singletons.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"daywatch/internal/config"
	"daywatch/internal/eventbus"
	"daywatch/internal/jobs"
	"daywatch/internal/market"
	"daywatch/internal/notify"
	"daywatch/internal/reminder"
	"daywatch/internal/sched"
	"daywatch/internal/store"
	"daywatch/internal/todo"
	"daywatch/internal/trigger"
	logx "daywatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	logs *logx.Service
	log  logx.Logger

	store *store.Store
	bus   eventbus.Bus
	reg   *sched.Registry
	notif *notify.Dispatcher
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings := cfg.Resolve()

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	st, err := store.Open(store.Config{
		Path:        settings.StoragePath,
		BusyTimeout: settings.StorageBusyTimeout,
	}, logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := eventbus.New()

	channels := buildChannels(cfg, logs.Logger())
	notif := notify.NewDispatcher(channels, notify.Options{
		Retry:      settings.NotifyRetryMax,
		RatePerSec: settings.NotifyRatePerSec,
	}, logs.Logger().With(logx.String("comp", "notify")), bus)

	engine := trigger.New(settings.Location)
	reg := sched.New(engine, sched.Defaults{
		MaxInstances: settings.MaxInstances,
		Coalesce:     settings.Coalesce,
		MisfireGrace: settings.MisfireGrace,
	}, settings.Workers, logs.Logger().With(logx.String("comp", "sched")), bus)

	detector := reminder.NewDetector(st, notif, settings.ReminderAdvance,
		logs.Logger().With(logx.String("comp", "reminder")))
	todoSvc := todo.New(st, logs.Logger().With(logx.String("comp", "todo")))
	mktSvc := market.NewService(market.NewDemoSource(), st,
		settings.MarketIndices, settings.MarketAlertMovePct,
		logs.Logger().With(logx.String("comp", "market")))

	if err := jobs.RegisterAll(reg, jobs.Deps{
		Settings: settings,
		Todo:     todoSvc,
		Market:   mktSvc,
		Detector: detector,
		Notifier: notif,
		Log:      logs.Logger().With(logx.String("comp", "jobs")),
	}); err != nil {
		_ = st.Close()
		logs.Close()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		store:   st,
		bus:     bus,
		reg:     reg,
		notif:   notif,
	}, nil
}

func buildChannels(cfg *config.Config, log logx.Logger) []notify.Channel {
	n := cfg.Notifications
	return []notify.Channel{
		notify.NewDesktopChannel(notify.DesktopConfig{
			Enabled: n.Desktop.Enabled,
			AppName: n.Desktop.AppName,
		}, log.With(logx.String("comp", "notify.desktop"))),
		notify.NewEmailChannel(notify.EmailConfig{
			Enabled:    n.Email.Enabled,
			SMTPServer: n.Email.SMTPServer,
			SMTPPort:   n.Email.SMTPPort,
			UseTLS:     n.Email.UseTLS,
			Sender:     n.Email.Sender,
			Password:   n.Email.Password,
			Recipient:  n.Email.Recipient,
		}, log.With(logx.String("comp", "notify.email"))),
		notify.NewTelegramChannel(notify.TelegramConfig{
			Enabled: n.Telegram.Enabled,
			Token:   n.Telegram.Token,
			ChatID:  n.Telegram.ChatID,
		}, log.With(logx.String("comp", "notify.telegram"))),
	}
}

// Registry exposes the job registry for on-demand runs (and tests).
func (a *App) Registry() *sched.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.reg.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("daywatch started",
		logx.String("config", a.cfgPath),
		logx.Int("jobs", len(a.reg.Jobs())))
	return nil
}

// applyReload applies what can change at runtime (logging) and reports
// the rest. Scheduler and channel topology changes need a restart; the
// summary makes that visible instead of silently half-applying.
func (a *App) applyReload(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", newCfg.Logging.Level))
		default:
			a.log.Warn("config section changed; restart required to apply",
				logx.String("section", s))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.log.Info("daywatch stopping")
	a.reg.Stop()

	var err error
	if a.sup != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = a.sup.Stop(stopCtx)
		cancel()
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.logs.Close()
	return err
}
