// Package app wires configuration, storage, the planner, and the transports
// into one process with a Start/Stop lifecycle.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/httpapi"
	"dayplan/internal/jobs"
	"dayplan/internal/notify"
	"dayplan/internal/planner"
	"dayplan/internal/storage"
	"dayplan/internal/transport/telegram"
	logx "dayplan/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager

	logs *logx.Service
	log  logx.Logger

	store *storage.Store
	plan  *planner.Service

	bot   *telegram.Bot
	queue *notify.Service
	api   *httpapi.Server
	jobs  *jobs.Service

	wg sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, logs: logs, log: log}

	// windowFn reads the live config, so planner settings hot-reload without
	// restarting any service.
	windowFn := func() planner.Window {
		c := cfgm.Get()
		if c == nil {
			return planner.DefaultWindow()
		}
		start, end, minGap := c.Planner.EffectiveWindow()
		return planner.Window{
			StartHour:     start,
			EndHour:       end,
			MinGapMinutes: minGap,
			Location:      c.Planner.Location(),
		}
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.store = store

	a.plan = planner.New(store, windowFn, logs.Logger().With(logx.String("comp", "planner")))

	if cfg.Telegram.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		bot, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, store, a.plan, windowFn, logs.Logger().With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.bot = bot
		a.queue = notify.New(notify.Config{
			RatePerSec: cfg.Notifier.RatePerSec,
			QueueSize:  cfg.Notifier.QueueSize,
		}, bot, logs.Logger().With(logx.String("comp", "notify")))
		bot.SetQueue(a.queue)
	}

	if cfg.HTTP.Enabled {
		tokenTTL, err := config.ParseDurationOrDefault("http.token_ttl", cfg.HTTP.TokenTTL, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		a.api = httpapi.NewServer(httpapi.Config{
			Addr:        cfg.HTTP.Addr,
			JWTSecret:   cfg.HTTP.JWTSecret,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			TokenTTL:    tokenTTL,
		}, store, a.plan, windowFn, logs.Logger().With(logx.String("comp", "http")))
	}

	// Jobs only make sense with an outbound channel.
	if cfg.Jobs.Enabled && a.queue != nil {
		a.jobs = jobs.New(jobs.Config{
			DailyPlan:    cfg.Jobs.DailyPlan,
			GapReminders: cfg.Jobs.GapReminders,
			Overdue:      cfg.Jobs.Overdue,
			AutoPlan:     cfg.Jobs.AutoPlan,
		}, store, a.plan, a.queue, windowFn, logs.Logger().With(logx.String("comp", "jobs")))
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()

	if a.queue != nil {
		a.queue.Start(ctx)
	}
	if a.bot != nil {
		a.bot.Start(ctx)
	}
	if a.jobs != nil {
		if err := a.jobs.Start(ctx); err != nil {
			return err
		}
	}
	if a.api != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.api.Start(); err != nil {
				a.log.Error("http server failed", logx.Any("err", err))
			}
		}()
	}

	// Hot-reload fan-out: logging and notifier pick up config changes live;
	// the planner window is read per invocation and needs no push.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				if a.queue != nil {
					a.queue.Apply(notify.Config{
						RatePerSec: newCfg.Notifier.RatePerSec,
						QueueSize:  newCfg.Notifier.QueueSize,
					})
				}
				if len(sections) > 0 {
					a.log.Info("config reloaded",
						append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
				}
			}
		}
	}()

	a.log.Info("started")
	return nil
}

// Stop shuts services down in reverse dependency order: intake first, then
// the outbound queue (so pending replies drain), then storage.
func (a *App) Stop(ctx context.Context) error {
	if a.api != nil {
		if err := a.api.Shutdown(ctx); err != nil {
			a.log.Warn("http shutdown", logx.Any("err", err))
		}
	}
	if a.jobs != nil {
		a.jobs.Stop(ctx)
	}
	if a.bot != nil {
		a.bot.Stop(ctx)
	}
	if a.queue != nil {
		a.queue.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Any("err", err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
