// Package app wires the roster relay and its supporting services.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rosterbot/internal/config"
	"rosterbot/internal/decorate"
	"rosterbot/internal/eventbus"
	"rosterbot/internal/notifier"
	"rosterbot/internal/observability/ops"
	"rosterbot/internal/relay"
	"rosterbot/internal/relay/pgrelay"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	telegram "rosterbot/internal/transport/telegram/adapter"
	logx "rosterbot/pkg/logx"
	"rosterbot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	store   storage.Store
	adapter *telegram.Adapter
	relay   *relay.Supervisor
	deco    *decorate.Decorator
	alerts  *notifier.Service
	ops     *ops.Server
	cron    *cron.Cron

	sup      *rtsup.Supervisor
	updates  chan kit.Update
	stopOnce sync.Once
}

// New loads the config and builds every component. Nothing runs until
// Start. Missing required settings fail here.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	ad, err := telegram.New(mapTelegram(cfg), log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	store, err := storage.Open(mapStorage(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	fail := func(err error) (*App, error) {
		if store != nil {
			_ = store.Close()
		}
		_ = logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	dialer := pgrelay.NewDialer(mapDatabase(cfg), log.With(logx.String("comp", "postgres")))
	rs := relay.NewSupervisor(mapRelay(cfg), dialer, ad,
		log.With(logx.String("comp", "relay")), relay.WithBus(bus))

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     bus,
		store:   store,
		adapter: ad,
		relay:   rs,
		deco:    decorate.New(cfg.Decorate, nil),
		alerts:  notifier.New(mapAlerts(cfg), ad, log.With(logx.String("comp", "alerts"))),
		updates: make(chan kit.Update, cfg.Telegram.UpdateBuffer),
	}

	if s := strings.TrimSpace(cfg.Status.Schedule); s != "" {
		c, err := newStatusCron(s, statusJob(rs, bus.Dropped, a.log), log.With(logx.String("comp", "status")))
		if err != nil {
			return fail(fmt.Errorf("status.schedule: %w", err))
		}
		a.cron = c
	}
	if cfg.Ops.Enabled {
		opts := []ops.Option{ops.WithTasks(a.tasks), ops.WithBusDropped(bus.Dropped)}
		if store != nil {
			opts = append(opts, ops.WithStore(store))
		}
		a.ops = ops.New(mapOps(cfg), rs, log.With(logx.String("comp", "ops")), opts...)
		if err := a.ops.CheckBind(); err != nil {
			return fail(err)
		}
	}
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) tasks() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if s := a.adapter.Supervisor(); s != nil {
		out["telegram"] = s.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// The relay supervisor only returns when the context ends.
	a.sup.Go("relay", a.relay.Run)

	a.sup.Go("decorate", func(c context.Context) error {
		return a.deco.Serve(c, a.updates, a.adapter, a.log.With(logx.String("comp", "decorate")))
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, relay.EventDelivered, relay.EventPostFailed)
		a.sup.Go0("audit", func(c context.Context) {
			defer unsub()
			recordDeliveries(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	if a.alerts.Enabled() {
		alertEvents, unsubAlerts := a.bus.Subscribe(16, relay.EventState)
		a.sup.Go0("alerts", func(c context.Context) {
			defer unsubAlerts()
			a.alerts.Watch(c, alertEvents)
		})
	}

	states, unsubStates := a.bus.Subscribe(16, relay.EventState)
	a.sup.Go0("relay.status", func(c context.Context) {
		defer unsubStates()
		for {
			select {
			case <-c.Done():
				return
			case e := <-states:
				if sc, ok := e.Data.(relay.StateChange); ok {
					_, _ = systemd.Status("relay " + sc.State)
				}
			}
		}
	})

	if a.cron != nil {
		a.cron.Start()
	}
	if a.ops != nil {
		a.sup.GoRestart("ops", a.ops.Run, rtsup.WithStopOnCleanExit(false))
	}

	a.startConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			err := systemd.Watchdog(c, iv, func() bool { return true })
			if c.Err() != nil {
				return nil
			}
			return err
		})
	}
	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready", logx.Err(err))
	}
	a.log.Info("app started",
		logx.Int64("chat_id", a.cfg.Relay.ChatID),
		logx.String("db_host", a.cfg.Database.Host),
		logx.Bool("audit", a.store != nil),
		logx.Bool("ops", a.ops != nil),
		logx.Bool("alerts", a.alerts.Enabled()),
	)
	return nil
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

// applyConfig applies the hot-reloadable sections. Everything else is
// logged as needing a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.logs.Apply(mapLogging(next))
	a.deco.SetRules(next.Decorate)

	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts everything down, each step bounded so one component cannot
// stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx) })
	return err
}

func (a *App) stop(ctx context.Context) error {
	a.log.Info("stopping")
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn(sctx) }()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("cron", time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
