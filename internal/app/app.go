package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"audiolink/internal/activation"
	"audiolink/internal/bot"
	"audiolink/internal/config"
	"audiolink/internal/eventbus"
	"audiolink/internal/httpapi"
	rtsup "audiolink/internal/runtime/supervisor"
	"audiolink/internal/schedule"
	"audiolink/internal/store"
	"audiolink/internal/transport"
	logx "audiolink/pkg/logx"
	"audiolink/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	settings *store.MemSettings
	logStore *store.MemLog
	ctrl     *activation.Controller

	// adapter is nil when no token is configured or the client failed to
	// initialize; the dashboard keeps running either way.
	adapter    transport.Adapter
	adapterErr error

	handler *bot.Handler
	sched   *schedule.Service
	http    *httpapi.Service
	notify  *systemd.Notifier

	updates   chan transport.Update
	startedAt time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))
	log.Info("config loaded", logx.String("path", cfgm.Path()), logx.String("platform", cfg.Bot.Platform))

	bus := eventbus.New()
	settings := store.NewMemSettings()
	logStore := store.NewMemLog(store.WithPublisher(bus))

	ctrl, err := activation.New(context.Background(), settings, bus, log.With(logx.String("comp", "activation")))
	if err != nil {
		return nil, err
	}

	ad, adErr := buildAdapter(cfg, log.With(logx.String("comp", "transport")))

	opts, err := mapHandlerOptions(cfg)
	if err != nil {
		return nil, err
	}
	handler := bot.New(ad, ctrl, logStore, log.With(logx.String("comp", "bot")), opts)

	sched := schedule.New(mapSchedule(cfg), ctrl, logStore, log.With(logx.String("comp", "schedule")))

	startedAt := time.Now()
	deps := httpapi.Deps{
		Activation: ctrl,
		Settings:   settings,
		Logs:       logStore,
		Stats:      handler,
		Bus:        bus,
		Schedule:   sched,
		Platform:   strings.ToLower(strings.TrimSpace(cfg.Bot.Platform)),
		StartedAt:  startedAt,
		Profiling:  cfg.HTTP.Pprof,
	}
	if ff, ok := ad.(transport.FileFetcher); ok {
		deps.Files = ff
	}
	if c, ok := ad.(transport.Connected); ok {
		deps.Connected = c.Connected
	} else {
		deps.Connected = func() bool { return false }
	}

	httpCfg, err := mapHTTP(cfg)
	if err != nil {
		return nil, err
	}
	router := httpapi.NewRouter(deps, cfg.HTTP.Token, log.With(logx.String("comp", "api")))
	httpSvc := httpapi.NewService(httpCfg, router, log)

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		settings:   settings,
		logStore:   logStore,
		ctrl:       ctrl,
		adapter:    ad,
		adapterErr: adErr,
		handler:    handler,
		sched:      sched,
		http:       httpSvc,
		notify:     systemd.New(log.With(logx.String("comp", "systemd"))),
		updates:    make(chan transport.Update, 256),
		startedAt:  startedAt,
	}, nil
}

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

// HTTPAddr is the bound dashboard address once the listener is up.
func (a *App) HTTPAddr() string { return a.http.Addr() }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.startBot()

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.handler.DispatchLoop(c, a.updates, a.cfgm.Get().Bot.Workers)
	})

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

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
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	a.http.Start(a.sup.Context())
	// A dashboard that cannot listen is fatal for the process.
	a.sup.Go("http.watch", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.http.Failed():
			return fmt.Errorf("dashboard: %w", a.http.Err())
		}
	})

	a.notify.Ready()
	a.sup.Go0("systemd.watchdog", a.notify.Watchdog)

	a.log.Info("app started", logx.Bool("bot", a.adapter != nil), logx.Bool("active", a.ctrl.IsActive()))
	return nil
}

// startBot connects the chat adapter. Failures are recorded in the activity
// log and do not stop the dashboard.
func (a *App) startBot() {
	if a.adapter == nil {
		err := a.adapterErr
		entry := store.Entry{Type: store.TypeError}
		if errors.Is(err, config.ErrNoToken) {
			a.log.Warn("no bot token provided; bot disabled")
			entry.Message = "Failed to start bot: No bot token provided"
		} else {
			a.log.Error("bot init failed", logx.Err(err))
			entry.Message = bot.InitFailedText(err)
		}
		a.appendLog(entry)
		a.notify.Status("dashboard only")
		return
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.log.Error("bot start failed", logx.Err(err))
		a.appendLog(store.Entry{Type: store.TypeError, Message: bot.InitFailedText(err)})
		a.adapter = nil
		return
	}
	a.log.Info("bot started", logx.String("platform", a.adapter.Name()))
}

func (a *App) appendLog(e store.Entry) {
	if _, err := a.logStore.Append(context.Background(), e); err != nil {
		a.log.Warn("log append failed", logx.Err(err))
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(newCfg))

	if opts, err := mapHandlerOptions(newCfg); err != nil {
		a.log.Warn("invalid bot config; keeping previous", logx.Err(err))
	} else {
		a.handler.Apply(opts)
	}

	if err := a.sched.Apply(mapSchedule(newCfg)); err != nil {
		a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
	}

	for _, s := range sections {
		if config.RestartRequired(s) {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
	if oldCfg != nil && (oldCfg.Bot.Platform != newCfg.Bot.Platform ||
		oldCfg.Bot.Token != newCfg.Bot.Token || oldCfg.Bot.Workers != newCfg.Bot.Workers) {
		a.log.Warn("bot connection settings changed; restart required for changes to take effect")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "http", 3*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter == nil {
			return nil
		}
		return a.adapter.Stop(c)
	})
	// Finally, wait for supervised goroutines (dispatch drains in-flight replies).
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	c := a.sup.Counters()
	a.log.Info("stopped",
		logx.Int64("goroutines_active", c.Active),
		logx.Uint64("goroutines_started", c.Started),
		logx.Uint64("bus_dropped", eventbus.Dropped(a.bus)),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs a shutdown step with an upper bound so one component can't stall
// the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		max = time.Millisecond
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
