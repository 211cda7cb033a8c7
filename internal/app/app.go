package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/commands"
	"gstaldergeist/internal/config"
	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/eventbus"
	"gstaldergeist/internal/notifier"
	"gstaldergeist/internal/runtime/supervisor"
	"gstaldergeist/internal/statusapi"
	"gstaldergeist/internal/storage"
	"gstaldergeist/internal/supply"
	"gstaldergeist/internal/task/scheduler"
	kit "gstaldergeist/internal/transport"
	telegram "gstaldergeist/internal/transport/telegram/adapter"
	"gstaldergeist/internal/transport/telegram/router"
	logx "gstaldergeist/pkg/logx"
	"gstaldergeist/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	adapter *telegram.Adapter
	router  *router.Router
	cmds    *commands.Handlers

	state     *duty.StateStore
	engine    *duty.Engine
	responder *duty.Responder

	sched *scheduler.Service

	// statusAddr is empty when the status API is disabled.
	statusAddr string
	statusDeps statusapi.Deps

	updates chan kit.Update
}

// New loads the config and builds every component. Errors caused by the
// config file wrap config.ErrConfiguration.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	d, err := config.ResolveDuty(cfg.Duty)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	st, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	var store storage.Store
	if st.enabled {
		store, err = storage.Open(st.open, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", st.open.Driver), logx.String("path", st.open.Path))
	}

	rotation, err := duty.NewRotation(memberIDs(d.Members), d.Offset, d.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	sources, err := buildSources(context.Background(), cfg, d.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	agg := collection.NewAggregator(collection.Options{
		Sources:   sources,
		Rotation:  rotation,
		Directory: chatDirectory{chats: ad},
		History:   store,
		Location:  d.Location,
		Log:       log.With(logx.String("comp", "collection")),
	})

	msgs := duty.NewMessages(cfg.Language)
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	household := kit.ChatTarget{ChatID: cfg.Telegram.HouseholdChatID, ThreadID: cfg.Telegram.HouseholdThreadID}
	notif := notifier.New(ncfg, ad, msgs, household, log.With(logx.String("comp", "notifier")), bus)

	state := duty.NewStateStore(duty.TaskState{
		Phase:       duty.PhaseIdle,
		NextTrigger: d.CheckSchedule.Next(time.Now()),
	})
	supplies := cfg.Email != nil && cfg.Email.Enabled
	engine, err := duty.NewEngine(duty.EngineConfig{
		ReminderInterval: d.ReminderInterval,
		MaxReminders:     d.MaxReminders,
		RotationDay:      d.RotationDay,
		CheckSchedule:    d.CheckSchedule,
		Location:         d.Location,
		PollInterval:     d.PollInterval,
		RetryBackoff:     d.RetryBackoff,
		FetchTimeout:     d.FetchTimeout,
		Household:        duty.Audience(cfg.Telegram.HouseholdChatID),
		SupplyRequests:   supplies,
	}, state, agg, notif,
		duty.WithBus(bus),
		duty.WithMessages(msgs),
		duty.WithLogger(log.With(logx.String("comp", "duty"))),
	)
	if err != nil {
		return nil, err
	}
	responder := duty.NewResponder(state, d.CheckSchedule,
		duty.ResponderBus(bus),
		duty.ResponderLogger(log.With(logx.String("comp", "responder"))),
	)

	deps := commands.Deps{
		Adapter:   ad,
		State:     state,
		Responder: responder,
		Schedule:  agg,
		Messages:  msgs,
		Location:  d.Location,
		Log:       log.With(logx.String("comp", "commands")),
	}
	if supplies {
		mailer, err := supply.New(mapSupplyConfig(cfg.Email), log.With(logx.String("comp", "supply")))
		if err != nil {
			return nil, fmt.Errorf("%w: email: %w", config.ErrConfiguration, err)
		}
		deps.Supply = mailer
	}
	if store != nil {
		deps.History = store
	}

	rt := router.New(log.With(logx.String("comp", "router")), ad, cfg.Telegram.Workers)
	rt.SetAccess(cfg.Telegram.OwnerUserIDs, d.Members)

	sched := scheduler.New(scheduler.Config{Timezone: d.Location.String()}, log.With(logx.String("comp", "scheduler")))
	deps.Jobs = sched
	if store != nil {
		retention := st.retention
		if err := sched.AddCron("history.prune", st.prune, time.Minute, func(ctx context.Context) error {
			return pruneHistory(ctx, store, retention, d.Location, log)
		}); err != nil {
			return nil, fmt.Errorf("%w: storage.prune_schedule: %w", config.ErrConfiguration, err)
		}
	}

	var statusAddr string
	statusDeps := statusapi.Deps{State: state, Schedule: agg, Location: d.Location}
	if store != nil {
		statusDeps.Audit = store
	}
	if h := cfg.HTTP; h != nil && h.Enabled {
		statusAddr = strings.TrimSpace(h.Addr)
		if statusAddr == "" {
			statusAddr = config.DefaultHTTPAddr
		}
	}

	return &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		adapter:    ad,
		router:     rt,
		cmds:       commands.New(deps),
		state:      state,
		engine:     engine,
		responder:  responder,
		sched:      sched,
		statusAddr: statusAddr,
		statusDeps: statusDeps,
		updates:    make(chan kit.Update, 256),
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

// Counters reports the app supervisor's goroutines.
func (a *App) Counters() supervisor.Counters { return a.sup.Counters() }

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmds.Register(a.sup.Context(), a.router)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.GoRestart("duty.engine", a.engine.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithStopOnCleanExit(true),
	)
	if a.store != nil {
		a.sup.Go0("duty.audit", func(c context.Context) {
			duty.RunAudit(c, a.bus, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}
	if a.statusAddr != "" {
		sd := a.statusDeps
		sd.Health = a
		srv := statusapi.NewServer(a.statusAddr, sd, a.log.With(logx.String("comp", "statusapi")))
		a.sup.Go("statusapi", srv.Run)
	}
	a.sched.Start()

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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.RunWatchdog(c, a.log.With(logx.String("comp", "systemd")))
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd ready notification failed", logx.Err(err))
	}
	a.log.Info("app started", logx.Time("next_trigger", a.state.Snapshot().NextTrigger))
	return nil
}

// applyConfig applies the live sections of a reloaded config and warns about
// the rest.
func (a *App) applyConfig(prev, next *config.Config) {
	sections := config.ChangedSections(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	var restart []string
	for _, s := range sections {
		if !config.LiveSections[s] {
			restart = append(restart, s)
		}
	}
	a.logs.Apply(mapLogConfig(next))
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Warn("systemd stopping notification failed", logx.Err(err))
	}

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, a.sched.Stop)
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by limit and the caller's deadline. A step
// that overruns is left running and logged when it finishes.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
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
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

// historyPruner is the part of storage.Store the prune job needs.
type historyPruner interface {
	PruneCollections(ctx context.Context, before string) (int64, error)
}

func pruneHistory(ctx context.Context, p historyPruner, retention time.Duration, loc *time.Location, log logx.Logger) error {
	before := time.Now().In(loc).Add(-retention).Format(storage.DateLayout)
	n, err := p.PruneCollections(ctx, before)
	if err != nil {
		return fmt.Errorf("prune collections before %s: %w", before, err)
	}
	if n > 0 {
		log.Info("collection history pruned", logx.Int64("rows", n), logx.String("before", before))
	}
	return nil
}
