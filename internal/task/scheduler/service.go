package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "gstaldergeist/pkg/logx"
)

var ErrDuplicate = errors.New("schedule already registered")

type def struct {
	name    string
	spec    string
	timeout time.Duration
	entryID cron.EntryID

	mu      sync.Mutex
	runs    uint64
	lastErr string
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	loc     *time.Location
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	defs    map[string]*def
	running bool
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Warn("invalid scheduler timezone, using local", logx.String("tz", cfg.Timezone), logx.Err(err))
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{cfg: cfg, log: log, loc: loc, ctx: ctx, cancel: cancel, defs: map[string]*def{}}
	cl := cronLogger{log: log}
	s.c = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	return s
}

// AddCron registers job under name. timeout <= 0 uses the default.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	d := &def{name: name, spec: spec, timeout: timeout}
	id, err := s.c.AddFunc(spec, func() { s.run(d, job) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	d.entryID = id
	s.defs[name] = d
	s.log.Debug("schedule added", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// RunNow executes a registered job synchronously.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown schedule %q", name)
	}
	entry := s.c.Entry(d.entryID)
	if entry.Job == nil {
		return fmt.Errorf("schedule %q has no job", name)
	}
	entry.Job.Run()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr != "" {
		return errors.New(d.lastErr)
	}
	return nil
}

func (s *Service) run(d *def, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, d.timeout)
	defer cancel()
	start := time.Now()
	err := job(ctx)

	d.mu.Lock()
	d.runs++
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	if err != nil {
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("scheduled job ok", logx.String("name", d.name), logx.Duration("dur", time.Since(start)))
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.c.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Timezone: s.loc.String(), Running: s.running}
	for _, d := range s.defs {
		e := s.c.Entry(d.entryID)
		d.mu.Lock()
		out.Schedules = append(out.Schedules, ScheduleInfo{
			Name:    d.name,
			Spec:    d.spec,
			Timeout: d.timeout,
			Next:    e.Next,
			Prev:    e.Prev,
			LastErr: d.lastErr,
			Runs:    d.runs,
		})
		d.mu.Unlock()
	}
	sort.Slice(out.Schedules, func(i, j int) bool { return out.Schedules[i].Name < out.Schedules[j].Name })
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
