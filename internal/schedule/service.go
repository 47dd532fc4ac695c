// Package schedule flips the activation flag on cron expressions, e.g. to
// run the bot only during events.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"audiolink/internal/store"
	logx "audiolink/pkg/logx"
)

const source = "schedule"

type Config struct {
	Enabled    bool
	Timezone   string
	Activate   string
	Deactivate string
}

// Toggler is satisfied by *activation.Controller.
type Toggler interface {
	Set(ctx context.Context, active bool, source string) (store.Settings, error)
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// stopWait bounds how long Apply waits for a running job before it swaps
// the cron runner.
const stopWait = 5 * time.Second

// Service owns one cron runner. opMu serializes Start/Apply/Stop; mu only
// guards the fields and is never held while waiting on the runner, so jobs
// and Next never queue behind a reconfiguration.
type Service struct {
	opMu sync.Mutex

	mu  sync.Mutex
	cfg Config
	ctx context.Context
	c   *cron.Cron
	ids map[bool]cron.EntryID

	ctrl Toggler
	logs store.LogStore
	log  logx.Logger
}

func New(cfg Config, ctrl Toggler, logs store.LogStore, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		ctrl: ctrl,
		logs: logs,
		log:  log.With(logx.String("comp", "schedule")),
		ids:  map[bool]cron.EntryID{},
	}
}

// Validate checks the expressions and timezone without touching a Service.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Activate) == "" && strings.TrimSpace(cfg.Deactivate) == "" {
		return fmt.Errorf("schedule: enabled but neither activate nor deactivate is set")
	}
	for _, f := range []struct{ name, spec string }{
		{"schedule.activate", cfg.Activate},
		{"schedule.deactivate", cfg.Deactivate},
	} {
		if strings.TrimSpace(f.spec) == "" {
			continue
		}
		if _, err := parser.Parse(f.spec); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func (s *Service) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return nil
	}
	s.ctx = ctx
	cfg := s.cfg
	s.mu.Unlock()
	return s.run(ctx, cfg)
}

// run builds and starts a runner for cfg. The caller holds opMu.
func (s *Service) run(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		s.log.Debug("schedule disabled")
		return nil
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	loc, _ := loadLocation(cfg.Timezone)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	ids := map[bool]cron.EntryID{}
	for active, spec := range map[bool]string{true: cfg.Activate, false: cfg.Deactivate} {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		on := active
		id, err := c.AddFunc(spec, func() { s.fire(ctx, on) })
		if err != nil {
			return fmt.Errorf("add schedule %q: %w", spec, err)
		}
		ids[active] = id
	}
	c.Start()

	s.mu.Lock()
	s.c, s.ids = c, ids
	s.mu.Unlock()

	s.log.Info("schedule started",
		logx.String("tz", loc.String()),
		logx.String("activate", cfg.Activate),
		logx.String("deactivate", cfg.Deactivate),
	)
	return nil
}

// halt detaches the runner and waits for running jobs, at most until ctx ends.
// The caller holds opMu.
func (s *Service) halt(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.ids = map[bool]cron.EntryID{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("schedule job still running; continuing", logx.Err(ctx.Err()))
	}
}

// Apply swaps the configuration, restarting the cron runner when started.
func (s *Service) Apply(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.cfg == cfg {
		s.mu.Unlock()
		return nil
	}
	s.cfg = cfg
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, stopWait)
	s.halt(waitCtx)
	cancel()
	return s.run(ctx, cfg)
}

func (s *Service) Stop(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.halt(ctx)
	s.mu.Lock()
	s.ctx = nil
	s.mu.Unlock()
	s.log.Info("schedule stopped")
}

// Next returns the next fire times; zero when not scheduled.
func (s *Service) Next() (activate, deactivate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, time.Time{}
	}
	if id, ok := s.ids[true]; ok {
		activate = s.c.Entry(id).Next
	}
	if id, ok := s.ids[false]; ok {
		deactivate = s.c.Entry(id).Next
	}
	return activate, deactivate
}

func (s *Service) fire(ctx context.Context, active bool) {
	verb := "deactivated"
	if active {
		verb = "activated"
	}
	entry := store.Entry{Type: store.TypeAction, Message: "Bot " + verb + " by schedule"}
	if _, err := s.ctrl.Set(ctx, active, source); err != nil {
		entry = store.Entry{Type: store.TypeError, Message: fmt.Sprintf("Scheduled %s failed to persist: %v", strings.TrimSuffix(verb, "d"), err)}
	}
	s.log.Info("scheduled activation change", logx.Bool("active", active))
	if s.logs == nil {
		return
	}
	if _, err := s.logs.Append(ctx, entry); err != nil {
		s.log.Warn("activity log append failed", logx.Err(err))
	}
}
