package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/marketsync/internal/calendar"
	"github.com/rickgao/marketsync/internal/model"
)

// Refresher is the part of a calendar service the poller drives.
type Refresher interface {
	Kind() model.CalendarKind
	Read(ctx context.Context) (calendar.View, error)
	Refresh(ctx context.Context, force bool) (calendar.View, error)
}

// Job schedules one calendar.
type Job struct {
	Service  Refresher
	Schedule string // cron expression or descriptor such as "@every 4h"
}

// Config holds poller configuration.
type Config struct {
	Timeout time.Duration // Per-refresh timeout (default: 2m)
	Warm    bool          // Read every calendar on Start
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 2 * time.Minute,
		Warm:    true,
	}
}

// Poller periodically refreshes calendars.
type Poller struct {
	cfg    Config
	jobs   []Job
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, jobs []Job, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger = logger.With("component", "poller")

	cl := cronLogger{logger}
	return &Poller{
		cfg:    cfg,
		jobs:   jobs,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start registers every job and begins the schedule.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for _, job := range p.jobs {
		job := job
		if _, err := p.cron.AddFunc(job.Schedule, func() { p.refresh(p.ctx, job.Service) }); err != nil {
			p.cancel()
			return fmt.Errorf("schedule %s calendar %q: %w", job.Service.Kind(), job.Schedule, err)
		}
	}

	if p.cfg.Warm {
		for _, job := range p.jobs {
			p.wg.Add(1)
			go func(svc Refresher) {
				defer p.wg.Done()
				p.warm(svc)
			}(job.Service)
		}
	}

	p.cron.Start()

	p.logger.Info("calendar poller started", "calendars", len(p.jobs))
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	cronDone := p.cron.Stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("calendar poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce refreshes every calendar synchronously, outside the schedule.
func (p *Poller) RunOnce(ctx context.Context) {
	for _, job := range p.jobs {
		p.refresh(ctx, job.Service)
	}
}

func (p *Poller) warm(svc Refresher) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	v, err := svc.Read(ctx)
	if err != nil {
		p.logger.Warn("calendar warm-up failed", "kind", svc.Kind(), "error", err)
		return
	}
	p.logger.Info("calendar warmed",
		"kind", svc.Kind(),
		"state", v.State,
		"events", len(v.Events),
	)
}

// refresh runs one non-forced refresh.
func (p *Poller) refresh(parent context.Context, svc Refresher) {
	if parent.Err() != nil {
		return
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, p.cfg.Timeout)
	defer cancel()

	v, err := svc.Refresh(ctx, false)
	if err != nil {
		p.logger.Warn("scheduled refresh failed",
			"kind", svc.Kind(),
			"error", err,
		)
		return
	}

	p.logger.Info("scheduled refresh complete",
		"kind", svc.Kind(),
		"state", v.State,
		"events", len(v.Events),
		"degraded", len(v.Degraded),
		"duration", time.Since(start),
	)
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
