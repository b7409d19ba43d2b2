package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketsync/internal/api"
	"github.com/rickgao/marketsync/internal/model"
)

// FetchFunc fetches the events of one sub-range.
type FetchFunc func(ctx context.Context, r model.TimeRange) ([]model.CalendarEvent, error)

// Config holds scheduler configuration.
type Config struct {
	BatchSize         int           // Ranges in flight per group (default: 2)
	Stagger           time.Duration // Start delay per intra-group index (default: 250ms)
	BatchPause        time.Duration // Pause between groups (default: 1.2s)
	RateLimitCooldown time.Duration // Wait before the single rate-limit retry (default: 5s)
	FetchTimeout      time.Duration // Per-attempt timeout (default: 8s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         2,
		Stagger:           250 * time.Millisecond,
		BatchPause:        1200 * time.Millisecond,
		RateLimitCooldown: 5 * time.Second,
		FetchTimeout:      8 * time.Second,
	}
}

// Result is the fan-in of one scheduler run.
type Result struct {
	Events    []model.CalendarEvent // concatenated per-range results, duplicates expected
	Attempted []string              // labels of every range issued
	Degraded  []string              // labels of ranges that contributed nothing due to failure
	Groups    int
	Duration  time.Duration
}

// AllDegraded reports whether no attempted range succeeded.
func (r Result) AllDegraded() bool {
	return len(r.Attempted) == 0 || len(r.Degraded) == len(r.Attempted)
}

// rangeOutcome is written by exactly one goroutine, read after the group joins.
type rangeOutcome struct {
	events   []model.CalendarEvent
	degraded bool
}

// Scheduler runs sub-range fetches under a fixed concurrency and pacing budget.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
	}
}

// Run fetches every range and returns the concatenated results in range order.
// Cancelling ctx stops new groups from being issued; ranges never issued are
// absent from Result.Attempted.
func (s *Scheduler) Run(ctx context.Context, ranges []model.TimeRange, fetch FetchFunc) Result {
	start := time.Now()
	var res Result

	for lo := 0; lo < len(ranges); lo += s.cfg.BatchSize {
		if lo > 0 && !sleep(ctx, s.cfg.BatchPause) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		hi := min(lo+s.cfg.BatchSize, len(ranges))
		group := ranges[lo:hi]
		outcomes := make([]rangeOutcome, len(group))

		var g errgroup.Group
		for i, r := range group {
			i, r := i, r
			g.Go(func() error {
				if i > 0 && !sleep(ctx, time.Duration(i)*s.cfg.Stagger) {
					outcomes[i] = rangeOutcome{degraded: true}
					return nil
				}
				outcomes[i] = s.fetchRange(ctx, r, fetch)
				return nil
			})
		}
		g.Wait()
		res.Groups++

		for i, out := range outcomes {
			res.Attempted = append(res.Attempted, group[i].Label)
			if out.degraded {
				res.Degraded = append(res.Degraded, group[i].Label)
				continue
			}
			res.Events = append(res.Events, out.events...)
		}
	}

	res.Duration = time.Since(start)

	s.logger.Info("range fetch complete",
		"ranges", len(ranges),
		"attempted", len(res.Attempted),
		"degraded", len(res.Degraded),
		"events", len(res.Events),
		"groups", res.Groups,
		"duration", res.Duration,
	)

	return res
}

// fetchRange performs one range fetch with the rate-limit retry policy.
func (s *Scheduler) fetchRange(ctx context.Context, r model.TimeRange, fetch FetchFunc) rangeOutcome {
	events, err := s.attempt(ctx, r, fetch)
	if err == nil {
		return rangeOutcome{events: events}
	}

	if errors.Is(err, api.ErrRateLimited) {
		s.logger.Warn("range rate limited, cooling down",
			"range", r.Label,
			"cooldown", s.cfg.RateLimitCooldown,
		)
		if !sleep(ctx, s.cfg.RateLimitCooldown) {
			return rangeOutcome{degraded: true}
		}

		events, err = s.attempt(ctx, r, fetch)
		if err == nil {
			return rangeOutcome{events: events}
		}
	}

	s.logger.Warn("range degraded",
		"range", r.Label,
		"days", r.Days(),
		"err", err,
	)
	return rangeOutcome{degraded: true}
}

// attempt runs fetch once under the per-request timeout.
func (s *Scheduler) attempt(ctx context.Context, r model.TimeRange, fetch FetchFunc) ([]model.CalendarEvent, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	return fetch(ctx, r)
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
