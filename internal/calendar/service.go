package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/marketsync/internal/cache"
	"github.com/rickgao/marketsync/internal/merge"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/partition"
	"github.com/rickgao/marketsync/internal/scheduler"
)

// ErrRefreshFailed is returned when a refresh produced nothing and no earlier
// snapshot exists to fall back to.
var ErrRefreshFailed = errors.New("calendar refresh failed")

// Fetcher loads the events of one calendar sub-range from upstream.
type Fetcher interface {
	GetCalendar(ctx context.Context, kind model.CalendarKind, r model.TimeRange) ([]model.CalendarEvent, error)
}

// Config holds per-calendar settings.
type Config struct {
	Horizon        partition.Horizon
	RefreshTimeout time.Duration    // bound on background refreshes (default: 2m)
	Metrics        *metrics.Metrics // optional
	Now            func() time.Time // defaults to time.Now
}

// View is what a reader sees: the events plus enough provenance to render
// freshness and soft errors.
type View struct {
	Kind       model.CalendarKind    `json:"kind"`
	Events     []model.CalendarEvent `json:"events"`
	Timestamp  time.Time             `json:"timestamp"`
	ExpiresAt  time.Time             `json:"expires_at"` // when the snapshot turns stale
	Upcoming   int                   `json:"upcoming"`   // events dated today or later
	Past       int                   `json:"past"`
	Ranges     []string              `json:"ranges,omitempty"`
	State      string                `json:"state"` // fresh, stale, absent
	Degraded   []string              `json:"degraded,omitempty"`
	Warning    string                `json:"warning,omitempty"`
	Refreshing bool                  `json:"refreshing"`
}

// Status is the refresh history of a Service.
type Status struct {
	Kind        model.CalendarKind `json:"kind"`
	CacheKey    string             `json:"cache_key"`
	CacheState  string             `json:"cache_state"`
	LastAttempt time.Time          `json:"last_attempt,omitempty"`
	LastSuccess time.Time          `json:"last_success,omitempty"`
	Degraded    []string           `json:"degraded,omitempty"`
	Warning     string             `json:"warning,omitempty"`
	Refreshing  bool               `json:"refreshing"`
	Refreshes   int64              `json:"refreshes"`
}

// Service owns the cache and refresh pipeline of one calendar kind.
type Service struct {
	kind    model.CalendarKind
	cfg     Config
	fetcher Fetcher
	cache   *cache.Cache
	sched   *scheduler.Scheduler
	logger  *slog.Logger

	// Cold-start reads share one synchronous refresh
	cold singleflight.Group

	// Background refresh
	refreshing atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// NewService creates a Service.
func NewService(
	kind model.CalendarKind,
	cfg Config,
	fetcher Fetcher,
	c *cache.Cache,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		kind:    kind,
		cfg:     cfg,
		fetcher: fetcher,
		cache:   c,
		sched:   sched,
		logger:  logger.With("component", "calendar", "kind", string(kind)),
		ctx:     ctx,
		cancel:  cancel,
		status:  Status{Kind: kind, CacheKey: c.Key()},
	}
}

// Kind returns the calendar kind served.
func (s *Service) Kind() model.CalendarKind {
	return s.kind
}

// Read returns the calendar, preferring the cache.
func (s *Service) Read(ctx context.Context) (View, error) {
	snap, state := s.lookup(ctx)

	switch state {
	case cache.StateFresh:
		return s.view(snap, state), nil
	case cache.StateStale:
		s.refreshAsync(ctx)
		v := s.view(snap, state)
		v.Refreshing = true
		return v, nil
	default:
		v, err, shared := s.cold.Do("refresh", func() (interface{}, error) {
			return s.refresh(ctx)
		})
		if shared {
			s.logger.Debug("joined in-flight refresh")
		}
		return v.(View), err
	}
}

// ReadStaleAllowed returns whatever snapshot is cached, regardless of age.
// It never triggers network activity.
func (s *Service) ReadStaleAllowed(ctx context.Context) (View, bool) {
	snap, state := s.lookup(ctx)
	if state == cache.StateAbsent {
		return View{Kind: s.kind, State: state.String(), Events: []model.CalendarEvent{}}, false
	}
	return s.view(snap, state), true
}

// Refresh rebuilds the snapshot from upstream. Without force a fresh
// snapshot is returned untouched.
func (s *Service) Refresh(ctx context.Context, force bool) (View, error) {
	if !force {
		snap, state := s.lookup(ctx)
		if state == cache.StateFresh {
			s.cfg.Metrics.ObserveRefresh(s.kind, metrics.ResultSkipped, 0, 0, 0)
			return s.view(snap, state), nil
		}
	}
	return s.refresh(ctx)
}

// Status returns a copy of the refresh history.
func (s *Service) Status(ctx context.Context) Status {
	state := s.cache.State(ctx)

	s.mu.Lock()
	st := s.status
	st.Degraded = append([]string(nil), s.status.Degraded...)
	s.mu.Unlock()

	st.CacheState = state.String()
	st.Refreshing = s.refreshing.Load()
	return st
}

// Close cancels any background refresh and waits for it to finish.
func (s *Service) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) lookup(ctx context.Context) (model.Snapshot, cache.State) {
	snap, state := s.cache.Lookup(ctx)
	s.cfg.Metrics.ObserveCacheRead(s.kind, state.String())
	return snap, state
}

// refreshAsync starts a background refresh unless one is already running.
// The refresh outlives the triggering request but not the Service.
func (s *Service) refreshAsync(parent context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		s.refreshing.Store(false)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.RefreshTimeout)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		if _, err := s.refresh(ctx); err != nil {
			s.logger.Warn("background refresh failed", "error", err)
		}
	}()
}

// refresh runs the full pipeline once.
func (s *Service) refresh(ctx context.Context) (View, error) {
	start := time.Now()
	anchor := s.cfg.Now()

	s.mu.Lock()
	s.status.LastAttempt = anchor
	s.status.Refreshes++
	s.mu.Unlock()

	ranges, err := partition.Partition(anchor, s.cfg.Horizon)
	if err != nil {
		return View{}, fmt.Errorf("partition %s horizon: %w", s.kind, err)
	}

	res := s.sched.Run(ctx, ranges, func(ctx context.Context, r model.TimeRange) ([]model.CalendarEvent, error) {
		return s.fetcher.GetCalendar(ctx, s.kind, r)
	})

	if err := ctx.Err(); err != nil {
		// Partial coverage from a cancelled run must not replace a complete snapshot.
		s.cfg.Metrics.ObserveRefresh(s.kind, metrics.ResultFailed, len(res.Degraded), 0, time.Since(start))
		warning := fmt.Sprintf("%s calendar refresh was interrupted (%v)", s.kind, err)
		return s.fallback(context.WithoutCancel(ctx), warning, res.Degraded, err)
	}

	if res.AllDegraded() {
		s.cfg.Metrics.ObserveRefresh(s.kind, metrics.ResultFailed, len(res.Degraded), 0, time.Since(start))
		warning := fmt.Sprintf("%s calendar could not be refreshed (%d of %d ranges failed)",
			s.kind, len(res.Degraded), len(res.Attempted))
		return s.fallback(ctx, warning, res.Degraded, nil)
	}

	merged := merge.Merge(res.Events, anchor)
	result := metrics.ResultOK
	if len(res.Degraded) > 0 {
		result = metrics.ResultPartial
	}

	snap, err := s.cache.Write(ctx, merged, res.Attempted)
	if err != nil {
		// Serve the fresh data anyway; the next refresh retries the write.
		s.logger.Warn("snapshot not persisted", "error", err)
		s.cfg.Metrics.ObserveRefresh(s.kind, metrics.ResultWriteErr, len(res.Degraded), len(merged), time.Since(start))
		snap = model.Snapshot{Events: merged, Timestamp: anchor, Ranges: res.Attempted}
	} else {
		s.cfg.Metrics.ObserveRefresh(s.kind, result, len(res.Degraded), len(merged), time.Since(start))
	}

	s.mu.Lock()
	s.status.LastSuccess = snap.Timestamp
	s.status.Degraded = res.Degraded
	s.status.Warning = ""
	s.mu.Unlock()

	s.logger.Info("calendar refreshed",
		"events", len(merged),
		"raw", len(res.Events),
		"ranges", len(res.Attempted),
		"degraded", len(res.Degraded),
		"duration", time.Since(start),
	)

	v := s.view(snap, cache.StateFresh)
	v.Degraded = res.Degraded
	if err != nil {
		v.Warning = "calendar updated but could not be saved"
	}
	return v, nil
}

// fallback serves the cached snapshot after a failed or interrupted refresh.
// cause, when set, stays matchable through the returned error.
func (s *Service) fallback(ctx context.Context, warning string, degraded []string, cause error) (View, error) {
	s.mu.Lock()
	s.status.Degraded = degraded
	s.status.Warning = warning
	s.mu.Unlock()

	snap, state := s.cache.Lookup(ctx)
	if state == cache.StateAbsent {
		s.logger.Error("refresh failed with nothing cached", "degraded", len(degraded), "error", cause)
		if cause != nil {
			return View{}, fmt.Errorf("%w: %s: %w", ErrRefreshFailed, warning, cause)
		}
		return View{}, fmt.Errorf("%w: %s", ErrRefreshFailed, warning)
	}

	s.logger.Warn("refresh failed, serving cached snapshot",
		"degraded", len(degraded),
		"snapshot_age", snap.Age(s.cfg.Now()),
	)

	v := s.view(snap, state)
	v.Degraded = degraded
	v.Warning = warning + "; showing data from " + snap.Timestamp.Format(time.RFC3339)
	return v, nil
}

func (s *Service) view(snap model.Snapshot, state cache.State) View {
	events := snap.Events
	if events == nil {
		events = []model.CalendarEvent{}
	}
	upcoming, past := merge.Split(events, s.cfg.Now())
	return View{
		Kind:      s.kind,
		Events:    events,
		Timestamp: snap.Timestamp,
		ExpiresAt: snap.Timestamp.Add(s.cache.TTL()),
		Upcoming:  len(upcoming),
		Past:      len(past),
		Ranges:    snap.Ranges,
		State:     state.String(),
	}
}
