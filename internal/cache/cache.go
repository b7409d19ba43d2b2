// Package cache keeps one versioned, timestamped calendar snapshot per
// feature in a persistent store.
//
// Entry states:
//
//	Absent -> Fresh   on Write
//	Fresh  -> Stale   once the snapshot is at least TTL old
//	any    -> Absent  on schema version change, corruption or Clear
//
// Corrupt or mismatched entries are never reported as errors; they read as
// Absent so callers fall through to a live refresh.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/store"
)

// State is the freshness of a cache entry.
type State int

const (
	StateAbsent State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Cache.
type Options struct {
	Key           string        // store key, distinct per feature
	TTL           time.Duration // snapshots at least this old are stale
	SchemaVersion int           // entries written with another version read as absent

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// envelope is the persisted form of a snapshot.
type envelope struct {
	Key string `json:"key"`
	model.Snapshot
}

// Cache is the snapshot cache of a single feature.
type Cache struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// New creates a Cache over st.
func New(st store.Store, opts Options, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:  st,
		opts:   opts,
		logger: logger.With("component", "cache", "key", opts.Key),
	}
}

// Key returns the store key of this cache.
func (c *Cache) Key() string {
	return c.opts.Key
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.opts.TTL
}

// Write persists events as a new snapshot stamped with the current time and
// the running schema version. The previous snapshot is replaced wholesale.
func (c *Cache) Write(ctx context.Context, events []model.CalendarEvent, ranges []string) (model.Snapshot, error) {
	if events == nil {
		events = []model.CalendarEvent{}
	}
	snap := model.Snapshot{
		Events:        events,
		Timestamp:     c.opts.Now().UTC(),
		SchemaVersion: c.opts.SchemaVersion,
		Ranges:        ranges,
	}

	data, err := json.Marshal(envelope{Key: c.opts.Key, Snapshot: snap})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.store.Put(ctx, c.opts.Key, data); err != nil {
		return model.Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}

	c.logger.Debug("snapshot written", "events", len(events), "ranges", len(ranges))
	return snap, nil
}

// Read returns the snapshot only while it is fresh.
func (c *Cache) Read(ctx context.Context) (model.Snapshot, bool) {
	snap, state := c.Lookup(ctx)
	if state != StateFresh {
		return model.Snapshot{}, false
	}
	return snap, true
}

// ReadStaleAllowed returns the snapshot regardless of age. A snapshot of
// another schema version is still absent.
func (c *Cache) ReadStaleAllowed(ctx context.Context) (model.Snapshot, bool) {
	snap, state := c.Lookup(ctx)
	if state == StateAbsent {
		return model.Snapshot{}, false
	}
	return snap, true
}

// State returns the current state of the entry.
func (c *Cache) State(ctx context.Context) State {
	_, state := c.Lookup(ctx)
	return state
}

// Lookup loads the entry and classifies it in one store round trip.
func (c *Cache) Lookup(ctx context.Context) (model.Snapshot, State) {
	data, err := c.store.Get(ctx, c.opts.Key)
	if errors.Is(err, store.ErrNotFound) {
		return model.Snapshot{}, StateAbsent
	}
	if err != nil {
		c.logger.Warn("cache read failed", "error", err)
		return model.Snapshot{}, StateAbsent
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("discarding corrupt snapshot", "error", err, "bytes", len(data))
		return model.Snapshot{}, StateAbsent
	}
	if env.Key != c.opts.Key || env.Timestamp.IsZero() {
		c.logger.Warn("discarding malformed snapshot", "stored_key", env.Key)
		return model.Snapshot{}, StateAbsent
	}
	if env.SchemaVersion != c.opts.SchemaVersion {
		c.logger.Warn("discarding snapshot with old schema",
			"stored_version", env.SchemaVersion,
			"want_version", c.opts.SchemaVersion,
		)
		if err := c.store.Delete(ctx, c.opts.Key); err != nil {
			c.logger.Debug("delete mismatched snapshot failed", "error", err)
		}
		return model.Snapshot{}, StateAbsent
	}

	if env.Snapshot.Age(c.opts.Now()) < c.opts.TTL {
		return env.Snapshot, StateFresh
	}
	return env.Snapshot, StateStale
}

// Clear removes the entry.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.opts.Key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
