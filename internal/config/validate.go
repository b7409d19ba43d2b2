package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if c.Scheduler.BatchSize < 1 {
		return errors.New("scheduler.batch_size must be >= 1")
	}
	if c.Scheduler.FetchTimeout <= 0 {
		return errors.New("scheduler.fetch_timeout must be > 0")
	}

	if err := c.Calendars.IPO.validate("calendars.ipo"); err != nil {
		return err
	}
	if err := c.Calendars.Earnings.validate("calendars.earnings"); err != nil {
		return err
	}
	if c.Calendars.IPO.CacheKey == c.Calendars.Earnings.CacheKey {
		return fmt.Errorf("calendars must use distinct cache keys, both are %q", c.Calendars.IPO.CacheKey)
	}

	if len(c.Feed.Symbols) > 0 {
		if c.API.WSURL == "" {
			return errors.New("api.ws_url is required when feed.symbols is set")
		}
		if c.Feed.BufferSize < 1 {
			return errors.New("feed.buffer_size must be >= 1")
		}
		if c.Feed.MaxReconnectAttempts < 1 {
			return errors.New("feed.max_reconnect_attempts must be >= 1")
		}
		if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
			return fmt.Errorf("feed.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
				c.Feed.ReconnectMaxDelay, c.Feed.ReconnectBaseDelay)
		}
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, sqlite, postgres, redis, got %q", c.Storage.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (cc *CalendarConfig) validate(prefix string) error {
	if cc.Disabled {
		return nil
	}
	if cc.PastMonths < 0 || cc.FutureMonths < 0 {
		return fmt.Errorf("%s horizon months must be >= 0", prefix)
	}
	if cc.PastChunkMonths < 1 || cc.FutureChunkMonths < 1 {
		return fmt.Errorf("%s chunk months must be >= 1", prefix)
	}
	if cc.TTL <= 0 {
		return fmt.Errorf("%s.ttl must be > 0", prefix)
	}
	if cc.CacheKey == "" {
		return fmt.Errorf("%s.cache_key is required", prefix)
	}
	if cc.Schedule == "" {
		return fmt.Errorf("%s.schedule is required", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
