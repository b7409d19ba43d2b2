package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "https://finnhub.io/api/v1"
	DefaultWSURL                = "wss://ws.finnhub.io"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 2
	DefaultRateLimit            = 1.0
	DefaultBurst                = 2
	DefaultLogLevel             = "info"
	DefaultBatchSize            = 2
	DefaultStagger              = 250 * time.Millisecond
	DefaultBatchPause           = 1200 * time.Millisecond
	DefaultRateLimitCooldown    = 5 * time.Second
	DefaultFetchTimeout         = 8 * time.Second
	DefaultSchemaVersion        = 2
	DefaultSchedule             = "@every 4h"
	DefaultRefreshTimeout       = 2 * time.Minute
	DefaultFeedBufferSize       = 20
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultPingTimeout          = 90 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "marketsync.db"
	DefaultKeyPrefix            = "marketsync:"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultRedisAddr            = "localhost:6379"
	DefaultServerPort           = 8080
	DefaultMetricsPath          = "/metrics"
)

// Calendar defaults. IPO look-ups cover a wide window in coarse chunks;
// earnings are denser so they use single-month chunks.
var (
	DefaultIPOCalendar = CalendarConfig{
		PastMonths:        12,
		FutureMonths:      18,
		PastChunkMonths:   4,
		FutureChunkMonths: 3,
		TTL:               4 * time.Hour,
		CacheKey:          "calendar:ipo",
	}
	DefaultEarningsCalendar = CalendarConfig{
		PastMonths:        3,
		FutureMonths:      6,
		PastChunkMonths:   1,
		FutureChunkMonths: 1,
		TTL:               2 * time.Hour,
		CacheKey:          "calendar:earnings",
	}
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}
	if c.API.Burst == 0 {
		c.API.Burst = DefaultBurst
	}

	// Scheduler defaults
	if c.Scheduler.BatchSize == 0 {
		c.Scheduler.BatchSize = DefaultBatchSize
	}
	if c.Scheduler.Stagger == 0 {
		c.Scheduler.Stagger = DefaultStagger
	}
	if c.Scheduler.BatchPause == 0 {
		c.Scheduler.BatchPause = DefaultBatchPause
	}
	if c.Scheduler.RateLimitCooldown == 0 {
		c.Scheduler.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if c.Scheduler.FetchTimeout == 0 {
		c.Scheduler.FetchTimeout = DefaultFetchTimeout
	}

	// Calendar defaults
	applyCalendarDefaults(&c.Calendars.IPO, DefaultIPOCalendar)
	applyCalendarDefaults(&c.Calendars.Earnings, DefaultEarningsCalendar)

	// Feed defaults
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = DefaultKeyPrefix
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
}

func applyCalendarDefaults(c *CalendarConfig, def CalendarConfig) {
	// Horizon fields are defaulted as a group so a partial override
	// (only past_months, say) keeps the remaining defaults.
	if c.PastMonths == 0 {
		c.PastMonths = def.PastMonths
	}
	if c.FutureMonths == 0 {
		c.FutureMonths = def.FutureMonths
	}
	if c.PastChunkMonths == 0 {
		c.PastChunkMonths = def.PastChunkMonths
	}
	if c.FutureChunkMonths == 0 {
		c.FutureChunkMonths = def.FutureChunkMonths
	}
	if c.TTL == 0 {
		c.TTL = def.TTL
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = DefaultSchemaVersion
	}
	if c.CacheKey == "" {
		c.CacheKey = def.CacheKey
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.RefreshTimeout == 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
