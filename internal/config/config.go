package config

import "time"

// Config is the root configuration for a marketsync instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Calendars CalendarsConfig `yaml:"calendars"`
	Feed      FeedConfig      `yaml:"feed"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// APIConfig holds upstream market-data API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
}

// SchedulerConfig holds batch scheduler settings shared by every calendar.
type SchedulerConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	Stagger           time.Duration `yaml:"stagger"`
	BatchPause        time.Duration `yaml:"batch_pause"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
}

// CalendarsConfig holds one section per calendar feature.
type CalendarsConfig struct {
	IPO      CalendarConfig `yaml:"ipo"`
	Earnings CalendarConfig `yaml:"earnings"`
}

// CalendarConfig holds the horizon, cache and refresh settings of one calendar.
type CalendarConfig struct {
	Disabled          bool          `yaml:"disabled"`
	PastMonths        int           `yaml:"past_months"`
	FutureMonths      int           `yaml:"future_months"`
	PastChunkMonths   int           `yaml:"past_chunk_months"`
	FutureChunkMonths int           `yaml:"future_chunk_months"`
	TTL               time.Duration `yaml:"ttl"`
	SchemaVersion     int           `yaml:"schema_version"`
	CacheKey          string        `yaml:"cache_key"`
	Schedule          string        `yaml:"schedule"` // cron expression or @every descriptor
	RefreshTimeout    time.Duration `yaml:"refresh_timeout"`
}

// FeedConfig holds live trade feed settings. An empty symbol list disables the feed.
type FeedConfig struct {
	Symbols              []string      `yaml:"symbols"`
	BufferSize           int           `yaml:"buffer_size"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects and configures the snapshot store backend.
type StorageConfig struct {
	Backend    string      `yaml:"backend"` // memory, sqlite, postgres, redis
	SQLitePath string      `yaml:"sqlite_path"`
	SpillDir   string      `yaml:"spill_dir"` // memory backend only, empty = no disk spill
	KeyPrefix  string      `yaml:"key_prefix"`
	Postgres   DBConfig    `yaml:"postgres"`
	Redis      RedisConfig `yaml:"redis"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}
