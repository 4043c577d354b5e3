package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all runtime settings for the crawler and its API server.
// The source list itself lives in a separate YAML file, see sources.go.
type Config struct {
	// File paths
	DBPath      string
	SourcesPath string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Cycle settings
	IntervalSeconds int
	MaxConcurrent   int
	RetentionDays   int

	// Fetcher settings
	UserAgent        string
	RequestTimeoutMS int
	MaxRetries       int
	MaxBodyBytes     int64
	BackoffMinMS     int
	BackoffMaxMS     int
	JitterPct        int

	// Rate limiter settings
	DomainPerSecond  float64
	DomainBurst      int
	AcquireTimeoutMS int
	CooldownMS       int

	// Cache settings
	CacheTTLSeconds int
	CacheMaxEntries int

	// Parser settings
	SummaryMaxLen int

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults,
// letting environment variables override individual values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:      GetEnvString("CRAWLER_DB_PATH", DefaultDBPath),
		SourcesPath: GetEnvString("CRAWLER_SOURCES_PATH", DefaultSourcesPath),

		ServerHost: GetEnvString("CRAWLER_HOST", DefaultServerHost),
		ServerPort: GetEnvInt("CRAWLER_PORT", DefaultServerPort),
		APIKey:     GetEnvString("CRAWLER_API_KEY", ""),

		IntervalSeconds: GetEnvInt("CRAWLER_INTERVAL", DefaultIntervalSeconds),
		MaxConcurrent:   GetEnvInt("CRAWLER_MAX_CONCURRENT", DefaultMaxConcurrent),
		RetentionDays:   GetEnvInt("CRAWLER_RETENTION_DAYS", DefaultRetentionDays),

		UserAgent:        GetEnvString("CRAWLER_USER_AGENT", DefaultUserAgent),
		RequestTimeoutMS: GetEnvInt("CRAWLER_REQUEST_TIMEOUT_MS", DefaultRequestTimeoutMS),
		MaxRetries:       GetEnvInt("CRAWLER_MAX_RETRIES", DefaultMaxRetries),
		MaxBodyBytes:     int64(GetEnvInt("CRAWLER_MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		BackoffMinMS:     GetEnvInt("CRAWLER_BACKOFF_MIN_MS", DefaultBackoffMinMS),
		BackoffMaxMS:     GetEnvInt("CRAWLER_BACKOFF_MAX_MS", DefaultBackoffMaxMS),
		JitterPct:        GetEnvInt("CRAWLER_JITTER_PCT", DefaultJitterPct),

		DomainPerSecond:  GetEnvFloat("CRAWLER_DOMAIN_PER_SECOND", DefaultDomainPerSecond),
		DomainBurst:      GetEnvInt("CRAWLER_DOMAIN_BURST", DefaultDomainBurst),
		AcquireTimeoutMS: GetEnvInt("CRAWLER_ACQUIRE_TIMEOUT_MS", DefaultAcquireTimeoutMS),
		CooldownMS:       GetEnvInt("CRAWLER_COOLDOWN_MS", DefaultCooldownMS),

		CacheTTLSeconds: GetEnvInt("CRAWLER_CACHE_TTL", DefaultCacheTTLSeconds),
		CacheMaxEntries: GetEnvInt("CRAWLER_CACHE_MAX_ENTRIES", DefaultCacheMaxEntries),

		SummaryMaxLen: GetEnvInt("CRAWLER_SUMMARY_MAX_LEN", DefaultSummaryMaxLen),

		LogLevel: GetEnvLogLevel("CRAWLER_LOG_LEVEL", zerolog.InfoLevel),
	}
}

// Validate rejects settings the pipeline must not start with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.SourcesPath == "" {
		return fmt.Errorf("sources path is required")
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be > 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("request_timeout_ms must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be > 0")
	}
	if c.BackoffMinMS <= 0 || c.BackoffMaxMS <= 0 || c.BackoffMinMS > c.BackoffMaxMS {
		return fmt.Errorf("backoff range is invalid: min=%d max=%d", c.BackoffMinMS, c.BackoffMaxMS)
	}
	if c.JitterPct < 0 || c.JitterPct > 100 {
		return fmt.Errorf("jitter_pct must be between 0 and 100")
	}
	if c.DomainPerSecond <= 0 {
		return fmt.Errorf("domain_per_second must be > 0")
	}
	if c.DomainBurst <= 0 {
		return fmt.Errorf("domain_burst must be > 0")
	}
	if c.AcquireTimeoutMS <= 0 {
		return fmt.Errorf("acquire_timeout_ms must be > 0")
	}
	if c.CooldownMS < 0 {
		return fmt.Errorf("cooldown_ms must be >= 0")
	}
	if c.CooldownMS >= c.AcquireTimeoutMS {
		return fmt.Errorf("cooldown_ms (%d) must be below acquire_timeout_ms (%d) or a 429 retry can never re-acquire", c.CooldownMS, c.AcquireTimeoutMS)
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl must be > 0")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be > 0")
	}
	if c.SummaryMaxLen <= 0 {
		return fmt.Errorf("summary_max_len must be > 0")
	}
	return nil
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// Duration getters

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinMS) * time.Millisecond
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMS) * time.Millisecond
}

func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMS) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
