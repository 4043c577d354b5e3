package config

// Constants defining default values for application configuration
const (
	DefaultDBPath      = "./crawler.db"
	DefaultSourcesPath = "./sources.yaml"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultIntervalSeconds = 3600 // Seconds between crawl cycles
	DefaultMaxConcurrent   = 5    // Bounded worker pool / global in-flight cap
	DefaultRetentionDays   = 30   // Days to keep seen records and items

	DefaultUserAgent        = "DriftwatchCrawler/1.0"
	DefaultRequestTimeoutMS = 30000
	DefaultMaxRetries       = 3
	DefaultMaxBodyBytes     = 5 * 1024 * 1024
	DefaultBackoffMinMS     = 250
	DefaultBackoffMaxMS     = 5000
	DefaultJitterPct        = 20

	DefaultDomainPerSecond  = 1.0 // Token refill rate for unconfigured domains
	DefaultDomainBurst      = 2
	DefaultAcquireTimeoutMS = 30000 // Ceiling on rate-limiter waits
	DefaultCooldownMS       = 5000  // Extra domain cooldown after a 429; must stay below the acquire ceiling or 429 retries can never re-acquire

	DefaultCacheTTLSeconds = 3600
	DefaultCacheMaxEntries = 1000

	DefaultSummaryMaxLen = 500

	DefaultLogLevel = "info"
)
