package database

import "time"

const (
	defaultMaxIdleConns    = 8
	defaultMaxOpenConns    = 8
	defaultConnMaxLifetime = time.Hour
)

// Config holds database configuration settings
type Config struct {
	DBPath string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	CacheSizeKB     int
	BusyTimeoutMS   int
	ReadOnly        bool
}

// NewConfig creates a new database configuration with default values
func NewConfig(dbPath string) *Config {
	return &Config{
		DBPath:          dbPath,
		ConnMaxLifetime: defaultConnMaxLifetime,
		CacheSizeKB:     -64000, // 64MB
		BusyTimeoutMS:   5000,
	}
}
