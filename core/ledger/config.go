package ledger

import "time"

// Config holds the engine settings loaded by core/config.
type Config struct {
	// Driver selects the store: gorm (database) or memory.
	Driver string `mapstructure:"driver" default:"gorm"`
	// RetryAttempts includes the first submission of a batch.
	RetryAttempts int `mapstructure:"retry_attempts" default:"3"`
	// InitialBackoffMs is the wait before the first resubmission.
	InitialBackoffMs int `mapstructure:"initial_backoff_ms" default:"100"`
	// MaxBackoffMs caps the wait between resubmissions.
	MaxBackoffMs int `mapstructure:"max_backoff_ms" default:"2000"`
	// HistoryLimit is the number of history events retained.
	HistoryLimit int `mapstructure:"history_limit" default:"1000"`
	// ArchivePrefix is the object prefix for archived and exported history.
	ArchivePrefix string `mapstructure:"archive_prefix" default:"history"`
	// IntegrityCacheTTLSeconds caches integrity reports; 0 disables caching.
	IntegrityCacheTTLSeconds int `mapstructure:"integrity_cache_ttl_seconds" default:"30"`
}

const (
	DriverGorm   = "gorm"
	DriverMemory = "memory"
)

// Retry converts the flat settings into a RetryConfig.
func (c Config) Retry() RetryConfig {
	r := DefaultRetryConfig()
	if c.RetryAttempts > 0 {
		r.MaxAttempts = c.RetryAttempts
	}
	if c.InitialBackoffMs > 0 {
		r.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		r.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return r.normalized()
}

// IntegrityCacheTTL returns the report cache lifetime.
func (c Config) IntegrityCacheTTL() time.Duration {
	if c.IntegrityCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.IntegrityCacheTTLSeconds) * time.Second
}
