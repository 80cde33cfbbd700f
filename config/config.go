// Package config loads the spindle configuration with Viper.
package config

// Config represents the core spindle configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the scheduling core.
type SchedulerConfig struct {
	// TickerIntervalSeconds is how often the scheduler checks for due jobs (default: 1).
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`

	// DefaultMaxInstances bounds concurrent invocations per job when a job
	// does not specify its own limit (default: 1).
	DefaultMaxInstances int `mapstructure:"default_max_instances"`

	// DefaultQueueDepth bounds the backlog of deferred firings for
	// coalesce=false jobs (default: 16). Unbounded queuing is disallowed.
	DefaultQueueDepth int `mapstructure:"default_queue_depth"`
}

// FetcherConfig configures the HTTP fetcher used by ingest handlers.
type FetcherConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // per-request timeout (default: 30)
	UserAgent         string  `mapstructure:"user_agent"`          // default: spindle/1.0
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // rate limit (default: 2)
	Burst             int     `mapstructure:"burst"`               // rate limit burst (default: 1)
}
