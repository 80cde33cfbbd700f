package config

import "github.com/spf13/viper"

// SetDefaults applies default values to a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "spindle.db")

	v.SetDefault("scheduler.ticker_interval_seconds", 1)
	v.SetDefault("scheduler.default_max_instances", 1)
	v.SetDefault("scheduler.default_queue_depth", 16)

	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.user_agent", "spindle/1.0")
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.burst", 1)
}
