package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers default values for all configuration keys.
func SetDefaults() {
	// Auth: refresh well ahead of the 30 day hard ceiling.
	viper.SetDefault("auth.token_ttl", 720*time.Hour)
	viper.SetDefault("auth.refresh_after", 7*24*time.Hour)
	viper.SetDefault("auth.check_interval", 5*time.Minute)
	viper.SetDefault("auth.min_check_gap", 1*time.Minute)
	viper.SetDefault("auth.verify_timeout", 5*time.Second)

	// Heartbeat
	viper.SetDefault("heartbeat.interval", 30*time.Second)

	// Bridge
	viper.SetDefault("bridge.enabled", true)
	viper.SetDefault("bridge.host", "127.0.0.1")
	viper.SetDefault("bridge.port", 18650)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage
	viper.SetDefault("storage.path", "~/.agentdeck/data.db")
}
