// Package config provides configuration parsing and management for the directory store.
package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:            "/var/lib/dirstore",
			LogDir:             "",
			IndexBackend:       BackendPebble,
			Suffix:             "",
			SyncWrites:         true,
			CheckpointInterval: 5 * time.Minute,
			CacheSize:          10000,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Indexes: nil,
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9108",
		},
	}
}
