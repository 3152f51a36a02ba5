// Package config provides configuration parsing and management for the directory store.
package config

import "time"

// Config holds the complete store configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LogConfig     `yaml:"logging"`
	Indexes []IndexConfig `yaml:"indexes"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig holds storage engine configuration.
type StorageConfig struct {
	DataDir            string        `yaml:"dataDir"`
	LogDir             string        `yaml:"logDir"`
	IndexBackend       string        `yaml:"indexBackend"`
	Suffix             string        `yaml:"suffix"`
	SyncWrites         bool          `yaml:"syncWrites"`
	CheckpointInterval time.Duration `yaml:"checkpointInterval"`
	CacheSize          int           `yaml:"cacheSize"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// IndexConfig declares a user attribute index.
type IndexConfig struct {
	Attribute string `yaml:"attribute"`
	OID       string `yaml:"oid"`
	KeyType   string `yaml:"keyType"`
}

// MetricsConfig holds prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Index backends.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

// Index key types.
const (
	KeyTypeString = "string"
	KeyTypeLong   = "long"
	KeyTypeBytes  = "bytes"
)

// LogPath returns the transaction log directory, defaulting to <dataDir>/txlog.
func (c *StorageConfig) LogPath() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	return c.DataDir + "/txlog"
}
