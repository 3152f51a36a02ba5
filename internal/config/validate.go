// Package config provides configuration parsing and management for the directory store.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateStorageConfig(&config.Storage)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)
	errs = append(errs, validateIndexConfigs(config.Indexes)...)

	return errs
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(config *StorageConfig) []error {
	var errs []error

	if config.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.dataDir",
			Message: "data directory is required",
		})
	} else if !filepath.IsAbs(config.DataDir) {
		errs = append(errs, ValidationError{
			Field:   "storage.dataDir",
			Message: "must be an absolute path",
		})
	}

	if config.LogDir != "" && !filepath.IsAbs(config.LogDir) {
		errs = append(errs, ValidationError{
			Field:   "storage.logDir",
			Message: "must be an absolute path",
		})
	}

	switch config.IndexBackend {
	case BackendMemory, BackendPebble:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.indexBackend",
			Message: "must be memory or pebble",
		})
	}

	if config.Suffix != "" && !strings.Contains(config.Suffix, "=") {
		errs = append(errs, ValidationError{
			Field:   "storage.suffix",
			Message: "must be a distinguished name",
		})
	}

	if config.CheckpointInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.checkpointInterval",
			Message: "must be non-negative",
		})
	}

	if config.CacheSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.cacheSize",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogConfig validates logging configuration.
func validateLogConfig(config *LogConfig) []error {
	var errs []error

	switch config.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	switch config.Format {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	return errs
}

// validateIndexConfigs validates user index declarations.
func validateIndexConfigs(indexes []IndexConfig) []error {
	var errs []error
	seen := make(map[string]bool)

	for i, idx := range indexes {
		field := fmt.Sprintf("indexes[%d]", i)

		if idx.Attribute == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".attribute",
				Message: "attribute name is required",
			})
			continue
		}

		if seen[idx.Attribute] {
			errs = append(errs, ValidationError{
				Field:   field + ".attribute",
				Message: "duplicate index for " + idx.Attribute,
			})
		}
		seen[idx.Attribute] = true

		switch idx.KeyType {
		case "", KeyTypeString, KeyTypeLong, KeyTypeBytes:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".keyType",
				Message: "must be string, long, or bytes",
			})
		}
	}

	return errs
}
