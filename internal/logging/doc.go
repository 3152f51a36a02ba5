// Package logging provides structured logging for the directory store.
//
// # Overview
//
// The logging package wraps zap behind a small key-value interface:
//
//   - Multiple log levels (debug, info, warn, error)
//   - Console and JSON output formats
//   - Field-based contextual logging and named components
//
// # Creating a Logger
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/dirstore/dirstore.log",
//	})
//
// For testing, use a no-op logger:
//
//	logger := logging.NewNop()
//
// # Structured Logging
//
//	logger.Info("recovery complete",
//	    "replayed_txns", 12,
//	    "healed_pairs", 1,
//	)
//
// Component loggers carry their name on every entry:
//
//	replayLog := logger.Named("txlog").WithFields("dir", "/var/lib/dirstore/log")
package logging
