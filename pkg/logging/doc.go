// Package logging provides structured logging configuration for apicap.
//
// This package wraps log/slog so the proxy engine, the capture observer and
// the CLI share one handler setup. It supports configurable log levels,
// output formats and an optional size-rotated log file.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    File:   "logs/apicap.log",
//	})
//
//	logger.Info("proxy started", "port", 8080)
//
// # Log Levels
//
//   - Debug: connection-level proxy events
//   - Info: one line per captured exchange
//   - Warn: recoverable problems (a retried save, a renamed client method)
//   - Error: failures that end the capture session
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or options.
// If no logger is provided, use logging.Nop() for a no-op logger.
package logging
