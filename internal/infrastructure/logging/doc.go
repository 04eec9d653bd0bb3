// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Levels use the names the daemon options accept (FATAL, ERROR, WARN,
// INFO, DEBUG, case-insensitive; WARNING is an alias for WARN). The level
// is atomic and can be changed at runtime when the log_level option is
// rewritten through the API.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "WARN"})
//	logger.Info("Server starting", zap.String("addr", "127.0.0.1:8063"))
//	logger.SetLevel("DEBUG")
package logging
