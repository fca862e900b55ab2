// SPDX-License-Identifier: EPL-2.0

// Package logging provides structured logging with per-module log levels.
//
// # Usage
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"stream": "debug",
//		},
//	})
//
// Then get a logger per package:
//
//	logger := logging.GetLogger("stream").With("stream_id", id)
//	logger.Info("stream started", "rate", 48000)
//
// Loggers are never used from the real-time callback goroutine.
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	stream = "debug"
//	loopback = "warn"
package logging
