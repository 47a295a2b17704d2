// Package log provides the logging abstraction used by bulkship components.
//
// Components accept a Logger and never import a logging library directly.
// Adapters are provided for zerolog (human-readable console output), zap
// (JSON output for log pipelines) and a no-op logger for tests.
//
//	logger := log.NewZerologAdapter(os.Stderr, log.LevelInfo)
//	logger := log.NewZapAdapter(log.LevelDebug)
//	logger := log.NewNoopLogger()
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
