package cliconfig

import (
	"io"

	"github.com/bft-labs/bulkship/pkg/log"
)

// NewLogger builds the process logger: zerolog console output for
// LogFormatConsole, zap JSON for LogFormatJSON. Call Validate first.
func NewLogger(cfg Config, w io.Writer) (log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.LogFormat == LogFormatJSON {
		z, err := log.NewZapAdapter(level)
		if err != nil {
			return nil, err
		}
		return z, nil
	}
	return log.NewZerologAdapter(w, level), nil
}
