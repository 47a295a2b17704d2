package log

// NoopLogger discards everything.
type NoopLogger struct{}

// NewNoopLogger returns a NoopLogger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug discards the message.
func (NoopLogger) Debug(string, ...Field) {}

// Info discards the message.
func (NoopLogger) Info(string, ...Field) {}

// Warn discards the message.
func (NoopLogger) Warn(string, ...Field) {}

// Error discards the message.
func (NoopLogger) Error(string, ...Field) {}
