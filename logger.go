package petwalk

// Logger defines the interface for client logging.
// Every module logs through this interface with key-value pairs so the
// embedding program decides how the output looks:
//
//	logger.Info("Directory loaded", "services", 3, "url", discoveryURL)
//
// The signature is compatible with slog, zap's SugaredLogger (the *w
// variants) and most other structured loggers.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that are reported but do not stop the client,
	// such as a discovery call that could not be completed.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// NopLogger discards everything. Useful as a default and in tests.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
