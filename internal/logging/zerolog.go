package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// EngineLogger adapts zerolog.Logger to the key-value logger interface the
// sync engine expects.
type EngineLogger struct {
	logger zerolog.Logger
}

// NewEngineLogger creates a new EngineLogger wrapping a zerolog.Logger.
func NewEngineLogger(logger zerolog.Logger) *EngineLogger {
	return &EngineLogger{logger: logger}
}

// NewZerolog builds a timestamped zerolog logger writing to w at the given level.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Debug logs a debug message with optional key-value pairs.
func (l *EngineLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(toFields(keysAndValues)).Msg(msg)
}

// Info logs an info message with optional key-value pairs.
func (l *EngineLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(toFields(keysAndValues)).Msg(msg)
}

// Warn logs a warning with optional key-value pairs.
func (l *EngineLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn().Fields(toFields(keysAndValues)).Msg(msg)
}

// Error logs an error message with optional key-value pairs.
func (l *EngineLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(toFields(keysAndValues)).Msg(msg)
}

// toFields converts key-value pairs to a map for zerolog.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			if err, isErr := keysAndValues[i+1].(error); isErr {
				fields[key] = err.Error()
				continue
			}
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
