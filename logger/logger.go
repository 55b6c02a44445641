// Package logger provides the structured logging interface used across the
// server and client, with zerolog-backed implementations for JSON and
// human-readable console output.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured logging. Implementations write log
// entries at different levels and support attaching structured fields.
// Component loggers are derived with With (for example one per connection or
// per game session).
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// New builds a Logger that writes JSON entries to w, tagged with the service
// name and a timestamp.
//
// Parameters:
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//   - w: Destination for log entries
//
// Returns:
//   - A Logger backed by zerolog
func New(serviceName string, level zerolog.Level, w io.Writer) Logger {
	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewConsole is like New but formats entries for a terminal. The client uses
// it so that log lines stay readable next to operator prompts.
func NewConsole(serviceName string, level zerolog.Level, w io.Writer) Logger {
	return New(serviceName, level, zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a configuration string such as "debug" or "WARN" into
// a zerolog level.
//
// Parameters:
//   - level: The level name; empty means info
//
// Returns:
//   - The parsed level
//   - An error if the name is not recognized
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}

	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return l, nil
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}

// Err is shorthand for the conventional error field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
