// Package logging provides structured, leveled logging in the call-site
// shape the proxy's every component uses: Debug/Info/Warn/Error(msg,
// Fields{...}). It is a thin wrapper over zerolog so call sites read the
// same regardless of which sink backs them.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// Logger is the subset of behaviors every component logs through.
type Logger struct {
	zl zerolog.Logger
}

var (
	mu      sync.RWMutex
	current = New("info", false)
)

// New builds a Logger at the given level. When pretty is true, output is a
// human-readable console writer (suited to NODE_ENV=development); otherwise
// structured JSON is written to stdout, suited to log aggregation.
func New(level string, pretty bool) *Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetDefault installs l as the package-level logger used by the free
// functions below. Call once during startup after Config.Load succeeds.
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func def() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func event(zl zerolog.Logger, lvl zerolog.Level, msg string, f Fields) {
	ev := zl.WithLevel(lvl)
	for k, v := range f {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Debug logs at debug level with structured fields.
func (l *Logger) Debug(msg string, f Fields) { event(l.zl, zerolog.DebugLevel, msg, f) }

// Info logs at info level with structured fields.
func (l *Logger) Info(msg string, f Fields) { event(l.zl, zerolog.InfoLevel, msg, f) }

// Warn logs at warn level with structured fields.
func (l *Logger) Warn(msg string, f Fields) { event(l.zl, zerolog.WarnLevel, msg, f) }

// Error logs at error level with structured fields.
func (l *Logger) Error(msg string, f Fields) { event(l.zl, zerolog.ErrorLevel, msg, f) }

// Debug logs through the package-level default logger.
func Debug(msg string, f Fields) { def().Debug(msg, f) }

// Info logs through the package-level default logger.
func Info(msg string, f Fields) { def().Info(msg, f) }

// Warn logs through the package-level default logger.
func Warn(msg string, f Fields) { def().Warn(msg, f) }

// Error logs through the package-level default logger.
func Error(msg string, f Fields) { def().Error(msg, f) }

// Fatal logs at fatal level through the package-level default logger, then
// exits the process. Used only during startup before the HTTP server is
// accepting connections.
func Fatal(msg string, f Fields) {
	event(def().zl, zerolog.FatalLevel, msg, f)
	os.Exit(1)
}
