package log

import (
	"os"

	"github.com/paularlott/logger"
	logslog "github.com/paularlott/logger/slog"
)

var defaultLogger logger.Logger

func init() {
	defaultLogger = logslog.New(logslog.Config{
		Level:  "info",
		Format: "console",
		Writer: os.Stderr,
	})
}

// Configure replaces the process logger. Output goes to stderr so command
// output on stdout stays clean for piping.
func Configure(level, format string) {
	defaultLogger = logslog.New(logslog.Config{
		Level:  level,
		Format: format,
		Writer: os.Stderr,
	})
}

func Info(msg string, keysAndValues ...any) {
	defaultLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	defaultLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	defaultLogger.Error(msg, keysAndValues...)
}

func Debug(msg string, keysAndValues ...any) {
	defaultLogger.Debug(msg, keysAndValues...)
}

// Logger is the subset of logging used by library packages.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type component struct {
	name string
}

// Component returns a Logger that tags every entry with component=name and
// writes through the process logger, so later Configure calls apply to it.
func Component(name string) Logger {
	return component{name: name}
}

func (c component) kv(keysAndValues []any) []any {
	return append([]any{"component", c.name}, keysAndValues...)
}

func (c component) Debug(msg string, keysAndValues ...any) { Debug(msg, c.kv(keysAndValues)...) }
func (c component) Info(msg string, keysAndValues ...any)  { Info(msg, c.kv(keysAndValues)...) }
func (c component) Warn(msg string, keysAndValues ...any)  { Warn(msg, c.kv(keysAndValues)...) }
func (c component) Error(msg string, keysAndValues ...any) { Error(msg, c.kv(keysAndValues)...) }

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
