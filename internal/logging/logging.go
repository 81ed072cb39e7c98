// Package logging wraps charmbracelet/log into the structured logger used
// throughout the engine, keyed by component so compiler, graph, thunk, and
// transition output can be told apart in a shared stream.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger.
type Options struct {
	Writer    io.Writer
	Level     string // debug, info, warn, error
	Component string
	JSON      bool
}

// Logger is a thin, component-tagged wrapper over *charmbracelet/log.Logger.
type Logger struct {
	base *cblog.Logger
}

// New builds a Logger from Options, defaulting to stderr at info level.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	formatter := cblog.TextFormatter
	if opts.JSON {
		formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})
	if opts.Component != "" {
		base = base.With("component", opts.Component)
	}

	return &Logger{base: base}, nil
}

// With returns a derived logger carrying additional structured fields.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{base: l.base.With(keyvals...)}
}

func (l *Logger) Debug(msg string, keyvals ...any) { l.base.Debug(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...any)  { l.base.Info(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...any)  { l.base.Warn(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...any) { l.base.Error(msg, keyvals...) }

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	l, _ := New(Options{Writer: io.Discard})
	return l
}
