// Package logging builds the charmbracelet logger used by the lde tool.
// It is configured from LDE_LOG_* environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options controls how a logger is built.
type Options struct {
	Level  log.Level
	Prefix string
	Format log.Formatter
	// File logging writes lde-<timestamp>-debug.log under Dir instead of
	// the given writer.
	ToFile bool
	Dir    string
}

// OptionsFromEnv reads the logger options:
//
//	LDE_LOG_LEVEL    debug, info, warn, error (default: info)
//	LDE_LOG_PREFIX   prefix for log messages (default: "lde ")
//	LDE_LOG_FORMAT   text, json or logfmt (default: text)
//	LDE_LOG_TO_FILE  "1" logs to a timestamped file instead of stderr
//	LDE_LOG_DIR      directory of that file (default: current directory)
func OptionsFromEnv() Options {
	o := Options{
		Level:  Level(),
		Prefix: os.Getenv("LDE_LOG_PREFIX"),
		Format: Format(),
		ToFile: os.Getenv("LDE_LOG_TO_FILE") == "1",
		Dir:    os.Getenv("LDE_LOG_DIR"),
	}
	if o.Prefix == "" {
		o.Prefix = "lde "
	}
	return o
}

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// WithTables returns a logger whose lines name the opcode tables lengths
// are measured with. Both loggers share the writer.
func (lc *LoggerCloser) WithTables(tables fmt.Stringer) *LoggerCloser {
	return &LoggerCloser{
		Logger: lc.With("tables", tables.String()),
		closer: lc.closer,
	}
}

// New builds a logger writing to w, or to a log file when o.ToFile is set.
// A log file that cannot be created falls back to w.
func New(w io.Writer, o Options) *LoggerCloser {
	if o.ToFile {
		name := filepath.Join(o.Dir, fmt.Sprintf("lde-%s-debug.log", time.Now().Format("20060102-150405")))
		if f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: o.Format == log.TextFormatter,
		TimeFormat:      time.Kitchen,
		Formatter:       o.Format,
		Level:           o.Level,
		Prefix:          strings.TrimSpace(o.Prefix),
	})

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}
	return &LoggerCloser{Logger: lg, closer: closer}
}

// NewLoggerWithWriter creates a new logger with the provided writer and the
// environment's options, never logging to a file.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	o := OptionsFromEnv()
	o.ToFile = false
	return New(w, o)
}

// NewLogger creates a new logger from the environment, on stderr unless
// LDE_LOG_TO_FILE is set.
func NewLogger() *LoggerCloser {
	return New(os.Stderr, OptionsFromEnv())
}

// Level returns the level named by LDE_LOG_LEVEL, info by default.
func Level() log.Level {
	switch os.Getenv("LDE_LOG_LEVEL") {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// Format returns the formatter named by LDE_LOG_FORMAT, text by default.
func Format() log.Formatter {
	switch strings.ToLower(os.Getenv("LDE_LOG_FORMAT")) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	}
	return log.TextFormatter
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return Level() == log.DebugLevel
}
