// Package logger builds the structured logger shared by every relay component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options configures the logger.
type Options struct {
	// Level is one of logrus' level names; empty means "info".
	Level string
	// Format is "text" or "json"; empty means "text".
	Format string
	// File, when set, receives a copy of every line written to Output.
	File string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Logger wraps a logrus logger together with the file it may own.
type Logger struct {
	*log.Logger
	file *os.File
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(out, f)
	}

	l := log.New()
	l.SetOutput(out)
	l.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        "2006-01-02 15:04:05",
			DisableLevelTruncation: true,
		})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		if file != nil {
			file.Close()
		}
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	return &Logger{Logger: l, file: file}, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
