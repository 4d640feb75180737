// Package logging builds the pslog loggers used by ssmfwd.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// options maps a level name onto structured pslog options.
func options(level string) (pslog.Options, error) {
	opts := pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "", "info":
		opts.MinLevel = pslog.InfoLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	default:
		return pslog.Options{}, fmt.Errorf("unknown log level %q (want trace, debug, info or error)", level)
	}
	return opts, nil
}

// New returns a structured logger writing JSON lines to w.
func New(w io.Writer, level string) (pslog.Logger, error) {
	opts, err := options(level)
	if err != nil {
		return nil, err
	}
	return pslog.NewWithOptions(w, opts), nil
}

// OpenFile returns a structured logger appending to path. The terminal
// belongs to the UI while it runs, so its logs go here instead.
func OpenFile(path, level string) (pslog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger, err := New(f, level)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger.With("pid", os.Getpid()), f, nil
}
