package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/lmittmann/tint"
)

// newLogger writes to LOG_FILE when set, else to stderr: stdout carries the
// chat and the MCP stdio transport. The returned close func is never nil.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func() error, error) {
	w := stderr
	closeFn := func() error { return nil }
	toFile := cfg.LogFile != ""
	if toFile {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.Kitchen,
			NoColor:    toFile,
		})
	}
	return slog.New(handler), closeFn, nil
}
