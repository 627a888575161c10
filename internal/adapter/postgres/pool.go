package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
)

type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// ConnectTimeout bounds the whole startup retry loop.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// NewPool opens a pool and waits for the server to answer a ping, retrying
// with exponential backoff. Statements are traced to the logger at debug level.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.Logger != nil {
		config.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   slogTraceLogger(cfg.Logger),
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, pool.Ping(pingCtx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("database not reachable, retrying", "attempt", attempt, "retry_in", next, "error", err)
			}
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database (%d attempts within %s): %w", attempt, timeout, err)
	}

	return pool, nil
}

// slogTraceLogger adapts pgx trace events to slog. Every pgx level maps to
// debug except errors, so query text only shows up when asked for.
func slogTraceLogger(logger *slog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		attrs := make([]slog.Attr, 0, len(data))
		for k, v := range data {
			attrs = append(attrs, slog.Any(k, v))
		}
		lvl := slog.LevelDebug
		if level == tracelog.LogLevelError {
			lvl = slog.LevelWarn
		}
		logger.LogAttrs(ctx, lvl, "pgx: "+msg, attrs...)
	})
}
