package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/guillermoBallester/pgchat/internal/adapter/policy"
	"github.com/guillermoBallester/pgchat/internal/adapter/postgres"
	"github.com/guillermoBallester/pgchat/internal/audit"
	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/guillermoBallester/pgchat/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
)

// app is everything a database-backed command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	policy   *policy.Policy
	explorer port.SchemaExplorer
	queries  *service.QueryService
	tracer   trace.Tracer
	inst     port.Instrumentation
	closers  []func() error
}

// startup opens the logger and the database. The caller must Close the app.
func startup(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	a.closers = append([]func() error{closeLog}, a.closers...)
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.NoopTracer(),
		inst:   telemetry.NoopInstruments(),
	}

	logger.Info("starting pgchat",
		slog.String("version", version),
		slog.String("database_url", config.RedactDSN(cfg.DatabaseURL)),
		slog.String("guard_mode", cfg.GuardMode),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Bool("explain_only", cfg.ExplainOnly),
	)

	if cfg.OTelEnabled {
		prov, err := telemetry.Init(ctx, telemetry.Options{
			Version:     version,
			LLMProvider: cfg.LLM.Provider,
			GuardMode:   cfg.GuardMode,
			ExplainOnly: cfg.ExplainOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error { return prov.Shutdown(context.Background()) })
		a.tracer = prov.Tracer()
		a.inst = prov.Instruments()
		logger.Info("telemetry enabled")
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
		Logger:          logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	var explorer port.SchemaExplorer = postgres.NewExplorer(pool, cfg.Schemas, 0)
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		a.policy = pol
		explorer = policy.NewExplorer(explorer, pol)
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile), slog.Int("tables", len(pol.Tables)))
	}
	// Outermost: masked sample rows are cached as served.
	a.explorer = postgres.NewCachedExplorer(explorer, cfg.SchemaCacheTTL)

	var executor port.QueryExecutor = postgres.NewExecutor(pool, true, cfg.MaxRows, cfg.QueryTimeout,
		postgres.WithStatementHook(statementHook()),
	)
	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
	}

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}
	a.closers = append(a.closers, auditor.Close)

	a.queries = service.NewQueryService(newGuard(cfg), executor, auditor, logger, a.policy.Masks(), a.tracer, a.inst)
	return a, nil
}

// toolset builds the agent tools. checker may be nil.
func (a *app) toolset(checker port.Generator) *service.Toolset {
	return service.NewToolset(a.explorer, a.queries, checker, a.inst)
}

func (a *app) samples() []string {
	if a.policy == nil {
		return nil
	}
	return a.policy.SampleQuestions
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newGuard builds the statement guard GUARD_MODE names.
// statementHook checks the rewritten SQL right before it reaches the server.
// It is parser-only in every GUARD_MODE: the keyword check already ran on the
// model's SQL, and the row-cap wrapper always leads with SELECT, so only the
// parser can tell whether the wrapped body still holds a single read.
func statementHook() postgres.StatementHook {
	return postgres.GuardHook(domain.NewParserGuard())
}

func newGuard(cfg *config.Config) port.StatementGuard {
	keyword := domain.NewKeywordGuard(cfg.GuardAllow, nil)
	switch cfg.GuardMode {
	case config.GuardKeyword:
		return keyword
	case config.GuardParser:
		return domain.NewParserGuard()
	default:
		return domain.NewChainGuard(keyword, domain.NewParserGuard())
	}
}
