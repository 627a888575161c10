package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatementHook sees the exact SQL about to be sent to the server and can
// veto it. It runs after all rewriting, so it checks what really executes.
type StatementHook func(ctx context.Context, sql string) error

// GuardHook adapts a statement guard to a StatementHook.
func GuardHook(guard interface{ Check(string) error }) StatementHook {
	return func(_ context.Context, sql string) error {
		if err := guard.Check(sql); err != nil {
			return fmt.Errorf("blocked before execution: %w", err)
		}
		return nil
	}
}

type Executor struct {
	pool         *pgxpool.Pool
	readOnly     bool
	maxRows      int
	queryTimeout time.Duration
	hook         StatementHook
}

type ExecutorOption func(*Executor)

// WithStatementHook installs a last-line check on every outgoing statement.
func WithStatementHook(h StatementHook) ExecutorOption {
	return func(e *Executor) { e.hook = h }
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, maxRows int, queryTimeout time.Duration, opts ...ExecutorOption) *Executor {
	e := &Executor{
		pool:         pool,
		readOnly:     readOnly,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, sql string) (*domain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	final := wrapWithLimit(sql, e.maxRows)
	if e.hook != nil {
		if err := e.hook(ctx, final); err != nil {
			return nil, err
		}
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the server-side timeout to this transaction.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, final)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	res, err := collectResult(rows, e.maxRows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return res, nil
}

// wrapWithLimit caps row count server-side, asking for one extra row so
// truncation can be detected. EXPLAIN and SHOW cannot be wrapped in a
// subquery. The closing paren goes on its own line so a comment left in
// the body cannot swallow it.
func wrapWithLimit(sql string, maxRows int) string {
	sql = domain.TrimStatement(sql)
	if maxRows <= 0 || isExplain(sql) || isShow(sql) {
		return sql
	}
	return fmt.Sprintf("SELECT * FROM (%s\n) AS _q LIMIT %d", sql, maxRows+1)
}

func isExplain(sql string) bool {
	return hasLeadingKeyword(sql, "EXPLAIN")
}

func isShow(sql string) bool {
	return hasLeadingKeyword(sql, "SHOW")
}

func hasLeadingKeyword(sql, kw string) bool {
	s := strings.TrimSpace(sql)
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	return len(s) == len(kw) || !isIdentChar(s[len(kw)])
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
