package postgres

import (
	"context"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// ExplainOnlyExecutor is a dry-run decorator: statements are planned, never
// run. SHOW passes through unchanged since it has no plan.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) (*domain.Result, error) {
	if !isExplain(sql) && !isShow(sql) {
		sql = "EXPLAIN " + sql
	}
	return e.inner.Execute(ctx, sql)
}
