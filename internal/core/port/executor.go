package port

import (
	"context"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
)

// QueryExecutor runs a single, already validated, read-only statement.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*domain.Result, error)
}
