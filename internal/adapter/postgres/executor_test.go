package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/guillermoBallester/pgchat/internal/adapter/postgres"
	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
CREATE TABLE customers (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	signed_up_at DATE NOT NULL DEFAULT CURRENT_DATE
);
COMMENT ON TABLE customers IS 'People who bought something';
COMMENT ON COLUMN customers.email IS 'Contact address';
CREATE UNIQUE INDEX customers_email_idx ON customers (email);

CREATE TABLE orders (
	id SERIAL PRIMARY KEY,
	customer_id INT NOT NULL REFERENCES customers(id),
	total NUMERIC(10,2) NOT NULL
);

INSERT INTO customers (name, email) VALUES
	('Ada', 'ada@example.com'),
	('Grace', 'grace@example.com'),
	('Linus', 'linus@example.com'),
	('Barbara', 'barbara@example.com'),
	('Ken', NULL);

INSERT INTO orders (customer_id, total) VALUES (1, 19.99), (1, 5.00), (2, 120.50);

CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100;
`

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: connStr, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "ANALYZE")
	require.NoError(t, err)

	return pool
}

func TestExecute_Select(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	res, err := executor.Execute(context.Background(), "SELECT name, email FROM customers ORDER BY id;")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "email"}, res.Columns)
	require.Equal(t, 5, res.Len())
	assert.Equal(t, "Ada", res.Rows[0][0])
	assert.Nil(t, res.Rows[4][1])
	assert.False(t, res.Truncated)
}

func TestExecute_Numeric(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	res, err := executor.Execute(context.Background(), "SELECT SUM(total) AS revenue FROM orders")
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, "145.49", res.Rows[0][0])
}

func TestExecute_Truncation(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 3, 10*time.Second)

	res, err := executor.Execute(context.Background(), "SELECT id, name FROM customers")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len(), "should be limited to maxRows=3")
	assert.True(t, res.Truncated)
}

func TestExecute_ExactlyMaxRows(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 5, 10*time.Second)

	res, err := executor.Execute(context.Background(), "SELECT id FROM customers")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Len())
	assert.False(t, res.Truncated)
}

func TestExecute_Explain(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	res, err := executor.Execute(context.Background(), "EXPLAIN SELECT * FROM customers")
	require.NoError(t, err)
	assert.NotZero(t, res.Len())
}

func TestExecute_Show(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	res, err := executor.Execute(context.Background(), "SHOW server_version")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
}

func TestExecute_ReadOnlyTransactionBlocksWrites(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 0, 10*time.Second)

	// A data-modifying CTE slips past a naive keyword check but not past
	// the read-only transaction.
	_, err := executor.Execute(context.Background(),
		"WITH gone AS (DELETE FROM orders RETURNING id) SELECT count(*) FROM gone")
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "read-only")

	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM orders").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestExecute_StatementHookBlocks(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, false, 100, 10*time.Second,
		postgres.WithStatementHook(postgres.GuardHook(domain.NewParserGuard())))

	_, err := executor.Execute(context.Background(), "DELETE FROM orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMutatingStatement)

	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM orders").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestExecute_StatementHookSeesWrappedSQL(t *testing.T) {
	pool := setupTestDB(t)
	var seen string
	executor := postgres.NewExecutor(pool, true, 10, 10*time.Second,
		postgres.WithStatementHook(func(_ context.Context, sql string) error {
			seen = sql
			return nil
		}))

	_, err := executor.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT 1\n) AS _q LIMIT 11", seen)
}

func TestExecute_TrailingCommentWithHook(t *testing.T) {
	pool := setupTestDB(t)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second,
		postgres.WithStatementHook(postgres.GuardHook(domain.NewParserGuard())))

	for _, sql := range []string{
		"SELECT count(*) FROM orders -- all orders",
		"SELECT count(*) FROM orders; -- done",
	} {
		res, err := executor.Execute(context.Background(), sql)
		require.NoError(t, err, sql)
		require.Len(t, res.Rows, 1, sql)
	}
}

func TestExecute_StatementTimeout(t *testing.T) {
	pool := setupTestDB(t)

	// pg_sleep(30) should be cancelled by statement_timeout.
	executor := postgres.NewExecutor(pool, true, 100, 1*time.Second)

	_, err := executor.Execute(context.Background(), "SELECT pg_sleep(30)")
	require.Error(t, err)

	// PostgreSQL cancels with SQLSTATE 57014 (query_canceled), or the Go
	// context expires first.
	errMsg := strings.ToLower(err.Error())
	assert.True(t,
		strings.Contains(errMsg, "statement timeout") ||
			strings.Contains(errMsg, "cancel") ||
			strings.Contains(errMsg, "57014") ||
			strings.Contains(errMsg, "deadline exceeded") ||
			strings.Contains(errMsg, "timeout"),
		"expected timeout-related error, got: %s", err,
	)
}

func TestExplorer_ListTables(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, []string{"public"}, 0)

	tables, err := explorer.ListTables(context.Background())
	require.NoError(t, err)

	byName := make(map[string]string)
	for _, tbl := range tables {
		assert.Equal(t, "public", tbl.Schema)
		byName[tbl.Name] = tbl.Type
	}
	assert.Equal(t, "table", byName["customers"])
	assert.Equal(t, "table", byName["orders"])
	assert.Equal(t, "view", byName["big_orders"])
}

func TestExplorer_DescribeTable(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil, 0)

	detail, err := explorer.DescribeTable(context.Background(), "", "customers")
	require.NoError(t, err)

	assert.Equal(t, "public", detail.Schema)
	assert.Equal(t, "People who bought something", detail.Comment)
	require.Len(t, detail.Columns, 4)
	assert.Equal(t, "id", detail.Columns[0].Name)
	assert.True(t, detail.Columns[0].IsPrimaryKey)
	assert.False(t, detail.Columns[1].IsNullable)
	assert.Equal(t, "Contact address", detail.Columns[2].Comment)

	var names []string
	for _, idx := range detail.Indexes {
		names = append(names, idx.Name)
	}
	assert.Contains(t, names, "customers_email_idx")

	require.NotNil(t, detail.SampleRows)
	assert.Equal(t, 3, detail.SampleRows.Len())
	assert.Equal(t, []string{"id", "name", "email", "signed_up_at"}, detail.SampleRows.Columns)
}

func TestExplorer_DescribeTable_ForeignKeys(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil, 2)

	detail, err := explorer.DescribeTable(context.Background(), "public", "orders")
	require.NoError(t, err)

	require.Len(t, detail.ForeignKeys, 1)
	assert.Equal(t, "customer_id", detail.ForeignKeys[0].ColumnName)
	assert.Equal(t, "customers", detail.ForeignKeys[0].ReferencedTable)
	assert.Equal(t, "id", detail.ForeignKeys[0].ReferencedColumn)
	assert.Equal(t, 2, detail.SampleRows.Len())
}

func TestExplorer_DescribeTable_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	explorer := postgres.NewExplorer(pool, nil, 0)

	_, err := explorer.DescribeTable(context.Background(), "", "nope")
	assert.ErrorIs(t, err, port.ErrTableNotFound)

	_, err = explorer.DescribeTable(context.Background(), "public", "nope")
	assert.ErrorIs(t, err, port.ErrTableNotFound)
}
