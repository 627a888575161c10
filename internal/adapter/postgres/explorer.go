package postgres

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSampleRows = 3

type Explorer struct {
	pool       *pgxpool.Pool
	schemas    []string // empty means all non-system schemas
	sampleRows int
}

// NewExplorer builds an explorer over schemas. sampleRows <= 0 uses 3.
func NewExplorer(pool *pgxpool.Pool, schemas []string, sampleRows int) *Explorer {
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	return &Explorer{pool: pool, schemas: schemas, sampleRows: sampleRows}
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter(e.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type, &t.RowEstimate, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail := &port.TableDetail{Name: tableName}

	var err error
	if schema != "" {
		detail.Schema = schema
		detail.Comment, err = e.fetchTableComment(ctx, schema, tableName)
	} else {
		detail.Schema, detail.Comment, err = e.fetchTableMeta(ctx, tableName)
	}
	if err != nil {
		return nil, err
	}

	detail.Columns, err = e.fetchColumns(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	if err := e.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}

	detail.ForeignKeys, err = e.fetchForeignKeys(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	detail.Indexes, err = e.fetchIndexes(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	// Sample rows are enrichment; a table we cannot read still gets described.
	if samples, err := e.fetchSampleRows(ctx, detail.Schema, tableName); err == nil {
		detail.SampleRows = samples
	}

	return detail, nil
}
