package policy

import (
	"context"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// Explorer decorates a SchemaExplorer: descriptions from the policy are
// merged in and sample rows are masked before anything reaches the model.
type Explorer struct {
	inner  port.SchemaExplorer
	policy *Policy
	masks  map[string]domain.MaskType
}

func NewExplorer(inner port.SchemaExplorer, pol *Policy) *Explorer {
	return &Explorer{inner: inner, policy: pol, masks: pol.Masks()}
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	tables, err := e.inner.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	MergeTableInfoList(tables, e.policy.Tables)
	return tables, nil
}

func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail, err := e.inner.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	MergeTableDetail(detail, e.policy.Tables)
	domain.MaskResult(detail.SampleRows, e.masks)
	return detail, nil
}
