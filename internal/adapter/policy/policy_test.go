package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	path := writeTempFile(t, `
tables:
  public.users:
    description: "Registered platform users"
    columns:
      mrr: "Monthly Recurring Revenue in cents"
      email:
        description: "Login address"
        mask: partial
      ssn:
        mask: "null"
  public.orders:
    description: "Purchase orders"
sample_questions:
  - "How many users signed up last month?"
  - "List the top 5 products by sales."
`)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, pol.Tables, 2)

	users := pol.Tables["public.users"]
	assert.Equal(t, "Registered platform users", users.Description)
	assert.Equal(t, "Monthly Recurring Revenue in cents", users.Columns["mrr"].Description)
	assert.Empty(t, users.Columns["mrr"].Mask)
	assert.Equal(t, domain.MaskPartial, users.Columns["email"].Mask)
	assert.Equal(t, domain.MaskNull, users.Columns["ssn"].Mask)
	assert.Equal(t, []string{"How many users signed up last month?", "List the top 5 products by sales."}, pol.SampleQuestions)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "unknown mask",
			yaml:    "tables:\n  public.users:\n    columns:\n      email:\n        mask: encrypt\n",
			wantErr: []string{"invalid value", "encrypt"},
		},
		{
			name:    "empty table key",
			yaml:    "tables:\n  \"\":\n    description: bad\n",
			wantErr: []string{"empty key"},
		},
		{
			name:    "unqualified table key",
			yaml:    "tables:\n  users:\n    description: bad\n",
			wantErr: []string{"schema.table"},
		},
		{
			name:    "empty column key",
			yaml:    "tables:\n  public.users:\n    columns:\n      \"\": bad\n",
			wantErr: []string{"columns contains an empty key"},
		},
		{
			name:    "conflicting masks",
			yaml:    "tables:\n  public.users:\n    columns:\n      email:\n        mask: redact\n  public.orders:\n    columns:\n      email:\n        mask: hash\n",
			wantErr: []string{"conflicting masks", "email"},
		},
		{
			name:    "blank sample question",
			yaml:    "sample_questions:\n  - \"  \"\n",
			wantErr: []string{"sample_questions[0]"},
		},
		{
			name:    "malformed yaml",
			yaml:    "tables: [invalid",
			wantErr: []string{"parsing policy YAML"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeTempFile(t, tt.yaml))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadFromFile_SameMaskTwiceIsFine(t *testing.T) {
	pol, err := LoadFromFile(writeTempFile(t, `
tables:
  public.users:
    columns:
      email: {mask: redact}
  public.orders:
    columns:
      email: {mask: redact}
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.MaskType{"email": domain.MaskRedact}, pol.Masks())
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/policy.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMasks_NilPolicy(t *testing.T) {
	var pol *Policy
	assert.Nil(t, pol.Masks())
}

func TestMergeTableDetail(t *testing.T) {
	tables := map[string]TableContext{
		"public.users": {
			Description: "From YAML",
			Columns: map[string]ColumnContext{
				"email": {Description: "Email from YAML"},
				"mrr":   {Description: "MRR from YAML"},
			},
		},
	}

	t.Run("fills empty comments", func(t *testing.T) {
		detail := &port.TableDetail{
			Schema: "public",
			Name:   "users",
			Columns: []port.ColumnInfo{
				{Name: "id"},
				{Name: "email"},
				{Name: "mrr", Comment: "From Postgres"},
			},
		}
		MergeTableDetail(detail, tables)

		assert.Equal(t, "From YAML", detail.Comment)
		assert.Empty(t, detail.Columns[0].Comment)
		assert.Equal(t, "Email from YAML", detail.Columns[1].Comment)
		assert.Equal(t, "From Postgres", detail.Columns[2].Comment)
	})

	t.Run("database comment wins", func(t *testing.T) {
		detail := &port.TableDetail{Schema: "public", Name: "users", Comment: "From Postgres"}
		MergeTableDetail(detail, tables)
		assert.Equal(t, "From Postgres", detail.Comment)
	})

	t.Run("other schema untouched", func(t *testing.T) {
		detail := &port.TableDetail{Schema: "audit", Name: "users"}
		MergeTableDetail(detail, tables)
		assert.Empty(t, detail.Comment)
	})

	t.Run("nil detail", func(t *testing.T) {
		assert.NotPanics(t, func() { MergeTableDetail(nil, tables) })
	})
}

func TestMergeTableInfoList(t *testing.T) {
	tables := map[string]TableContext{
		"public.users":  {Description: "Platform users"},
		"public.orders": {Description: "Purchase orders"},
	}
	list := []port.TableInfo{
		{Schema: "public", Name: "users"},
		{Schema: "public", Name: "orders", Comment: "Existing comment"},
		{Schema: "public", Name: "products"},
	}

	MergeTableInfoList(list, tables)

	assert.Equal(t, "Platform users", list[0].Comment)
	assert.Equal(t, "Existing comment", list[1].Comment)
	assert.Empty(t, list[2].Comment)
}

func TestExplorer_DescribeTable(t *testing.T) {
	inner := &stubExplorer{
		detail: &port.TableDetail{
			Schema:  "public",
			Name:    "users",
			Columns: []port.ColumnInfo{{Name: "id"}, {Name: "email"}},
			SampleRows: &domain.Result{
				Columns: []string{"id", "email"},
				Rows: [][]any{
					{int32(1), "alice@example.com"},
					{int32(2), nil},
				},
			},
		},
	}
	pol := &Policy{Tables: map[string]TableContext{
		"public.users": {
			Description: "Registered users",
			Columns: map[string]ColumnContext{
				"email": {Description: "Login address", Mask: domain.MaskRedact},
			},
		},
	}}

	detail, err := NewExplorer(inner, pol).DescribeTable(context.Background(), "public", "users")
	require.NoError(t, err)

	assert.Equal(t, "Registered users", detail.Comment)
	assert.Equal(t, "Login address", detail.Columns[1].Comment)
	assert.Equal(t, "***", detail.SampleRows.Rows[0][1])
	assert.Nil(t, detail.SampleRows.Rows[1][1])
	assert.Equal(t, int32(1), detail.SampleRows.Rows[0][0])
}

func TestExplorer_ListTables(t *testing.T) {
	inner := &stubExplorer{tables: []port.TableInfo{{Schema: "public", Name: "users"}}}
	pol := &Policy{Tables: map[string]TableContext{"public.users": {Description: "Registered users"}}}

	tables, err := NewExplorer(inner, pol).ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Registered users", tables[0].Comment)
}

func TestExplorer_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	e := NewExplorer(&stubExplorer{err: boom}, &Policy{})

	_, err := e.ListTables(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = e.DescribeTable(context.Background(), "", "users")
	assert.ErrorIs(t, err, boom)
}

type stubExplorer struct {
	tables []port.TableInfo
	detail *port.TableDetail
	err    error
}

func (s *stubExplorer) ListTables(context.Context) ([]port.TableInfo, error) {
	return s.tables, s.err
}

func (s *stubExplorer) DescribeTable(context.Context, string, string) (*port.TableDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detail, nil
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
