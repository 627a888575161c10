package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o config.Overrides)
	}{
		{
			name: "no flags",
			args: []string{},
			check: func(t *testing.T, o config.Overrides) {
				assert.False(t, o.ExplainOnly)
				assert.False(t, o.OTelEnabled)
				assert.Nil(t, o.DatabaseURL)
				assert.Nil(t, o.MaxRows)
				assert.Nil(t, o.GuardMode)
			},
		},
		{
			name: "explain-only",
			args: []string{"--explain-only"},
			check: func(t *testing.T, o config.Overrides) {
				assert.True(t, o.ExplainOnly)
			},
		},
		{
			name: "database-url",
			args: []string{"--database-url", "postgres://localhost:5432/test"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.DatabaseURL)
				assert.Equal(t, "postgres://localhost:5432/test", *o.DatabaseURL)
			},
		},
		{
			name: "max-rows",
			args: []string{"--max-rows", "500"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.MaxRows)
				assert.Equal(t, 500, *o.MaxRows)
			},
		},
		{
			name: "query-timeout",
			args: []string{"--query-timeout", "45s"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.QueryTimeout)
				assert.Equal(t, 45*time.Second, *o.QueryTimeout)
			},
		},
		{
			name: "guard and provider",
			args: []string{"--guard-mode", "parser", "--provider", "gemini", "--model", "gemini-1.5-pro"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.GuardMode)
				assert.Equal(t, "parser", *o.GuardMode)
				require.NotNil(t, o.Provider)
				assert.Equal(t, "gemini", *o.Provider)
				require.NotNil(t, o.Model)
				assert.Equal(t, "gemini-1.5-pro", *o.Model)
			},
		},
		{
			name: "otel",
			args: []string{"--otel"},
			check: func(t *testing.T, o config.Overrides) {
				assert.True(t, o.OTelEnabled)
			},
		},
		{
			name: "pool settings",
			args: []string{"--pool-max-conns", "20", "--pool-min-conns", "2", "--pool-max-conn-lifetime", "1h"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.PoolMaxConns)
				assert.Equal(t, int32(20), *o.PoolMaxConns)
				require.NotNil(t, o.PoolMinConns)
				assert.Equal(t, int32(2), *o.PoolMinConns)
				require.NotNil(t, o.PoolMaxConnLifetime)
				assert.Equal(t, time.Hour, *o.PoolMaxConnLifetime)
			},
		},
		{
			name: "audit-log",
			args: []string{"--audit-log", "/tmp/audit.ndjson"},
			check: func(t *testing.T, o config.Overrides) {
				assert.Equal(t, "/tmp/audit.ndjson", o.AuditLog)
			},
		},
		{
			name: "log settings",
			args: []string{"--log-level", "debug", "--log-format", "json"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.LogLevel)
				assert.Equal(t, "debug", *o.LogLevel)
				require.NotNil(t, o.LogFormat)
				assert.Equal(t, "json", *o.LogFormat)
			},
		},
		{
			name: "policy-file",
			args: []string{"--policy-file", "policy.yaml"},
			check: func(t *testing.T, o config.Overrides) {
				require.NotNil(t, o.PolicyFile)
				assert.Equal(t, "policy.yaml", *o.PolicyFile)
			},
		},
		{
			name:    "unknown flag returns error",
			args:    []string{"--unknown-flag"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overrides, err := parseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, overrides)
			}
		})
	}
}

func TestNewGuard(t *testing.T) {
	tests := []struct {
		mode string
		sql  string
		want string // rejection tag, empty when allowed
	}{
		{config.GuardBoth, "SELECT 1", ""},
		{config.GuardBoth, "DROP TABLE users", "mutating_statement:DROP"},
		{config.GuardBoth, "SELECT 1; SELECT 2", "multiple_statements"},
		{config.GuardBoth, "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", "mutating_statement:DELETE"},
		{config.GuardKeyword, "SELECT 1; SELECT 2", ""},
		{config.GuardKeyword, "(SELECT 1)", "not_allowed"},
		{config.GuardParser, "(SELECT 1)", ""},
		{config.GuardParser, "VACUUM", "not_allowed:VACUUM"},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.sql, func(t *testing.T) {
			cfg := &config.Config{GuardMode: tt.mode, GuardAllow: []string{"SELECT", "WITH", "EXPLAIN", "SHOW"}}
			var out bytes.Buffer
			err := runGuard(cfg, tt.sql, &out)
			if tt.want == "" {
				require.NoError(t, err)
				assert.Equal(t, "OK\n", out.String())
				return
			}
			assert.ErrorIs(t, err, errReported)
			assert.Equal(t, tt.want+"\n", out.String())
		})
	}
}

func TestStatementHook(t *testing.T) {
	hook := statementHook()
	ctx := context.Background()

	// The keyword guard flags the literal; the hook does not.
	require.NoError(t, hook(ctx, "SELECT 'please delete me'"))
	require.NoError(t, hook(ctx, "SELECT * FROM (SELECT 1\n) AS _q LIMIT 11"))

	err := hook(ctx, "SELECT * FROM (SELECT 1; DROP TABLE users\n) AS _q LIMIT 11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked before execution")
}

// execute runs the root command in a clean environment.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "DB_PORT", "GUARD_MODE", "GUARD_ALLOW", "LLM_PROVIDER", "LOG_LEVEL", "LOG_FORMAT", "MAX_ROWS"} {
		t.Setenv(k, "")
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestGuardCommand(t *testing.T) {
	out, err := execute(t, "", "guard", "SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	out, err = execute(t, "UPDATE users SET name = 'x'\n", "guard")
	assert.ErrorIs(t, err, errReported)
	assert.Equal(t, "mutating_statement:UPDATE\n", out)

	out, err = execute(t, "", "guard", "--guard-mode", "keyword", "SHOW search_path")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, "Results:\n|a|b|\n|1|2|\nDone", "normalize")
	require.NoError(t, err)
	assert.Equal(t, "Results:\n\n|a|b|\n|1|2|\n\nDone", out)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "pgchat dev\n", out)
}

func TestInvalidConfigFails(t *testing.T) {
	_, err := execute(t, "", "guard", "--guard-mode", "regex", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GUARD_MODE")
}

func TestNewLogger(t *testing.T) {
	t.Run("json to stderr", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closeFn, err := newLogger(&config.Config{LogFormat: "json", LogLevel: slog.LevelInfo}, &buf)
		require.NoError(t, err)
		defer func() { _ = closeFn() }()

		logger.Debug("hidden")
		logger.Info("visible", "k", "v")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "visible", entry["msg"])
		assert.Equal(t, "v", entry["k"])
	})

	t.Run("text to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		var stderr bytes.Buffer
		logger, closeFn, err := newLogger(&config.Config{LogFormat: "text", LogLevel: slog.LevelInfo, LogFile: path}, &stderr)
		require.NoError(t, err)

		logger.Info("written to file")
		require.NoError(t, closeFn())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
		assert.NotContains(t, string(data), "\x1b[", "file logs are not colored")
		assert.Empty(t, stderr.String())
	})
}

func TestLLMConfig(t *testing.T) {
	temp := 0.5
	cfg := &config.Config{LLM: config.LLM{
		Provider:        "anthropic",
		Model:           "claude-x",
		Temperature:     &temp,
		MaxTokens:       512,
		AnthropicAPIKey: "sk-test",
		AWSRegion:       "eu-west-1",
	}}

	got := llmConfig(cfg)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "claude-x", got.Model)
	assert.Equal(t, &temp, got.Temperature)
	assert.Equal(t, int64(512), got.MaxTokens)
	assert.Equal(t, []string{service.StopSequence}, got.StopSequences)
	assert.Equal(t, "eu-west-1", got.AWSRegion)
	assert.NoError(t, got.Validate())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.False(t, isTerminal(f))
}
