package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GuardKeyword = "keyword"
	GuardParser  = "parser"
	GuardBoth    = "both"
)

type Config struct {
	// Database connection.
	DatabaseURL  string
	MaxRows      int
	QueryTimeout time.Duration
	ExplainOnly  bool

	// Schema visibility.
	Schemas        []string
	SchemaCacheTTL time.Duration
	PolicyFile     string // optional path to policy YAML

	// Guards.
	GuardMode   string   // keyword, parser or both; the pre-execution hook is always parser
	GuardAllow  []string // leading keywords the keyword guard accepts
	InputFilter bool     // scan chat questions for mutating verbs

	LLM LLM

	// Agent.
	AgentMaxRounds int
	HistoryTurns   int

	// Logging and audit.
	LogLevel  slog.Level
	LogFormat string // text or json
	LogFile   string // empty means stderr
	AuditLog  string // path to NDJSON audit log file

	// Connection pool.
	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration

	OTelEnabled bool
}

// LLM holds provider selection and credentials. Credentials are checked by
// the commands that actually talk to a model.
type LLM struct {
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int64

	AnthropicAPIKey    string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	GoogleAPIKey       string
	CohereAPIKey       string
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL  *string
	LogLevel     *string
	LogFormat    *string
	MaxRows      *int
	QueryTimeout *time.Duration
	PolicyFile   *string
	GuardMode    *string
	Provider     *string
	Model        *string
	OTelEnabled  bool
	ExplainOnly  bool
	AuditLog     string

	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// LoadDotEnv reads path into the environment without replacing variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MaxRows:             100,
		QueryTimeout:        10 * time.Second,
		Schemas:             []string{"public"},
		SchemaCacheTTL:      5 * time.Minute,
		GuardMode:           GuardBoth,
		GuardAllow:          []string{"SELECT", "WITH", "EXPLAIN", "SHOW"},
		InputFilter:         true,
		LLM:                 LLM{Provider: "anthropic", AWSRegion: "us-east-1"},
		AgentMaxRounds:      10,
		HistoryTurns:        6,
		LogLevel:            slog.LevelInfo,
		LogFormat:           "text",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

func loadEnvVars(cfg *Config) error {
	dsn, err := databaseURLFromEnv()
	if err != nil {
		return err
	}
	cfg.DatabaseURL = dsn

	if v := os.Getenv("MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}

	if err := envDuration("QUERY_TIMEOUT", &cfg.QueryTimeout); err != nil {
		return err
	}
	if err := envBool("EXPLAIN_ONLY", &cfg.ExplainOnly); err != nil {
		return err
	}

	if v := os.Getenv("SCHEMAS"); v != "" {
		cfg.Schemas = splitList(v)
	}
	if err := envDuration("SCHEMA_CACHE_TTL", &cfg.SchemaCacheTTL); err != nil {
		return err
	}
	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("GUARD_MODE"); v != "" {
		cfg.GuardMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("GUARD_ALLOW"); v != "" {
		cfg.GuardAllow = splitList(v)
	}
	if err := envBool("INPUT_FILTER", &cfg.InputFilter); err != nil {
		return err
	}

	if err := loadLLMEnvVars(&cfg.LLM); err != nil {
		return err
	}

	if err := envPositiveInt("AGENT_MAX_ROUNDS", &cfg.AgentMaxRounds); err != nil {
		return err
	}
	if v := os.Getenv("HISTORY_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid HISTORY_TURNS value %q: must be a non-negative integer", v)
		}
		cfg.HistoryTurns = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if err := envBool("OTEL_ENABLED", &cfg.OTelEnabled); err != nil {
		return err
	}

	return loadPoolEnvVars(cfg)
}

// databaseURLFromEnv prefers DATABASE_URL and otherwise assembles a URL
// from the DB_* parts.
func databaseURLFromEnv() (string, error) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}

	port := envOr("DB_PORT", "5432")
	if !isDigits(port) {
		return "", fmt.Errorf("invalid DB_PORT value %q: must be a number", port)
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(envOr("DB_USER", "postgres"), envOr("DB_PASSWORD", "postgres")),
		Host:   net.JoinHostPort(envOr("DB_HOST", "localhost"), port),
		Path:   "/" + envOr("DB_NAME", "postgres"),
	}
	return u.String(), nil
}

func loadLLMEnvVars(l *LLM) error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		l.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	l.Model = os.Getenv("LLM_MODEL")

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid LLM_TEMPERATURE value %q: %w", v, err)
		}
		l.Temperature = &f
	}
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid LLM_MAX_TOKENS value %q: must be a positive integer", v)
		}
		l.MaxTokens = n
	}

	l.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	l.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	l.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	if v := os.Getenv("AWS_REGION"); v != "" {
		l.AWSRegion = v
	}
	l.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	l.CohereAPIKey = os.Getenv("COHERE_API_KEY")
	return nil
}

func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	return envDuration("POOL_MAX_CONN_LIFETIME", &cfg.PoolMaxConnLifetime)
}

func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.LogFormat != nil {
		cfg.LogFormat = strings.ToLower(*o.LogFormat)
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return errors.New("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.GuardMode != nil {
		cfg.GuardMode = strings.ToLower(*o.GuardMode)
	}
	if o.Provider != nil {
		cfg.LLM.Provider = strings.ToLower(*o.Provider)
	}
	if o.Model != nil {
		cfg.LLM.Model = *o.Model
	}

	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return errors.New("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return errors.New("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}

	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.ExplainOnly = cfg.ExplainOnly || o.ExplainOnly
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required (set via env var or --database-url flag)")
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}

	switch cfg.GuardMode {
	case GuardKeyword, GuardParser, GuardBoth:
	default:
		return fmt.Errorf("invalid GUARD_MODE value %q: must be keyword, parser or both", cfg.GuardMode)
	}
	if len(cfg.GuardAllow) == 0 {
		return errors.New("GUARD_ALLOW must name at least one keyword")
	}

	switch cfg.LLM.Provider {
	case "anthropic", "bedrock", "gemini", "cohere":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER value %q: must be anthropic, bedrock, gemini or cohere", cfg.LLM.Provider)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT value %q: must be text or json", cfg.LogFormat)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

var dsnPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// RedactDSN hides the password in URL and key=value connection strings.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func envPositiveInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s value %q: must be a positive integer", key, v)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
