package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

// errReported marks failures whose message was already printed, so main
// only sets the exit status.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand. Only
// flags the user actually set become overrides.
type globalFlags struct {
	envFile      string
	databaseURL  string
	logLevel     string
	logFormat    string
	maxRows      int
	queryTimeout time.Duration
	policyFile   string
	guardMode    string
	provider     string
	model        string
	explainOnly  bool
	otel         bool
	auditLog     string

	poolMaxConns        int32
	poolMinConns        int32
	poolMaxConnLifetime time.Duration
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	fs.StringVar(&g.databaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL and DB_*)")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
	fs.IntVar(&g.maxRows, "max-rows", 0, "maximum rows returned per query")
	fs.DurationVar(&g.queryTimeout, "query-timeout", 0, "per-query timeout")
	fs.StringVar(&g.policyFile, "policy-file", "", "YAML file with table descriptions, masks and sample questions")
	fs.StringVar(&g.guardMode, "guard-mode", "", "SQL guard: keyword, parser or both")
	fs.StringVar(&g.provider, "provider", "", "LLM provider: anthropic, bedrock, gemini or cohere")
	fs.StringVar(&g.model, "model", "", "LLM model id")
	fs.BoolVar(&g.explainOnly, "explain-only", false, "plan statements with EXPLAIN instead of running them")
	fs.BoolVar(&g.otel, "otel", false, "export traces and metrics over OTLP")
	fs.StringVar(&g.auditLog, "audit-log", "", "append an NDJSON audit record per statement to this file")
	fs.Int32Var(&g.poolMaxConns, "pool-max-conns", 0, "maximum pool connections")
	fs.Int32Var(&g.poolMinConns, "pool-min-conns", 0, "minimum idle pool connections")
	fs.DurationVar(&g.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "maximum connection lifetime")
}

func (g *globalFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	o := config.Overrides{
		ExplainOnly: g.explainOnly,
		OTelEnabled: g.otel,
		AuditLog:    g.auditLog,
	}
	if fs.Changed("database-url") {
		o.DatabaseURL = &g.databaseURL
	}
	if fs.Changed("log-level") {
		o.LogLevel = &g.logLevel
	}
	if fs.Changed("log-format") {
		o.LogFormat = &g.logFormat
	}
	if fs.Changed("max-rows") {
		o.MaxRows = &g.maxRows
	}
	if fs.Changed("query-timeout") {
		o.QueryTimeout = &g.queryTimeout
	}
	if fs.Changed("policy-file") {
		o.PolicyFile = &g.policyFile
	}
	if fs.Changed("guard-mode") {
		o.GuardMode = &g.guardMode
	}
	if fs.Changed("provider") {
		o.Provider = &g.provider
	}
	if fs.Changed("model") {
		o.Model = &g.model
	}
	if fs.Changed("pool-max-conns") {
		o.PoolMaxConns = &g.poolMaxConns
	}
	if fs.Changed("pool-min-conns") {
		o.PoolMinConns = &g.poolMinConns
	}
	if fs.Changed("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = &g.poolMaxConnLifetime
	}
	return o
}

// load reads the dotenv file, the environment and the flags, in that order.
func (g *globalFlags) load(fs *pflag.FlagSet) (*config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.overrides(fs))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// parseFlags parses args as global flags only.
func parseFlags(args []string) (config.Overrides, error) {
	var g globalFlags
	fs := pflag.NewFlagSet("pgchat", pflag.ContinueOnError)
	fs.Usage = func() {}
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return g.overrides(fs), nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "pgchat",
		Short:         "Ask questions about a PostgreSQL database in plain language.",
		Long:          "pgchat answers natural-language questions by letting a language model explore the schema and run guarded, read-only SQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g)
		},
	}
	g.register(root.PersistentFlags())

	root.AddCommand(
		newChatCmd(g),
		newMCPCmd(g),
		newCheckCmd(g),
		newGuardCmd(g),
		newNormalizeCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pgchat "+version)
		},
	}
}
