package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/guillermoBallester/pgchat/internal/adapter/chat"
	"github.com/guillermoBallester/pgchat/internal/adapter/llm"
	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newChatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with the database (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g)
		},
	}
}

func runChat(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := g.load(cmd.Flags())
	if err != nil {
		return err
	}
	// Fail on missing credentials before touching the database.
	llmCfg := llmConfig(cfg)
	if err := llmCfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := startup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	llmCfg.Logger = a.logger
	gen, closeGen, err := llm.New(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("creating %s client: %w", cfg.LLM.Provider, err)
	}
	defer func() { _ = closeGen() }()

	tools := a.toolset(gen)
	agent, err := service.NewAgent(service.AgentConfig{
		Logger:       a.logger,
		Generator:    gen,
		Tools:        tools.Tools(),
		DatabaseInfo: tools.DatabaseInfo,
		MaxRounds:    cfg.AgentMaxRounds,
		Tracer:       a.tracer,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	var gate service.TextScanner
	if cfg.InputFilter {
		gate = domain.NewKeywordGuard(cfg.GuardAllow, nil)
	}
	session := service.NewSession(service.SessionConfig{
		Runner:       agent,
		InputGate:    gate,
		HistoryTurns: cfg.HistoryTurns,
		Logger:       a.logger,
		Inst:         a.inst,
	})
	defer func() { _ = session.Close() }()

	out := cmd.OutOrStdout()
	console, err := chat.NewConsole(chat.Config{
		Session: session,
		Catalog: tools,
		Samples: a.samples(),
		In:      cmd.InOrStdin(),
		Out:     out,
		Spinner: isTerminal(out),
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("chat ready", "provider", cfg.LLM.Provider, "tools", len(tools.Tools()))
	if err := console.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:           cfg.LLM.Provider,
		Model:              cfg.LLM.Model,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
		StopSequences:      []string{service.StopSequence},
		AnthropicAPIKey:    cfg.LLM.AnthropicAPIKey,
		AWSAccessKeyID:     cfg.LLM.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.LLM.AWSSecretAccessKey,
		AWSRegion:          cfg.LLM.AWSRegion,
		GoogleAPIKey:       cfg.LLM.GoogleAPIKey,
		CohereAPIKey:       cfg.LLM.CohereAPIKey,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

