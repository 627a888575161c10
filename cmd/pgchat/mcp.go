package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/guillermoBallester/pgchat/internal/adapter/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the schema and guarded query tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := startup(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			s := mcp.NewServer(version, a.explorer, a.toolset(nil), a.queries, a.logger, a.tracer, a.inst)
			stdio := mcpserver.NewStdioServer(s)

			a.logger.Info("serving MCP over stdio")
			if err := stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
				return fmt.Errorf("stdio server: %w", err)
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}
