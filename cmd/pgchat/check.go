package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/guillermoBallester/pgchat/internal/adapter/postgres"
	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test the database connection and list the public tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.Flags())
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			return runCheck(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	fmt.Fprintln(out, "PostgreSQL Connection Test")
	fmt.Fprintln(out, "Connecting to "+config.RedactDSN(cfg.DatabaseURL)+" ...")

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:            cfg.DatabaseURL,
		MaxConns:       1,
		ConnectTimeout: 5 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintf(out, "connection error: %v\n", err)
		return errReported
	}
	defer pool.Close()

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil || one != 1 {
		fmt.Fprintf(out, "SELECT 1 failed: %v\n", err)
		return errReported
	}
	fmt.Fprintln(out, "Connection successful.")

	tables, err := postgres.NewExplorer(pool, []string{"public"}, 0).ListTables(ctx)
	if err != nil {
		fmt.Fprintf(out, "error listing tables: %v\n", err)
		return errReported
	}
	if len(tables) == 0 {
		fmt.Fprintln(out, "No tables found in database")
		return nil
	}

	fmt.Fprintln(out, "Tables found in database:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Table", "Type"})
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	for i, t := range tables {
		table.Append([]string{strconv.Itoa(i + 1), t.Name, t.Type})
	}
	table.Render()
	return nil
}
