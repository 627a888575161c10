package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/guillermoBallester/pgchat/internal/config"
	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/spf13/cobra"
)

func newGuardCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "guard [SQL]",
		Short: "Check a statement against the SQL guard without running it",
		Long:  "Reads the statement from the argument, or from stdin when none is given. Prints OK or the rejection tag and exits 1 on rejection.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.Flags())
			if err != nil {
				return err
			}

			sql, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			return runGuard(cfg, sql, cmd.OutOrStdout())
		},
	}
}

func runGuard(cfg *config.Config, sql string, out io.Writer) error {
	err := newGuard(cfg).Check(sql)
	if err == nil {
		fmt.Fprintln(out, "OK")
		return nil
	}
	if rej, ok := domain.AsRejection(err); ok {
		fmt.Fprintln(out, rej.Tag())
		return errReported
	}
	return err
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Repair markdown tables read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), domain.NormalizeTables(string(in)))
			return err
		},
	}
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	in, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(in)), nil
}
