// Package chat renders a conversation with the database in the terminal.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/pterm/pterm"
)

const (
	title    = "Chat with Your PostgreSQL Database"
	caption  = "This application operates in read-only mode and only allows SELECT queries."
	greeting = "Hello! I can help you query your PostgreSQL database. What would you like to know?"
)

// DefaultSamples are offered by /samples when the policy file has none.
var DefaultSamples = []string{
	"How many users signed up last month?",
	"What is the total revenue for this year?",
	"List the top 5 products by sales.",
	"Show me the average order value.",
}

// Asker is the conversation the console drives. *service.Session satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (*service.Turn, error)
	History() []service.Message
	LastTurn() *service.Turn
}

// Catalog answers the sidebar-style commands. *service.Toolset satisfies it.
type Catalog interface {
	TableNames(ctx context.Context) ([]string, error)
	DatabaseInfo(ctx context.Context) (string, error)
}

type Config struct {
	Session Asker
	Catalog Catalog
	// Samples overrides DefaultSamples when non-empty.
	Samples []string
	In      io.Reader
	Out     io.Writer
	// Spinner shows "Thinking..." while a turn runs. Off for non-terminals.
	Spinner bool
	Logger  *slog.Logger
}

// Console is a line-oriented chat loop.
type Console struct {
	session Asker
	catalog Catalog
	samples []string
	in      io.Reader
	out     io.Writer
	spinner bool
	logger  *slog.Logger
}

func NewConsole(cfg Config) (*Console, error) {
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("input and output are required")
	}
	c := &Console{
		session: cfg.Session,
		catalog: cfg.Catalog,
		samples: cfg.Samples,
		in:      cfg.In,
		out:     cfg.Out,
		spinner: cfg.Spinner,
		logger:  cfg.Logger,
	}
	if len(c.samples) == 0 {
		c.samples = DefaultSamples
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Run prints the banner and serves questions until /quit, end of input or
// ctx cancellation. Failed turns are reported and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	c.banner()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, scanErr := c.readLines(readCtx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.prompt()

		var line string
		select {
		case <-ctx.Done():
			c.println()
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				c.println()
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return nil
			}
			continue
		}
		c.ask(ctx, line)
	}
}

// readLines scans input on its own goroutine so a blocked read never
// delays shutdown. The error channel is filled before lines is closed.
func (c *Console) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func (c *Console) banner() {
	c.println(pterm.DefaultHeader.WithFullWidth().Sprint(title))
	c.println(pterm.NewStyle(pterm.FgGray).Sprint(caption))
	c.println()
	c.assistant(greeting)
	c.println(pterm.NewStyle(pterm.FgGray).Sprint("Type /help for commands."))
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("> "))
}

// command handles a slash command and reports whether the loop should end.
func (c *Console) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return true
	case "/help":
		c.help()
	case "/tables":
		c.tables(ctx)
	case "/schema":
		c.schema(ctx)
	case "/samples":
		c.samplesCmd(ctx, arg)
	case "/steps":
		c.steps()
	case "/history":
		c.history()
	default:
		c.println(pterm.Warning.Sprint("unknown command " + name + ", type /help"))
	}
	return false
}

func (c *Console) help() {
	c.println(bullets([]string{
		"/tables       available tables",
		"/schema       database schema",
		"/samples [N]  list sample questions, or ask sample N",
		"/steps        thought process of the last answer",
		"/history      conversation so far",
		"/quit         leave",
	}))
}

func (c *Console) tables(ctx context.Context) {
	names, err := c.catalog.TableNames(ctx)
	if err != nil {
		c.failure("listing tables", err)
		return
	}
	if len(names) == 0 {
		c.println(pterm.Info.Sprint("no tables visible"))
		return
	}
	c.println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Available Tables"))
	c.println(bullets(names))
}

func (c *Console) schema(ctx context.Context) {
	info, err := c.catalog.DatabaseInfo(ctx)
	if err != nil {
		c.failure("reading schema", err)
		return
	}
	c.println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Database Schema"))
	c.println(info)
}

func (c *Console) samplesCmd(ctx context.Context, arg string) {
	if arg == "" {
		c.println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Sample Queries"))
		for i, q := range c.samples {
			c.println(fmt.Sprintf("  %d. %s", i+1, q))
		}
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(c.samples) {
		c.println(pterm.Warning.Sprint(fmt.Sprintf("no sample %q, pick 1-%d", arg, len(c.samples))))
		return
	}
	q := c.samples[n-1]
	c.println(pterm.NewStyle(pterm.FgLightCyan).Sprint("> " + q))
	c.ask(ctx, q)
}

func (c *Console) steps() {
	turn := c.session.LastTurn()
	if turn == nil || len(turn.Steps) == 0 {
		c.println(pterm.Info.Sprint("no steps recorded for the last answer"))
		return
	}
	for _, s := range turn.Steps {
		if s.Thought != "" {
			c.println("Thought: " + s.Thought)
		}
		c.println("Tool: " + s.Tool)
		c.println("Input: " + s.Input)
		c.println("Output: " + s.Observation)
		c.println("---")
	}
}

func (c *Console) history() {
	msgs := c.session.History()
	if len(msgs) == 0 {
		c.println(pterm.Info.Sprint("no messages yet"))
		return
	}
	for _, m := range msgs {
		label := pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("you:")
		if m.Role == service.RoleAssistant {
			label = pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("assistant:")
		}
		c.println(label + " " + m.Content)
	}
}

func (c *Console) ask(ctx context.Context, question string) {
	stop := c.startSpinner()
	turn, err := c.session.Ask(ctx, question)
	stop()

	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			c.println(pterm.Error.Sprint("This query is not allowed. (" + rej.Tag() + ")"))
			return
		}
		c.failure("answering", err)
		return
	}
	c.assistant(turn.Answer)
}

func (c *Console) startSpinner() func() {
	if !c.spinner {
		return func() {}
	}
	sp, err := pterm.DefaultSpinner.WithWriter(c.out).WithRemoveWhenDone(true).Start("Thinking...")
	if err != nil {
		c.logger.Debug("spinner unavailable", "error", err)
		return func() {}
	}
	return func() { _ = sp.Stop() }
}

func (c *Console) assistant(text string) {
	c.println(pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("assistant:") + " " + text)
}

func (c *Console) failure(op string, err error) {
	c.logger.Error("chat command failed", "op", op, "error", err)
	c.println(pterm.Error.Sprint("Error: " + err.Error()))
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func bullets(items []string) string {
	list := make([]pterm.BulletListItem, 0, len(items))
	for _, s := range items {
		list = append(list, pterm.BulletListItem{Level: 0, Text: s})
	}
	out, err := pterm.DefaultBulletList.WithItems(list).Srender()
	if err != nil {
		return strings.Join(items, "\n")
	}
	return out
}
