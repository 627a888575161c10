package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/guillermoBallester/pgchat/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultMaxRounds = 10
	defaultTopK      = 10

	// StopSequence ends a generation before the model invents its own
	// tool output.
	StopSequence = "\nObservation:"
)

// ErrMaxRounds is returned when the agent has not produced a final answer
// within its round budget.
var ErrMaxRounds = errors.New("agent stopped: maximum number of rounds reached")

var (
	actionRe      = regexp.MustCompile(`(?s)Action\s*\d*\s*:\s*(.*?)\s*Action\s*\d*\s*Input\s*\d*\s*:\s*(.*)`)
	actionOnlyRe  = regexp.MustCompile(`(?s)Action\s*\d*\s*:\s*(.*?)`)
	finalAnswerRe = regexp.MustCompile(`(?s)Final Answer\s*:\s*(.*)`)
)

// Step is one executed action and what it returned.
type Step struct {
	Thought     string `json:"thought,omitempty"`
	Tool        string `json:"tool"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
}

// RunResult is the outcome of one question.
type RunResult struct {
	Answer string
	Steps  []Step
	Rounds int
}

// AgentConfig configures the Agent.
type AgentConfig struct {
	Logger    *slog.Logger
	Generator port.Generator
	Tools     []Tool
	// DatabaseInfo feeds the schema section of the prompt. Optional.
	DatabaseInfo func(ctx context.Context) (string, error)
	MaxRounds    int
	TopK         int
	Tracer       trace.Tracer
}

func (cfg *AgentConfig) Validate() error {
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxRounds < 0 {
		return errors.New("max rounds must be greater than 0")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return nil
}

// Agent answers questions with a text ReAct loop: the model reasons,
// names a tool, reads the observation and repeats until it writes a final
// answer. It works with any Generator since it needs no vendor tool API.
type Agent struct {
	cfg   AgentConfig
	tools map[string]Tool
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tools := make(map[string]Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools[t.Name] = t
	}
	return &Agent{cfg: cfg, tools: tools}, nil
}

// Run answers question given the previous messages of the conversation.
// Steps taken so far are returned alongside ErrMaxRounds.
func (a *Agent) Run(ctx context.Context, question string, history []Message) (*RunResult, error) {
	ctx, span := a.cfg.Tracer.Start(ctx, "Agent.Run")
	defer span.End()

	data := promptData{
		TopK:     a.cfg.TopK,
		Tools:    a.cfg.Tools,
		History:  history,
		Question: question,
	}
	if a.cfg.DatabaseInfo != nil {
		info, err := a.cfg.DatabaseInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading database info: %w", err)
		}
		data.TableInfo = info
	}

	var scratch strings.Builder
	result := &RunResult{}

	for round := 1; round <= a.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Rounds = round
		a.cfg.Logger.DebugContext(ctx, "agent: starting round", "round", round, "max_rounds", a.cfg.MaxRounds)

		data.Scratchpad = scratch.String()
		prompt, err := renderAgentPrompt(data)
		if err != nil {
			return result, err
		}

		out, err := a.cfg.Generator.Generate(ctx, prompt)
		if err != nil {
			return result, fmt.Errorf("generating round %d: %w", round, err)
		}
		out = cutAtObservation(out)

		parsed := parseOutput(out)
		if parsed.final {
			result.Answer = parsed.answer
			span.SetAttributes(attribute.Int("agent.rounds", round), attribute.Int("agent.steps", len(result.Steps)))
			a.cfg.Logger.DebugContext(ctx, "agent: final answer", "round", round)
			return result, nil
		}

		var observation string
		if parsed.err != "" {
			observation = parsed.err
			a.cfg.Logger.WarnContext(ctx, "agent: unparsable output", "round", round, "reason", parsed.err)
		} else {
			observation = a.runTool(ctx, parsed.tool, parsed.input)
			result.Steps = append(result.Steps, Step{
				Thought:     parsed.thought,
				Tool:        parsed.tool,
				Input:       parsed.input,
				Observation: observation,
			})
		}

		scratch.WriteString(" ")
		scratch.WriteString(strings.TrimSpace(out))
		scratch.WriteString("\nObservation: ")
		scratch.WriteString(observation)
		scratch.WriteString("\nThought:")
	}

	a.cfg.Logger.WarnContext(ctx, "agent: round budget exhausted", "max_rounds", a.cfg.MaxRounds)
	return result, ErrMaxRounds
}

func (a *Agent) runTool(ctx context.Context, name, input string) string {
	tool, ok := a.tools[name]
	if !ok {
		names := make([]string, len(a.cfg.Tools))
		for i, t := range a.cfg.Tools {
			names[i] = t.Name
		}
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", name, strings.Join(names, ", "))
	}

	a.cfg.Logger.InfoContext(ctx, "agent: calling tool", "tool", name, "input", input)
	out, err := tool.Run(ctx, input)
	if err != nil {
		a.cfg.Logger.WarnContext(ctx, "agent: tool failed", "tool", name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}

// cutAtObservation drops anything the model wrote from its first
// "Observation:" on, so only real tool output is ever fed back.
func cutAtObservation(out string) string {
	if i := strings.Index(out, "Observation:"); i >= 0 {
		return out[:i]
	}
	return out
}

type parsedOutput struct {
	final   bool
	answer  string
	thought string
	tool    string
	input   string
	err     string // non-empty when the output follows neither shape
}

func parseOutput(out string) parsedOutput {
	action := actionRe.FindStringSubmatch(out)
	final := finalAnswerRe.FindStringSubmatch(out)

	switch {
	case action != nil && final != nil:
		return parsedOutput{err: "Invalid Format: the output contained both a final answer and an action. Provide only one of them."}
	case final != nil:
		return parsedOutput{final: true, answer: strings.TrimSpace(final[1])}
	case action != nil:
		thought := strings.TrimSpace(out[:strings.Index(out, action[0])])
		thought = strings.TrimSpace(strings.TrimPrefix(thought, "Thought:"))
		return parsedOutput{
			thought: thought,
			tool:    strings.TrimSpace(action[1]),
			input:   cleanToolInput(action[2]),
		}
	case actionOnlyRe.MatchString(out):
		return parsedOutput{err: "Invalid Format: Missing 'Action Input:' after 'Action:'"}
	default:
		return parsedOutput{err: "Invalid Format: Missing 'Action:' after 'Thought:'"}
	}
}

// cleanToolInput strips whitespace, wrapping quotes and code fences.
func cleanToolInput(s string) string {
	s = strings.TrimSpace(s)
	s = stripCodeFence(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}
