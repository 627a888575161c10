package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// ErrEmptyQuestion is returned by Ask for blank input; nothing is recorded.
var ErrEmptyQuestion = errors.New("empty question")

const defaultHistoryTurns = 6

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one answered question.
type Turn struct {
	Question string
	Answer   string
	Steps    []Step
}

// Runner is what a Session needs from the agent.
type Runner interface {
	Run(ctx context.Context, question string, history []Message) (*RunResult, error)
}

// TextScanner is the deny-list gate applied to questions before they
// leave the process. *domain.KeywordGuard satisfies it.
type TextScanner interface {
	ScanText(text string) error
}

type SessionConfig struct {
	Runner Runner
	// InputGate rejects questions before the model sees them. Nil disables it.
	InputGate TextScanner
	// HistoryTurns is how many previous messages go into each prompt.
	HistoryTurns int
	Logger       *slog.Logger
	Inst         port.Instrumentation
}

// Session is one conversation. It owns the message history; everything it
// was constructed with is borrowed. Safe for concurrent use, though turns
// are serialized.
type Session struct {
	runner   Runner
	gate     TextScanner
	keep     int
	logger   *slog.Logger
	inst     port.Instrumentation
	now      func() time.Time
	mu       sync.Mutex
	history  []Message
	lastTurn *Turn
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		runner: cfg.Runner,
		gate:   cfg.InputGate,
		keep:   cfg.HistoryTurns,
		logger: cfg.Logger,
		inst:   cfg.Inst,
		now:    time.Now,
	}
	if s.keep <= 0 {
		s.keep = defaultHistoryTurns
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.inst == nil {
		s.inst = port.NoopInstrumentation{}
	}
	return s
}

// Ask runs one question through the agent. Input rejected by the gate
// returns a *domain.RejectionError and leaves the history untouched. Agent
// failures are recorded in the history as "Error: ..." and returned.
func (s *Session) Ask(ctx context.Context, question string) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if s.gate != nil {
		if err := s.gate.ScanText(question); err != nil {
			s.logger.WarnContext(ctx, "blocked potentially harmful question", "question", question, "error", err)
			if rej, ok := domain.AsRejection(err); ok {
				s.inst.IncrementGuardRejections(ctx, string(rej.Reason))
			}
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.recentLocked()
	s.history = append(s.history, Message{Role: RoleUser, Content: question})

	start := s.now()
	res, err := s.runner.Run(ctx, question, history)
	s.inst.RecordTurnDuration(ctx, float64(s.now().Sub(start).Milliseconds()))

	if err != nil {
		s.logger.ErrorContext(ctx, "question failed", "question", question, "error", err)
		s.history = append(s.history, Message{Role: RoleAssistant, Content: "Error: " + err.Error()})
		turn := &Turn{Question: question}
		if res != nil {
			turn.Steps = res.Steps
		}
		s.lastTurn = turn
		return nil, err
	}

	turn := &Turn{
		Question: question,
		Answer:   domain.NormalizeTables(res.Answer),
		Steps:    res.Steps,
	}
	s.history = append(s.history, Message{Role: RoleAssistant, Content: turn.Answer})
	s.lastTurn = turn
	s.logger.InfoContext(ctx, "question answered", "question", question, "steps", len(res.Steps), "rounds", res.Rounds)
	return turn, nil
}

func (s *Session) recentLocked() []Message {
	from := len(s.history) - s.keep
	if from < 0 {
		from = 0
	}
	out := make([]Message, len(s.history)-from)
	copy(out, s.history[from:])
	return out
}

// History returns a copy of every message so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// LastTurn returns the most recent turn, including failed ones, or nil.
func (s *Session) LastTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTurn
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.lastTurn = nil
}

// Close releases nothing: the session owns no connections.
func (s *Session) Close() error {
	return nil
}
