package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var errNoText = errors.New("no text content in response")

// Messages is a Generator over the Anthropic Messages API. The same client
// type serves both api.anthropic.com and Bedrock, chosen by request options.
type Messages struct {
	client        anthropic.Client
	vendor        string
	model         anthropic.Model
	temperature   float64
	maxTokens     int64
	stopSequences []string
	logger        *slog.Logger
}

// NewAnthropic talks to the first-party API. Extra options come after the
// API key, so tests can point the client at a local server.
func NewAnthropic(cfg Config, opts ...option.RequestOption) *Messages {
	cfg = cfg.withDefaults()
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}, opts...)
	return newMessages(anthropic.NewClient(opts...), ProviderAnthropic, cfg)
}

func newMessages(client anthropic.Client, vendor string, cfg Config) *Messages {
	return &Messages{
		client:        client,
		vendor:        vendor,
		model:         anthropic.Model(cfg.Model),
		temperature:   *cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		stopSequences: cfg.StopSequences,
		logger:        cfg.Logger,
	}
}

func (m *Messages) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:       m.model,
		MaxTokens:   m.maxTokens,
		Temperature: anthropic.Float(m.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if len(m.stopSequences) > 0 {
		params.StopSequences = m.stopSequences
	}

	msg, err := m.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		m.logger.Error("LLM call failed", "vendor", m.vendor, "model", m.model, "duration", duration, "error", err)
		return "", fmt.Errorf("%s API error: %w", m.vendor, err)
	}
	m.logger.Debug("LLM call completed",
		"vendor", m.vendor,
		"model", m.model,
		"duration", duration,
		"stop_reason", msg.StopReason,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errNoText
	}
	return sb.String(), nil
}
