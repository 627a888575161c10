package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	cohereoption "github.com/cohere-ai/cohere-go/v2/option"
)

// Cohere is a Generator over the Cohere Chat API. Each prompt is sent as a
// single user message with no chat history; the agent carries its own.
type Cohere struct {
	client        *cohereclient.Client
	model         string
	temperature   float64
	maxTokens     int
	stopSequences []string
	logger        *slog.Logger
}

// NewCohere builds the client. Extra options come after the token, so tests
// can point it at a local server.
func NewCohere(cfg Config, opts ...cohereoption.RequestOption) *Cohere {
	cfg = cfg.withDefaults()
	opts = append([]cohereoption.RequestOption{cohereoption.WithToken(cfg.CohereAPIKey)}, opts...)
	return &Cohere{
		client:        cohereclient.NewClient(opts...),
		model:         cfg.Model,
		temperature:   *cfg.Temperature,
		maxTokens:     int(cfg.MaxTokens),
		stopSequences: cfg.StopSequences,
		logger:        cfg.Logger,
	}
}

func (c *Cohere) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	req := &cohere.ChatRequest{
		Message:     prompt,
		Model:       cohere.String(c.model),
		Temperature: cohere.Float64(c.temperature),
		MaxTokens:   cohere.Int(c.maxTokens),
	}
	if len(c.stopSequences) > 0 {
		req.StopSequences = c.stopSequences
	}

	resp, err := c.client.Chat(ctx, req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("LLM call failed", "vendor", ProviderCohere, "model", c.model, "duration", duration, "error", err)
		return "", fmt.Errorf("cohere API error: %w", err)
	}

	attrs := []any{"vendor", ProviderCohere, "model", c.model, "duration", duration}
	if resp.FinishReason != nil {
		attrs = append(attrs, "finish_reason", string(*resp.FinishReason))
	}
	if resp.Meta != nil && resp.Meta.BilledUnits != nil {
		if in := resp.Meta.BilledUnits.InputTokens; in != nil {
			attrs = append(attrs, "input_tokens", int64(*in))
		}
		if out := resp.Meta.BilledUnits.OutputTokens; out != nil {
			attrs = append(attrs, "output_tokens", int64(*out))
		}
	}
	c.logger.Debug("LLM call completed", attrs...)

	if resp.Text == "" {
		return "", errNoText
	}
	return resp.Text, nil
}
