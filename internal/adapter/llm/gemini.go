package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(*cfg.Temperature))
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.StopSequences = cfg.StopSequences

	return &Gemini{client: client, model: model, name: cfg.Model, logger: cfg.Logger}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	duration := time.Since(start)
	if err != nil {
		g.logger.Error("LLM call failed", "vendor", ProviderGemini, "model", g.name, "duration", duration, "error", err)
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	g.logger.Debug("LLM call completed", "vendor", ProviderGemini, "model", g.name, "duration", duration)

	return geminiText(resp)
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errNoText
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errNoText
	}
	return sb.String(), nil
}
