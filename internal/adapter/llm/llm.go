// Package llm adapts hosted language models to port.Generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/pgchat/internal/core/port"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
	ProviderCohere    = "cohere"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	defaultBedrockModel   = "us.anthropic.claude-3-5-sonnet-20240620-v1:0"
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultCohereModel    = "command-r-plus"
	defaultAWSRegion      = "us-east-1"

	defaultTemperature     = 0.1
	defaultMaxTokens       = 1000
	defaultGeminiMaxTokens = 8192
)

var ErrUnknownProvider = errors.New("unknown LLM provider")

type Config struct {
	Provider string
	Model    string
	// Temperature and MaxTokens use the provider default when nil or zero.
	Temperature   *float64
	MaxTokens     int64
	StopSequences []string

	AnthropicAPIKey    string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	GoogleAPIKey       string
	CohereAPIKey       string

	Logger *slog.Logger
}

// Validate checks that the credentials the provider needs are present.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for provider anthropic")
		}
	case ProviderBedrock:
		if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
			return errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for provider bedrock")
		}
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is required for provider gemini")
		}
	case ProviderCohere:
		if c.CohereAPIKey == "" {
			return errors.New("COHERE_API_KEY is required for provider cohere")
		}
	default:
		return fmt.Errorf("%w %q (supported: anthropic, bedrock, gemini, cohere)", ErrUnknownProvider, c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", c.MaxTokens)
	}
	return nil
}

// withDefaults fills the provider's model, temperature and token budget.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		switch c.Provider {
		case ProviderBedrock:
			c.Model = defaultBedrockModel
		case ProviderGemini:
			c.Model = defaultGeminiModel
		case ProviderCohere:
			c.Model = defaultCohereModel
		default:
			c.Model = defaultAnthropicModel
		}
	}
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
		if c.Provider == ProviderGemini {
			c.MaxTokens = defaultGeminiMaxTokens
		}
	}
	if c.AWSRegion == "" {
		c.AWSRegion = defaultAWSRegion
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// New builds the generator for cfg.Provider. The returned close function
// releases the client and is always non-nil.
func New(ctx context.Context, cfg Config) (port.Generator, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg = cfg.withDefaults()

	switch cfg.Provider {
	case ProviderBedrock:
		gen, err := NewBedrock(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return gen, noopClose, nil
	case ProviderGemini:
		gen, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return gen, gen.Close, nil
	case ProviderCohere:
		return NewCohere(cfg), noopClose, nil
	default:
		return NewAnthropic(cfg), noopClose, nil
	}
}

func noopClose() error { return nil }
