package port

import "context"

// Generator is the one capability every LLM vendor adapter provides:
// complete a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
