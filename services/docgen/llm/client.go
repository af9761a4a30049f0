package llm

import (
	"context"
	"time"
)

// GenerationParams tunes a single generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// Timeout bounds the call. Zero means the client's default.
	Timeout time.Duration `json:"-"`
}

// Generator defines the standard interface for any LLM backend.
//
// Implementations must respect ctx cancellation and the params timeout,
// and must map timeouts to ErrTimeout and transport problems to
// ErrGenerationFailed so callers can classify failures.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Float32 returns a pointer to v. Convenience for GenerationParams.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v. Convenience for GenerationParams.
func Int(v int) *int { return &v }
