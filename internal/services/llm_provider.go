package services

import (
	"context"

	"shop-assistant/internal/models"
)

// Message is one chat message sent to the language model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message    { return Message{Role: models.RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: models.RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: models.RoleAssistant, Content: content} }

// CompletionOptions tunes a single model call. Zero values fall back to the
// provider defaults.
type CompletionOptions struct {
	Temperature *float32
	MaxTokens   int
	// Operation labels the call in logs and metrics
	Operation string
}

// LLMProvider generates text from chat messages.
//
// All errors are *ragerr.Error values: KindLLMRateLimit after exhausted rate
// limit retries, KindTimeout when the per-call deadline or the caller's context
// expires, KindLLMProvider otherwise.
type LLMProvider interface {
	Completion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// JSONCompletion decodes the model's JSON answer into out and validates it
	// against out's struct tags, retrying once with a correction message
	JSONCompletion(ctx context.Context, messages []Message, out interface{}, opts CompletionOptions) error

	// StreamingCompletion emits deltas through onToken as they arrive and
	// returns the full text. Emitted tokens are never retracted.
	StreamingCompletion(ctx context.Context, messages []Message, onToken func(string), opts CompletionOptions) (string, error)
}

// Embedder turns text into vectors of a fixed dimension
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Float32 is a helper for CompletionOptions.Temperature
func Float32(v float32) *float32 {
	return &v
}
