package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm.go -package=mocks docrag/internal/llm Embedder,Generator

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding provider cannot be reached
	// or answers with an error.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrGenerationUnavailable is returned when the chat provider cannot be reached
	// or answers with an error.
	ErrGenerationUnavailable = errors.New("generation provider unavailable")
	// ErrVectorSize is returned when a provider answers with vectors of the wrong size.
	ErrVectorSize = errors.New("unexpected embedding size")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// MaxTokens caps the generated tokens. 0 means provider default.
	MaxTokens int
	// Temperature controls sampling randomness. 0 means provider default.
	Temperature float32
}

// Embedder maps texts to fixed-size vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a chat completion for an ordered list of messages.
type Generator interface {
	Complete(ctx context.Context, messages []Message, params ChatParams) (string, error)
	// Stream calls onToken for every incremental piece of the completion.
	Stream(ctx context.Context, messages []Message, params ChatParams, onToken func(string) error) error
}
