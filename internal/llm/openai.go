package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// newOpenAIClient builds a client for the hosted API or any compatible base URL.
// Retries are left to ResilientEmbedder so they are counted in one place.
func newOpenAIClient(apiKey, baseURL string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...)
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client       openai.Client
	model        string
	expectedSize int
}

// NewOpenAIEmbedder creates an embedder. baseURL may be empty for the hosted API.
func NewOpenAIEmbedder(apiKey, baseURL, model string, expectedSize int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:       newOpenAIClient(apiKey, baseURL),
		model:        model,
		expectedSize: expectedSize,
	}
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingUnavailable, len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	result := make([][]float32, len(data))
	for i, d := range data {
		vec, err := toVector(d.Embedding, e.expectedSize)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		result[i] = vec
	}
	return result, nil
}

// OpenAIGenerator produces chat completions with the OpenAI chat API.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator. baseURL may be empty for the hosted API.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: newOpenAIClient(apiKey, baseURL),
		model:  model,
	}
}

// Complete returns the full reply text.
func (g *OpenAIGenerator) Complete(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(messages, params))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrGenerationUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream calls onToken for every content delta.
func (g *OpenAIGenerator) Stream(ctx context.Context, messages []Message, params ChatParams, onToken func(string) error) error {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(messages, params))
	defer func() {
		_ = stream.Close()
	}()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if token := chunk.Choices[0].Delta.Content; token != "" {
			if err := onToken(token); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return nil
}

func (g *OpenAIGenerator) params(messages []Message, params ChatParams) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(g.model),
	}
	if params.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		p.Temperature = openai.Float(float64(params.Temperature))
	}
	return p
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
