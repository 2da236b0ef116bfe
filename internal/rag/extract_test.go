package rag_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"docrag/internal/corpus"
	"docrag/internal/llm"
	llmmocks "docrag/internal/llm/mocks"
	"docrag/internal/rag"
)

type fakeDocuments struct {
	docs   map[string]corpus.Document
	chunks []corpus.Chunk
}

func (f *fakeDocuments) Document(_ context.Context, fileID string) (*corpus.Document, error) {
	doc, ok := f.docs[fileID]
	if !ok {
		return nil, corpus.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeDocuments) QueryByMetadata(_ context.Context, filter corpus.Filter) ([]corpus.Chunk, error) {
	var out []corpus.Chunk
	for _, c := range f.chunks {
		for _, id := range filter.FileIDs {
			if c.FileID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		docs: map[string]corpus.Document{
			"f-msa":   {FileID: "f-msa", FileName: "MSA.pdf"},
			"f-empty": {FileID: "f-empty", FileName: "Empty.txt"},
		},
		chunks: []corpus.Chunk{
			{ChunkID: "c2", FileID: "f-msa", Position: 1, Text: "Payment is due within 30 days."},
			{ChunkID: "c1", FileID: "f-msa", Position: 0, Text: "This agreement is between Acme and Globex."},
		},
	}
}

func TestExtractor_Extract(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		terms  []rag.Term
	}{
		{
			name:   "plain array",
			answer: `[{"field": "counterparty", "value": "Globex", "confidence": 0.9}]`,
			terms:  []rag.Term{{Field: "counterparty", Value: "Globex", Confidence: 0.9}},
		},
		{
			name:   "fenced array",
			answer: "```json\n[{\"field\": \"payment_terms\", \"value\": \"30 days\", \"confidence\": 0.8, \"snippet\": \"due within 30 days\"}]\n```",
			terms:  []rag.Term{{Field: "payment_terms", Value: "30 days", Confidence: 0.8, Snippet: "due within 30 days"}},
		},
		{
			name:   "array inside prose",
			answer: `Here you go: [{"field": "governing_law", "value": "Delaware", "confidence": 0.7}] Done.`,
			terms:  []rag.Term{{Field: "governing_law", Value: "Delaware", Confidence: 0.7}},
		},
		{
			name:   "not json",
			answer: "I could not find any terms.",
			terms:  []rag.Term{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			generator := llmmocks.NewMockGenerator(ctrl)
			generator.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, messages []llm.Message, params llm.ChatParams) (string, error) {
					user := messages[len(messages)-1].Content
					assert.Less(t, strings.Index(user, "between Acme"), strings.Index(user, "Payment is due"))
					assert.Contains(t, user, "counterparty")
					assert.GreaterOrEqual(t, params.MaxTokens, 1500)
					return tt.answer, nil
				})

			x := rag.NewExtractor(newFakeDocuments(), generator, llm.ChatParams{})
			got, err := x.Extract(context.Background(), "f-msa", nil)
			require.NoError(t, err)
			assert.Equal(t, "MSA.pdf", got.FileName)
			assert.Equal(t, 2, got.ChunkCount)
			assert.Equal(t, len("This agreement is between Acme and Globex.\n\nPayment is due within 30 days."), got.TextLength)
			assert.Equal(t, tt.terms, got.Terms)
		})
	}
}

func TestExtractor_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	generator := llmmocks.NewMockGenerator(ctrl)
	x := rag.NewExtractor(newFakeDocuments(), generator, llm.ChatParams{})
	ctx := context.Background()

	_, err := x.Extract(ctx, " ", nil)
	assert.ErrorIs(t, err, rag.ErrInvalidArgument)

	_, err = x.Extract(ctx, "missing", nil)
	assert.ErrorIs(t, err, corpus.ErrNotFound)

	_, err = x.Extract(ctx, "f-empty", nil)
	assert.ErrorIs(t, err, corpus.ErrNotFound)

	generator.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).Return("", llm.ErrGenerationUnavailable)
	_, err = x.Extract(ctx, "f-msa", []string{"parties"})
	assert.ErrorIs(t, err, llm.ErrGenerationUnavailable)
}
