package llm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/mock/gomock"

	"docrag/internal/llm"
	"docrag/internal/llm/mocks"
)

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func TestResilientEmbedder_RetriesTransient(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockEmbedder(ctrl)

	transient := &llm.StatusError{Code: 503, Body: "busy"}
	gomock.InOrder(
		next.EXPECT().Embed(gomock.Any(), []string{"q"}).Return(nil, transient),
		next.EXPECT().Embed(gomock.Any(), []string{"q"}).Return(nil, transient),
		next.EXPECT().Embed(gomock.Any(), []string{"q"}).Return([][]float32{{1, 2}}, nil),
	)

	e := llm.NewResilientEmbedder(next, 3, 0).WithBackOff(zeroBackOff)
	got, err := e.Embed(context.Background(), []string{"q"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 1 || got[0][1] != 2 {
		t.Errorf("Embed() = %v", got)
	}
}

func TestResilientEmbedder_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockEmbedder(ctrl)

	next.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: connection refused", llm.ErrEmbeddingUnavailable)).
		Times(3)

	e := llm.NewResilientEmbedder(next, 3, 0).WithBackOff(zeroBackOff)
	_, err := e.Embed(context.Background(), []string{"q"})
	if !errors.Is(err, llm.ErrEmbeddingUnavailable) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestResilientEmbedder_PermanentErrorNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockEmbedder(ctrl)

	tests := []struct {
		name string
		err  error
	}{
		{"bad request", &llm.StatusError{Code: 400, Body: "bad"}},
		{"wrong size", fmt.Errorf("%w: %w", llm.ErrEmbeddingUnavailable, llm.ErrVectorSize)},
		{"unclassified", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, tt.err).Times(1)

			e := llm.NewResilientEmbedder(next, 3, 0).WithBackOff(zeroBackOff)
			if _, err := e.Embed(context.Background(), []string{"q"}); !errors.Is(err, tt.err) {
				t.Errorf("Embed() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestResilientEmbedder_RateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockEmbedder(ctrl)
	next.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([][]float32{{1}}, nil).Times(2)

	e := llm.NewResilientEmbedder(next, 1, 1000)
	for i := 0; i < 2; i++ {
		if _, err := e.Embed(context.Background(), []string{"q"}); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
	}
}

func TestResilientEmbedder_CanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockEmbedder(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := llm.NewResilientEmbedder(next, 3, 1)
	if _, err := e.Embed(ctx, []string{"q"}); err == nil {
		t.Error("Embed() expected error for canceled context")
	}
}
