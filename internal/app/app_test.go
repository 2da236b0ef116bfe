package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/config"
	"docrag/internal/llm"
	"docrag/internal/rag"
)

// newEmbeddingServer answers /v1/embeddings with vectors derived from the
// presence of a few words.
func newEmbeddingServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	words := []string{"termination", "payment", "confidential"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.EmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := llm.EmbeddingsResponse{}
		for _, text := range req.Input {
			vec := make([]float64, size)
			vec[size-1] = 0.1
			for i, word := range words {
				if strings.Contains(strings.ToLower(text), word) {
					vec[i] = 1
				}
			}
			resp.Data = append(resp.Data, llm.EmbeddingData{Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, embeddingURL string) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:          slog.LevelInfo,
		LogFormat:         "text",
		DBPath:            filepath.Join(t.TempDir(), "docrag.db"),
		VectorBackend:     config.BackendMemory,
		QdrantCollection:  "chunks",
		LLMProvider:       config.ProviderOpenAI,
		LLMBaseURL:        "http://127.0.0.1:1/v1",
		LLMModel:          "test-model",
		LLMAPIKey:         "test",
		EmbeddingProvider: config.ProviderLocal,
		EmbeddingBaseURL:  embeddingURL,
		EmbeddingModel:    "test-embed",
		EmbeddingAPIKey:   "test",
		VectorSize:        4,
		EmbedRetries:      1,
		RAG:               config.DefaultRAG(),
	}
}

func TestNew_WiresComponents(t *testing.T) {
	ctx := context.Background()
	srv := newEmbeddingServer(t, 4)

	a, err := New(ctx, testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.ValidateEmbedder(ctx))

	_, err = a.Pipeline.Ingest(ctx, "MSA.md", []byte("# MSA\n\nEither party may give notice of termination with 30 days."))
	require.NoError(t, err)
	_, err = a.Pipeline.Ingest(ctx, "Invoice_Terms.txt", []byte("Payment is due within 45 days."))
	require.NoError(t, err)

	resp, err := a.Engine.Search(ctx, rag.SearchRequest{Query: "termination notice"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Groups)
	assert.Equal(t, "MSA.md", resp.Groups[0].FileName)

	prep, err := a.Engine.Prepare(ctx, rag.ChatRequest{Query: "What files do you have?"})
	require.NoError(t, err)
	assert.Equal(t, rag.IntentInventory, prep.Intent.Kind)
	assert.Equal(t, []string{"Invoice_Terms.txt", "MSA.md"}, prep.KnownFiles)
}

func TestNew_ValidateEmbedderSizeMismatch(t *testing.T) {
	ctx := context.Background()
	srv := newEmbeddingServer(t, 3)

	a, err := New(ctx, testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	err = a.ValidateEmbedder(ctx)
	assert.ErrorIs(t, err, llm.ErrVectorSize)
}

func TestNew_BadAliasesFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.AliasesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: slog.LevelWarn, LogFormat: "json"}
	logger := NewLogger(cfg, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)
}
