package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/llm"
)

func newTestLoader(t *testing.T) func(context.Context) (*app.App, error) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chat/completions") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
				"content":"[{\"field\":\"renewal_terms\",\"value\":\"one year\",\"confidence\":0.9}]"}}]}`))
			return
		}
		var req llm.EmbeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := llm.EmbeddingsResponse{}
		for _, text := range req.Input {
			vec := []float64{0.1, 0.1, 0.1}
			if strings.Contains(strings.ToLower(text), "renewal") {
				vec[0] = 1
			}
			resp.Data = append(resp.Data, llm.EmbeddingData{Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		LogLevel:          slog.LevelError,
		LogFormat:         "text",
		DBPath:            filepath.Join(t.TempDir(), "docrag.db"),
		VectorBackend:     config.BackendMemory,
		QdrantCollection:  "chunks",
		LLMProvider:       config.ProviderOpenAI,
		LLMBaseURL:        srv.URL + "/v1/",
		LLMModel:          "test-model",
		LLMAPIKey:         "test",
		EmbeddingProvider: config.ProviderLocal,
		EmbeddingBaseURL:  srv.URL,
		EmbeddingModel:    "test-embed",
		EmbeddingAPIKey:   "test",
		VectorSize:        3,
		EmbedRetries:      1,
		RAG:               config.DefaultRAG(),
	}
	// The memory vector backend lives in the process, so one App serves every command.
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return func(context.Context) (*app.App, error) { return a, nil }
}

func run(t *testing.T, load func(context.Context) (*app.App, error), args ...string) (string, error) {
	t.Helper()
	root, _ := newRootCmd(load)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Lifecycle(t *testing.T) {
	load := newTestLoader(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "MSA.md")
	require.NoError(t, os.WriteFile(path, []byte("# MSA\n\nThe renewal term is one year."), 0o644))

	out, err := run(t, load, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No files in memory.")

	out, err = run(t, load, "add", path)
	require.NoError(t, err)
	assert.Contains(t, out, "MSA.md: indexed (1 chunks")

	out, err = run(t, load, "add", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 files, 0 indexed, 1 skipped, 0 failed")

	out, err = run(t, load, "search", "renewal", "term")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] MSA.md")

	out, err = run(t, load, "extract", "MSA.md")
	require.NoError(t, err)
	assert.Contains(t, out, "MSA.md (1 chunks")
	assert.Contains(t, out, "renewal_terms")
	assert.Contains(t, out, "one year")

	out, err = run(t, load, "rename", "MSA.md", "Master_Services_Agreement.md")
	require.NoError(t, err)
	assert.Contains(t, out, "renamed MSA.md to Master_Services_Agreement.md")

	out, err = run(t, load, "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"file_name": "Master_Services_Agreement.md"`)

	out, err = run(t, load, "rm", "Master_Services_Agreement.md")
	require.NoError(t, err)
	assert.Contains(t, out, "removed Master_Services_Agreement.md")

	_, err = run(t, load, "rm", "missing.md")
	assert.Error(t, err)
}

func TestCLI_AddUnsupported(t *testing.T) {
	load := newTestLoader(t)
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	out, err := run(t, load, "add", path)
	assert.Error(t, err)
	assert.Contains(t, out, "unsupported file format")
}
