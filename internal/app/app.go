// Package app wires the configured components into a running system.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"docrag/internal/config"
	"docrag/internal/corpus"
	"docrag/internal/ingest"
	"docrag/internal/llm"
	"docrag/internal/rag"
	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

// App holds the long-lived components shared by request handlers and CLI commands.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Vectors   vectorstore.VectorStore
	Store     *corpus.Store
	Embedder  llm.Embedder
	Generator llm.Generator
	Retriever *rag.Retriever
	Pipeline  *ingest.Pipeline
	Engine    rag.Engine
	Extractor *rag.Extractor

	closers []func() error
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens storage, connects the model providers and builds the query and
// ingestion pipelines. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.InfoContext(ctx, "Database initialized", "path", cfg.DBPath)

	if err := a.initVectors(ctx); err != nil {
		return err
	}

	chunkRepo := storage.NewChunkRepo(db)
	a.Store = corpus.NewStore(storage.NewDocumentRepo(db), chunkRepo, a.Vectors, cfg.QdrantCollection, cfg.VectorSize)

	a.Embedder = llm.NewResilientEmbedder(newEmbedder(cfg), cfg.EmbedRetries, cfg.EmbedRPS)
	a.Generator = newGenerator(cfg)
	if cfg.LLMProvider == config.ProviderLocal {
		loader := llm.NewModelLoader(cfg.LLMBaseURL)
		if err := loader.EnsureLoaded(ctx, cfg.LLMModel); err != nil {
			slog.WarnContext(ctx, "Chat model not loaded, first request may be slow", "model", cfg.LLMModel, "error", err)
		}
	}

	aliases, err := config.LoadAliases(cfg.AliasesFile)
	if err != nil {
		return err
	}

	a.Retriever = rag.NewRetriever(a.Embedder, a.Store, rag.RetrieverOptions{
		Oversample:    cfg.RAG.Oversample,
		MinSimilarity: cfg.RAG.MinSimilarity,
	})
	a.Engine = rag.NewEngine(
		a.Store,
		a.Retriever,
		a.Generator,
		rag.NewClassifier(aliases),
		rag.NewAssembler(rag.AssemblerOptions{MaxHistoryTurns: cfg.RAG.MaxHistoryTurns}),
		rag.EngineOptions{
			RetrievalK:          cfg.RAG.RetrievalK,
			TopKGroups:          cfg.RAG.TopKGroups,
			MaxSnippetsPerGroup: cfg.RAG.MaxSnippetsPerGroup,
			DiversityLambda:     cfg.RAG.DiversityLambda,
			BudgetTokens:        cfg.RAG.ContextBudgetTokens,
		},
	)
	a.Extractor = rag.NewExtractor(a.Store, a.Generator, llm.ChatParams{})
	a.Pipeline = ingest.NewPipeline(a.Store, a.Embedder, ingest.Options{})
	slog.InfoContext(ctx, "RAG engine initialized", "aliases", len(aliases))
	return nil
}

func (a *App) initVectors(ctx context.Context) error {
	cfg := a.Config
	switch cfg.VectorBackend {
	case config.BackendMemory:
		a.Vectors = vectorstore.NewMemoryStore()
	default:
		qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			return fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.Vectors = qs
		a.closers = append(a.closers, qs.Close)
	}
	if err := a.Vectors.EnsureCollection(ctx, cfg.QdrantCollection, cfg.VectorSize); err != nil {
		return fmt.Errorf("failed to ensure vector collection: %w", err)
	}
	slog.InfoContext(ctx, "Vector collection ready", "backend", cfg.VectorBackend, "collection", cfg.QdrantCollection, "vector_size", cfg.VectorSize)
	return nil
}

// ValidateEmbedder embeds a probe text and checks the vector size.
func (a *App) ValidateEmbedder(ctx context.Context) error {
	vecs, err := a.Embedder.Embed(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) != a.Config.VectorSize {
		return fmt.Errorf("%w: expected %d", llm.ErrVectorSize, a.Config.VectorSize)
	}
	slog.InfoContext(ctx, "Embedding client validated", "vector_size", a.Config.VectorSize)
	return nil
}

// Close releases storage connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newEmbedder(cfg *config.Config) llm.Embedder {
	if cfg.EmbeddingProvider == config.ProviderOpenAI {
		return llm.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.VectorSize)
	}
	return llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.VectorSize)
}

func newGenerator(cfg *config.Config) llm.Generator {
	if cfg.LLMProvider == config.ProviderOpenAI {
		return llm.NewOpenAIGenerator(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	}
	return llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
}
