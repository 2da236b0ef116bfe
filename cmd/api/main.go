package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions over uploaded documents with retrieval-augmented generation.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: docrag API
//   description: |
//     Upload documents, search them and ask questions answered from their content.
//     Answers cite the files they were drawn from.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}()

	// Fail fast on a misconfigured embedding model.
	if err := a.ValidateEmbedder(ctx); err != nil {
		slog.Error("Embedding client check failed", "error", err)
		return
	}

	router := http.NewRouter(&http.Deps{
		Engine:         a.Engine,
		Documents:      a.Store,
		Ingester:       a.Pipeline,
		Extractor:      a.Extractor,
		DB:             a.DB,
		VectorStore:    a.Vectors,
		CollectionName: cfg.QdrantCollection,
	})

	srv := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", srv.Addr)
	slog.Debug("LLM configuration", "provider", cfg.LLMProvider, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		slog.Error("API server failed", "error", err)
		return
	}
	slog.Info("API server stopped")
}
