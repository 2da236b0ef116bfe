package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docrag/internal/handlers"
	"docrag/internal/rag"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine         rag.Engine
	Documents      handlers.DocumentStore
	Ingester       handlers.Ingester
	Extractor      handlers.TermExtractor
	DB             handlers.Pinger
	VectorStore    handlers.CollectionChecker
	CollectionName string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	chatHandler := handlers.NewChatHandler(deps.Engine)
	searchHandler := handlers.NewSearchHandler(deps.Engine)
	documentsHandler := handlers.NewDocumentsHandler(deps.Documents, deps.Ingester)
	extractHandler := handlers.NewExtractHandler(deps.Extractor)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorStore, deps.CollectionName)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/chat", chatHandler)
			r.Method(http.MethodPost, "/search", searchHandler)
			r.Get("/stats", documentsHandler.Stats)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", documentsHandler.List)
				r.Post("/", documentsHandler.Upload)
				r.Get("/{id}", documentsHandler.Get)
				r.Delete("/{id}", documentsHandler.Delete)
				r.Patch("/{id}", documentsHandler.Rename)
				r.Method(http.MethodPost, "/{id}/extract", extractHandler)
			})
		})
	})

	return r
}
