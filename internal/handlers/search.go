package handlers

import (
	"net/http"

	"docrag/internal/contextutil"
	"docrag/internal/rag"
)

// SearchHandler returns grouped retrieval results without generation.
type SearchHandler struct {
	engine rag.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine rag.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// ServeHTTP handles POST /api/v1/search.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rag.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.engine.Search(ctx, req)
	if err != nil {
		handleError(ctx, w, err, "Failed to search")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
