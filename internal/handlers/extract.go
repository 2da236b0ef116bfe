package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docrag/internal/contextutil"
	"docrag/internal/rag"
)

// TermExtractor extracts contract terms from a stored document.
type TermExtractor interface {
	Extract(ctx context.Context, fileID string, fields []string) (*rag.Extraction, error)
}

// ExtractRequest is the optional body of an extract request.
type ExtractRequest struct {
	Fields []string `json:"fields,omitempty"`
}

// ExtractHandler serves term extraction from stored documents.
type ExtractHandler struct {
	extractor TermExtractor
}

// NewExtractHandler creates a new ExtractHandler.
func NewExtractHandler(extractor TermExtractor) *ExtractHandler {
	return &ExtractHandler{extractor: extractor}
}

// ServeHTTP handles POST /api/v1/documents/{id}/extract. The body may be empty.
func (h *ExtractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ExtractRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.extractor.Extract(ctx, chi.URLParam(r, "id"), req.Fields)
	if err != nil {
		handleError(ctx, w, err, "Failed to extract terms")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
