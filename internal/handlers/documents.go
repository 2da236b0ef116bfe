package handlers

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_handlers.go -package=mocks docrag/internal/handlers DocumentStore,Ingester

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"docrag/internal/contextutil"
	"docrag/internal/corpus"
	"docrag/internal/ingest"
	"docrag/internal/storage"
)

// maxUploadBytes bounds the multipart body of one upload request.
const maxUploadBytes = 32 << 20

// DocumentStore is the part of the chunk store the document API manages.
type DocumentStore interface {
	Documents(ctx context.Context) ([]corpus.Document, error)
	Document(ctx context.Context, fileID string) (*corpus.Document, error)
	Delete(ctx context.Context, fileID string) error
	Rename(ctx context.Context, fileID, newName string) error
	Stats(ctx context.Context) (*storage.CorpusStats, error)
}

// Ingester stores uploaded files.
type Ingester interface {
	Ingest(ctx context.Context, name string, content []byte) (*ingest.Result, error)
}

// DocumentsHandler serves the document management API.
type DocumentsHandler struct {
	store    DocumentStore
	ingester Ingester
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(store DocumentStore, ingester Ingester) *DocumentsHandler {
	return &DocumentsHandler{store: store, ingester: ingester}
}

// DocumentsResponse lists stored documents.
type DocumentsResponse struct {
	Documents []corpus.Document `json:"documents"`
}

// UploadResponse reports the outcome per uploaded file.
type UploadResponse struct {
	Results []*ingest.Result `json:"results"`
	Errors  []UploadError    `json:"errors,omitempty"`
}

// UploadError describes a file that could not be ingested.
type UploadError struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// RenameRequest is the body of a rename request.
type RenameRequest struct {
	FileName string `json:"file_name"`
}

// List handles GET /api/v1/documents.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.store.Documents(ctx)
	if err != nil {
		handleError(ctx, w, err, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []corpus.Document{}
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

// Get handles GET /api/v1/documents/{id}.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.store.Document(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleError(ctx, w, err, "Failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Upload handles POST /api/v1/documents with one or more multipart "file" parts.
// A file that fails to ingest is reported without failing the others.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.WarnContext(ctx, "invalid upload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	resp := UploadResponse{Results: []*ingest.Result{}}
	var firstErr error
	for _, fh := range headers {
		res, err := h.ingestPart(ctx, fh)
		if err != nil {
			logger.WarnContext(ctx, "failed to ingest upload", "file_name", fh.Filename, "error", err)
			resp.Errors = append(resp.Errors, UploadError{FileName: fh.Filename, Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resp.Results = append(resp.Results, res)
	}

	status := http.StatusCreated
	if len(resp.Results) == 0 {
		status = statusFor(firstErr)
	}
	writeJSON(w, status, resp)
}

func (h *DocumentsHandler) ingestPart(ctx context.Context, fh *multipart.FileHeader) (*ingest.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return h.ingester.Ingest(ctx, fh.Filename, content)
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(ctx, w, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rename handles PATCH /api/v1/documents/{id}.
func (h *DocumentsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "id")

	var req RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "file_name is required")
		return
	}

	if err := h.store.Rename(ctx, fileID, name); err != nil {
		handleError(ctx, w, err, "Failed to rename document")
		return
	}
	doc, err := h.store.Document(ctx, fileID)
	if err != nil {
		handleError(ctx, w, err, "Failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Stats handles GET /api/v1/stats.
func (h *DocumentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.store.Stats(ctx)
	if err != nil {
		handleError(ctx, w, err, "Failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
