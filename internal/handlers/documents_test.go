package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"docrag/internal/corpus"
	"docrag/internal/handlers/mocks"
	"docrag/internal/ingest"
	"docrag/internal/storage"
)

func newDocumentsRouter(h *DocumentsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/documents", h.List)
	r.Post("/documents", h.Upload)
	r.Get("/documents/{id}", h.Get)
	r.Delete("/documents/{id}", h.Delete)
	r.Patch("/documents/{id}", h.Rename)
	r.Get("/stats", h.Stats)
	return r
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestDocumentsHandler_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockDocumentStore(ctrl)
	store.EXPECT().Documents(gomock.Any()).Return(nil, nil)

	w := httptest.NewRecorder()
	newDocumentsRouter(NewDocumentsHandler(store, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"documents":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestDocumentsHandler_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockDocumentStore(ctrl)
	store.EXPECT().Document(gomock.Any(), "f1").Return(&corpus.Document{FileID: "f1", FileName: "NDA.pdf"}, nil)
	store.EXPECT().Document(gomock.Any(), "missing").Return(nil, corpus.ErrNotFound)
	router := newDocumentsRouter(NewDocumentsHandler(store, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/f1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var doc corpus.Document
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.FileName != "NDA.pdf" {
		t.Errorf("file name = %q", doc.FileName)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDocumentsHandler_Delete(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockDocumentStore(ctrl)
	store.EXPECT().Delete(gomock.Any(), "f1").Return(nil)
	store.EXPECT().Delete(gomock.Any(), "f2").Return(fmt.Errorf("failed to delete file: %w", errors.New("locked")))
	router := newDocumentsRouter(NewDocumentsHandler(store, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/f1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/f2", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestDocumentsHandler_Rename(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		mockSetup  func(*mocks.MockDocumentStore)
		wantStatus int
	}{
		{
			name: "renamed",
			body: `{"file_name":" Master_Services_Agreement.pdf "}`,
			mockSetup: func(m *mocks.MockDocumentStore) {
				m.EXPECT().Rename(gomock.Any(), "f1", "Master_Services_Agreement.pdf").Return(nil)
				m.EXPECT().Document(gomock.Any(), "f1").
					Return(&corpus.Document{FileID: "f1", FileName: "Master_Services_Agreement.pdf"}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "blank name",
			body:       `{"file_name":"  "}`,
			mockSetup:  func(m *mocks.MockDocumentStore) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"name":"x.pdf"}`,
			mockSetup:  func(m *mocks.MockDocumentStore) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown file",
			body: `{"file_name":"x.pdf"}`,
			mockSetup: func(m *mocks.MockDocumentStore) {
				m.EXPECT().Rename(gomock.Any(), "f1", "x.pdf").Return(corpus.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockDocumentStore(ctrl)
			tt.mockSetup(store)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPatch, "/documents/f1", strings.NewReader(tt.body))
			newDocumentsRouter(NewDocumentsHandler(store, nil)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestDocumentsHandler_Upload(t *testing.T) {
	ctrl := gomock.NewController(t)
	ingester := mocks.NewMockIngester(ctrl)
	ingester.EXPECT().Ingest(gomock.Any(), "NDA.md", []byte("# NDA")).
		Return(&ingest.Result{FileID: "f1", FileName: "NDA.md", Chunks: 1}, nil)

	body, contentType := multipartBody(t, map[string]string{"NDA.md": "# NDA"})
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	newDocumentsRouter(NewDocumentsHandler(nil, ingester)).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].FileID != "f1" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestDocumentsHandler_UploadUnsupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	ingester := mocks.NewMockIngester(ctrl)
	ingester.EXPECT().Ingest(gomock.Any(), "scan.pdf", gomock.Any()).
		Return(nil, fmt.Errorf("%w: scan.pdf", ingest.ErrUnsupportedFormat))

	body, contentType := multipartBody(t, map[string]string{"scan.pdf": "%PDF"})
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	newDocumentsRouter(NewDocumentsHandler(nil, ingester)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].FileName != "scan.pdf" {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestDocumentsHandler_UploadWithoutFile(t *testing.T) {
	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	newDocumentsRouter(NewDocumentsHandler(nil, nil)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDocumentsHandler_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockDocumentStore(ctrl)
	store.EXPECT().Stats(gomock.Any()).Return(&storage.CorpusStats{
		Documents:       2,
		Chunks:          5,
		ChunkTokenStats: storage.TokenStats{Min: 10, Max: 600, Mean: 250, P95: 590},
	}, nil)

	w := httptest.NewRecorder()
	newDocumentsRouter(NewDocumentsHandler(store, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var stats storage.CorpusStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Chunks != 5 || stats.ChunkTokenStats.P95 != 590 {
		t.Errorf("stats = %+v", stats)
	}
}
