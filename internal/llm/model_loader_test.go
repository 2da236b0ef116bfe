package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestModelLoader_EnsureLoaded(t *testing.T) {
	var polls atomic.Int32
	var loads atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			n := polls.Add(1)
			_ = json.NewEncoder(w).Encode(modelsResponse{Data: []modelStatus{{ID: "llama", InCache: n >= 3}}})
		case "/models/load":
			loads.Add(1)
			_ = json.NewEncoder(w).Encode(loadModelResponse{Success: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ml := NewModelLoader(server.URL)
	ml.pollInterval = time.Millisecond

	if err := ml.EnsureLoaded(context.Background(), "llama"); err != nil {
		t.Fatalf("EnsureLoaded() error = %v", err)
	}
	if loads.Load() != 1 {
		t.Errorf("load called %d times, want 1", loads.Load())
	}

	loaded, err := ml.IsModelLoaded(context.Background(), "llama")
	if err != nil || !loaded {
		t.Errorf("IsModelLoaded() = %v, %v", loaded, err)
	}
}

func TestModelLoader_LoadFailure(t *testing.T) {
	failed := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			st := modelStatus{ID: "llama"}
			st.Status.Failed = &failed
			_ = json.NewEncoder(w).Encode(modelsResponse{Data: []modelStatus{st}})
		case "/models/load":
			_ = json.NewEncoder(w).Encode(loadModelResponse{Success: true})
		}
	}))
	defer server.Close()

	ml := NewModelLoader(server.URL)
	ml.pollInterval = time.Millisecond
	if err := ml.EnsureLoaded(context.Background(), "llama"); err == nil {
		t.Error("EnsureLoaded() expected error for failed model")
	}
}
