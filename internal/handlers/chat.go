package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"docrag/internal/contextutil"
	"docrag/internal/rag"
)

// ChatHandler handles HTTP requests for chat.
type ChatHandler struct {
	engine rag.Engine
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(engine rag.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// ServeHTTP answers a question. With ?stream=true the answer is sent as
// Server-Sent Events: one "token" event per generated piece, then a
// "done" event carrying the full response.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rag.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if r.URL.Query().Get("debug") == "true" {
		req.Debug = true
	}

	if r.URL.Query().Get("stream") == "true" {
		h.stream(w, r, req)
		return
	}

	resp, err := h.engine.Ask(ctx, req)
	if err != nil {
		handleError(ctx, w, err, "Failed to process chat request")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req rag.ChatRequest) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	resp, err := h.engine.Stream(ctx, req, func(token string) error {
		start()
		if err := writeEvent(w, "token", token); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			handleError(ctx, w, err, "Failed to process chat request")
			return
		}
		logger.ErrorContext(ctx, "error streaming chat", "error", err)
		_ = writeEvent(w, "error", ErrorResponse{Error: err.Error()})
		flusher.Flush()
		return
	}

	start()
	_ = writeEvent(w, "done", resp)
	flusher.Flush()
}

// writeEvent writes one SSE event with a JSON encoded payload.
func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
