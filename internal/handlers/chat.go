package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Davincible/toolbridge/internal/bridge"
	"github.com/Davincible/toolbridge/internal/schema"
	"github.com/Davincible/toolbridge/internal/stream"
)

const maxRequestBytes = 10 << 20

type ChatHandler struct {
	bridge   *bridge.Bridge
	streamer *stream.Streamer
	logger   *slog.Logger
}

func NewChatHandler(b *bridge.Bridge, streamer *stream.Streamer, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		bridge:   b,
		streamer: streamer,
		logger:   logger,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpError(w, h.logger, http.StatusMethodNotAllowed, errTypeInvalidRequest, "", "method not allowed")
		return
	}

	var req schema.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		httpError(w, h.logger, http.StatusBadRequest, errTypeInvalidRequest, "", fmt.Sprintf("failed to parse request body: %v", err))
		return
	}

	// Nothing is written until the upstream call has succeeded, so every
	// pipeline failure can still become a JSON error response.
	completion, err := h.bridge.Complete(r.Context(), &req)
	if err != nil {
		writeBridgeError(w, h.logger, err)
		return
	}

	if !req.Stream {
		writeJSON(w, h.logger, http.StatusOK, completion.Response())
		return
	}

	h.handleStreamingResponse(w, r, completion)
}

func (h *ChatHandler) handleStreamingResponse(w http.ResponseWriter, r *http.Request, completion *bridge.Completion) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	h.flushResponse(w)

	ctx := r.Context()
	frames := 0
	for chunk := range completion.Chunks(ctx, h.streamer) {
		data, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("Failed to encode chunk", "error", err, "request_id", completion.ID)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			h.logger.Debug("Client disconnected", "request_id", completion.ID, "error", err)
			return
		}
		h.flushResponse(w)
		frames++
	}

	if ctx.Err() != nil {
		h.logger.Debug("Stream cancelled", "request_id", completion.ID, "frames", frames)
		return
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		h.logger.Debug("Client disconnected", "request_id", completion.ID, "error", err)
		return
	}
	h.flushResponse(w)
}

func (h *ChatHandler) flushResponse(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
