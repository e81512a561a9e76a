package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Davincible/toolbridge/internal/bridge"
	"github.com/Davincible/toolbridge/internal/schema"
)

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeUpstream       = "upstream_error"
	errTypeServer         = "server_error"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, logger *slog.Logger, status int, errType, code, msg string) {
	logger.Error("HTTP Error", "code", status, "message", msg)
	writeJSON(w, logger, status, schema.ErrorResponse{Error: schema.ErrorBody{
		Message: msg,
		Type:    errType,
		Code:    code,
	}})
}

// writeBridgeError maps pipeline errors to OpenAI error responses.
func writeBridgeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		reqErr      *bridge.RequestError
		cfgErr      *bridge.ConfigurationError
		upstreamErr *bridge.UpstreamError
	)

	switch {
	case errors.As(err, &reqErr):
		httpError(w, logger, http.StatusBadRequest, errTypeInvalidRequest, "", err.Error())
	case errors.As(err, &cfgErr):
		httpError(w, logger, http.StatusNotFound, errTypeInvalidRequest, "model_not_found", err.Error())
	case errors.As(err, &upstreamErr):
		httpError(w, logger, http.StatusBadGateway, errTypeUpstream, "upstream_failed", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
		logger.Debug("Request cancelled by client")
	default:
		httpError(w, logger, http.StatusInternalServerError, errTypeServer, "", err.Error())
	}
}
