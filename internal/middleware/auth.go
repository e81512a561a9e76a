package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Davincible/toolbridge/internal/schema"
)

type AuthMiddleware struct {
	apiKey string
	logger *slog.Logger
}

func NewAuthMiddleware(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	am := &AuthMiddleware{
		apiKey: apiKey,
		logger: logger,
	}

	return am.middleware
}

func (am *AuthMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := am.authenticate(r); err != nil {
			am.logger.Error("Authentication failed", "error", err, "remote_addr", r.RemoteAddr)
			writeUnauthorized(w, err)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (am *AuthMiddleware) authenticate(r *http.Request) error {
	// Skip auth for health checks or if no API key is configured
	if r.URL.Path == "/health" || am.apiKey == "" {
		return nil
	}

	var token string

	// Check Authorization header
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		token = apiKey
	}

	if token == "" {
		return errors.New("no authentication token provided")
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(am.apiKey)) != 1 {
		return errors.New("invalid API key")
	}

	return nil
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(schema.ErrorResponse{Error: schema.ErrorBody{
		Message: err.Error(),
		Type:    "authentication_error",
		Code:    "invalid_api_key",
	}})
}
