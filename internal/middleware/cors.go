package middleware

import (
	"log/slog"
	"net/http"
)

type CORSMiddleware struct {
	logger *slog.Logger
}

// NewCORSMiddleware allows any origin and answers preflight requests
// directly.
func NewCORSMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	cm := &CORSMiddleware{
		logger: logger,
	}

	return cm.middleware
}

func (cm *CORSMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Add("Vary", "Origin")

		if cm.isPreflight(r) {
			cm.sendPreflightResponse(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (cm *CORSMiddleware) sendPreflightResponse(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
	} else {
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
	}
	h.Set("Access-Control-Max-Age", "86400")

	cm.logger.Debug("Answered CORS preflight", "path", r.URL.Path, "origin", r.Header.Get("Origin"))
	w.WriteHeader(http.StatusNoContent)
}

func (cm *CORSMiddleware) isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
