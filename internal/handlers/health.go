package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/providers"
	"github.com/Davincible/toolbridge/internal/schema"
)

type HealthHandler struct {
	cfg     *config.Config
	service string
	version string
	logger  *slog.Logger
}

func NewHealthHandler(cfg *config.Config, service, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:     cfg,
		service: service,
		version: version,
		logger:  logger,
	}
}

// ServeHTTP reports liveness together with the masked configuration.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": h.service,
		"version": h.version,
		"config":  h.cfg.Info(),
	})
}

type RootHandler struct {
	service string
	version string
	logger  *slog.Logger
}

func NewRootHandler(service, version string, logger *slog.Logger) *RootHandler {
	return &RootHandler{service: service, version: version, logger: logger}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httpError(w, h.logger, http.StatusNotFound, errTypeInvalidRequest, "not_found", "unknown path "+r.URL.Path)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"service": h.service,
		"version": h.version,
		"status":  "running",
		"endpoints": map[string]string{
			"chat":   "/v1/chat/completions",
			"models": "/v1/models",
			"health": "/health",
		},
	})
}

type ModelsHandler struct {
	registry *providers.Registry
	created  int64
	logger   *slog.Logger
}

func NewModelsHandler(registry *providers.Registry, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{registry: registry, created: time.Now().Unix(), logger: logger}
}

// ServeHTTP lists the default provider's models only.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := ""
	if p, ok := h.registry.Default(); ok {
		owner = p.Name
	}

	list := schema.ModelList{Object: "list", Data: []schema.Model{}}
	for _, id := range h.registry.ListModels() {
		list.Data = append(list.Data, schema.Model{
			ID:      id,
			Object:  "model",
			Created: h.created,
			OwnedBy: owner,
		})
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}
