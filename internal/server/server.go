package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Davincible/toolbridge/internal/bridge"
	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/handlers"
	"github.com/Davincible/toolbridge/internal/middleware"
	"github.com/Davincible/toolbridge/internal/prompt"
	"github.com/Davincible/toolbridge/internal/providers"
	"github.com/Davincible/toolbridge/internal/stream"
	"github.com/Davincible/toolbridge/internal/tokens"
	"github.com/Davincible/toolbridge/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config   *config.Config
	registry *providers.Registry
	bridge   *bridge.Bridge
	streamer *stream.Streamer
	service  string
	version  string
	logger   *slog.Logger
	server   *http.Server
}

// New wires the request pipeline from cfg. The config must already be
// validated; registry construction errors are returned as is.
func New(cfg *config.Config, service, version string, logger *slog.Logger) (*Server, error) {
	registry, err := providers.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	estimator := tokens.NewTiktoken(cfg.TokenEncoding, logger)
	estimator.Warm()

	b := bridge.New(bridge.Options{
		Registry:    registry,
		Synthesizer: prompt.NewSynthesizer(cfg.MaxPromptChars, logger),
		Upstream:    upstream.NewClient(upstream.OptionsFromConfig(cfg), logger),
		Tokens:      estimator,
		Defaults:    cfg.Defaults,
	}, logger)

	return &Server{
		config:   cfg,
		registry: registry,
		bridge:   b,
		streamer: stream.New(stream.OptionsFromConfig(cfg.Stream)),
		service:  service,
		version:  version,
		logger:   logger,
	}, nil
}

// Start serves until SIGINT/SIGTERM or ctx is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting server",
		"address", ln.Addr().String(),
		"default_provider", s.config.DefaultProvider,
		"providers", s.registry.List())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(s.bridge, s.streamer, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.registry, s.logger)
	healthHandler := handlers.NewHealthHandler(s.config, s.service, s.version, s.logger)
	rootHandler := handlers.NewRootHandler(s.service, s.version, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config.APIKey, s.logger)

	mux.Handle("/v1/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))
	mux.Handle("/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))
	mux.Handle("/v1/models", middlewareSet.DefaultChain().Handler(modelsHandler))
	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/", middlewareSet.PublicChain().Handler(rootHandler))

	return mux
}
