package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server HTTP server
type Server struct {
	server   *http.Server
	liveForm *LiveForm
	config   ServerConfig
	logger   *zap.Logger
}

// ServerConfig server settings
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig default server settings
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   64 << 10,
	}
}

// NewRouter wires routes and middleware around api
func NewRouter(api *API, config ServerConfig) (http.Handler, *LiveForm) {
	corsOptions := cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept-Language", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}
	liveForm := NewLiveForm(api, originChecker(config.AllowedOrigins), config.MaxBodyBytes)

	r := chi.NewRouter()
	r.Use(baseMiddleware(api.logger, corsOptions)...)

	r.Route("/api", func(r chi.Router) {
		// hijacked connections must not sit behind the timeout handler
		r.Get("/ws/predict", liveForm.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(config.Timeout), RequestSizeMiddleware(config.MaxBodyBytes))
			r.Get("/health", api.handleHealth)
			r.Get("/ready", api.handleReady)
			r.Get("/features", api.handleFeatures)
			r.Post("/predict", api.handlePredict)
			r.Get("/predict/defaults", api.handlePredictDefaults)
			r.Get("/artifacts", api.handleArtifacts)
			r.Get("/metrics", api.handleMetrics)
		})
	})

	return r, liveForm
}

// baseMiddleware runs outermost first. The request ID is assigned before recovery so a
// panic log carries it.
func baseMiddleware(logger *zap.Logger, corsOptions cors.Options) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		RequestIDMiddleware,
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		cors.Handler(corsOptions),
	}
}

// originChecker applies the CORS allow-list to websocket upgrades. Requests without an
// Origin header come from non-browser clients and are accepted.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

// NewServer creates the HTTP server
func NewServer(config ServerConfig, api *API) *Server {
	handler, liveForm := NewRouter(api, config)
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		liveForm: liveForm,
		config:   config,
		logger:   api.logger,
	}
}

// Start blocks serving until Stop
func (s *Server) Start() error {
	s.logger.Info("starting http server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", fmt.Sprintf("ws://localhost%s/api/ws/predict", s.server.Addr)),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes websocket clients
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")
	s.liveForm.Close()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr listen address
func (s *Server) Addr() string {
	return s.server.Addr
}
