// Package core provides the API chassis: a chi router with the cross-cutting
// concerns (request IDs, logging, recovery, metrics, error envelopes) applied
// before requests reach domain handlers.
package core

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agroclima/internal/config"
	"agroclima/internal/observability"
)

// Server bundles the router with its cross-cutting dependencies. Routes are
// mounted by the caller after construction so tests can register their own.
type Server struct {
	Config  *config.ServerConfig
	Logger  *slog.Logger
	Metrics *observability.Metrics

	router *chi.Mux
}

// NewServer builds the chassis with the base middleware stack applied and
// the health and metrics endpoints mounted.
func NewServer(cfg *config.ServerConfig, logger *slog.Logger, metrics *observability.Metrics, ready func(ctx context.Context) error) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer(logger))
	r.Use(Logging(logger, metrics))

	r.Get("/healthz", healthHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &Server{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		router:  r,
	}
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts it
// down within the configured grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.Config.Port,
		Handler:      s.router,
		ReadTimeout:  s.Config.ReadTimeout,
		WriteTimeout: s.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "port", s.Config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()
	s.Logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports process liveness and, when a readiness probe is
// supplied, dependency health.
func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				JSON(w, r, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
