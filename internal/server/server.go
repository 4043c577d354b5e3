package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/server/api"
	"driftwatch/crawler/internal/storage"
)

// Server exposes the pipeline's read API: accepted items, the last cycle
// report, a manual cycle trigger, and a health probe.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	http   *http.Server
}

// apiKeyMiddleware checks the X-API-Key header against the configured key.
// An empty key disables authentication.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			reqKey := r.Header.Get("X-API-Key")
			if reqKey == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}
			if reqKey != apiKey {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func New(cfg *config.Config, repo *storage.Repository, pipeline api.Pipeline, logger zerolog.Logger) *Server {
	logger = logger.With().Str("service", "crawler-api").Logger()

	handler := api.NewHandler(repo, pipeline)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/items", handler.GetItems)
	mux.HandleFunc("GET /v1/report", handler.GetReport)
	mux.HandleFunc("POST /v1/cycles", handler.TriggerCycle)
	mux.HandleFunc("GET /health", healthCheckHandler)

	h := hlog.NewHandler(logger)(mux)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP Request")
	})(h)

	if cfg.APIKey != "" {
		h = apiKeyMiddleware(cfg.APIKey)(h)
		logger.Info().Msg("API key authentication enabled")
	} else {
		logger.Info().Msg("API key authentication disabled")
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:              cfg.ListenAddr(),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.http.Addr).Msg("API server starting")
		err := s.http.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
			if err := s.http.Close(); err != nil {
				s.logger.Error().Err(err).Msg("HTTP server force close error")
			}
		} else {
			s.logger.Info().Msg("HTTP server shutdown complete")
		}
		if err := <-serverErr; err != nil {
			s.logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
		}
		return nil
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing health check response")
	}
}
