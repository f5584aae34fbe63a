package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/config"
	"github.com/JakeFAU/pricing-research/internal/logging"
	"github.com/JakeFAU/pricing-research/internal/metrics"
	"github.com/JakeFAU/pricing-research/internal/research"
)

const scrapeFailureMessage = "An error occurred while scraping the product."

// ReadinessCheck reports whether downstream dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the research core.
type Server struct {
	router chi.Router
	deps   HandlerDeps
	ready  ReadinessCheck
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps HandlerDeps, ready ReadinessCheck, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if deps.Logger == nil {
		deps.Logger = logger
	}
	s := &Server{
		deps:   deps,
		ready:  ready,
		logger: logger,
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/research", s.postResearch)
		r.Get("/research", s.getResearch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) postResearch(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.serve(w, r, req, (*RequestHandler).Post)
}

func (s *Server) getResearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := Request{
		URL:           q.Get("url"),
		Marketplace:   q.Get("marketplace"),
		MarketplaceID: q.Get("marketplace_id"),
		SKU:           q.Get("sku"),
	}
	if raw := q.Get("collector_option"); raw != "" {
		option, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "collector_option must be an integer")
			return
		}
		req.CollectorOption = option
	}
	s.serve(w, r, req, (*RequestHandler).Get)
}

func (s *Server) serve(
	w http.ResponseWriter,
	r *http.Request,
	req Request,
	run func(*RequestHandler, context.Context) ([]research.SellerOffer, error),
) {
	logger := logging.FromContext(r.Context(), s.logger)
	deps := s.deps
	deps.Logger = logger

	handler, err := NewHandler(req, deps)
	if err == nil {
		var sellers []research.SellerOffer
		sellers, err = run(handler, r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"result": sellers})
			return
		}
	}

	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("research request failed", zap.Error(err))
	} else {
		logger.Info("research request rejected", zap.Error(err))
	}
	writeError(w, status, msg)
}

var clientErrors = []error{
	research.ErrInvalidInput,
	research.ErrInvalidStrategy,
	research.ErrUnsupportedStrategy,
	research.ErrUnsupportedMarketplace,
	research.ErrMissingRequiredInput,
	research.ErrUnsupportedStorageMode,
}

// errorResponse maps a research error to a status code and a client-safe message.
func errorResponse(err error) (int, string) {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	return http.StatusInternalServerError, scrapeFailureMessage
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(fmt.Errorf("encode response: %w", err)))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
