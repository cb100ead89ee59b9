// Package api provides the HTTP server for the vouch trust ledger.
// It exposes the report, stake, balance, trust-score, and chain endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vouch-network/vouch/internal/domain"
	"github.com/vouch-network/vouch/internal/infra/balance"
	"github.com/vouch-network/vouch/internal/infra/consensus"
	"github.com/vouch-network/vouch/internal/infra/ledger"
	"github.com/vouch-network/vouch/internal/infra/score"
)

// Server is the vouch HTTP API server.
type Server struct {
	engine         *consensus.Engine
	balances       *balance.Store
	chain          *ledger.Chain
	scores         *score.Calculator
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(engine *consensus.Engine, balances *balance.Store,
	chain *ledger.Chain, scores *score.Calculator) *Server {
	return &Server{engine: engine, balances: balances, chain: chain, scores: scores}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	// Health check for deployment platforms
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleSubmitReport)
			r.Get("/{id}", s.handleGetReport)
			r.Post("/{id}/stakes", s.handleStake)
		})

		r.Get("/balances/{participant}", s.handleGetBalance)
		r.Get("/trust/{target}", s.handleTrustScore)

		r.Route("/chain", func(r chi.Router) {
			r.Get("/verify", s.handleVerifyChain)
			r.Get("/blocks", s.handleListBlocks)
			r.Get("/blocks/{index}", s.handleGetBlock)
		})
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a domain sentinel error to an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrReportNotFound),
		errors.Is(err, domain.ErrUnknownParticipant):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrStakeBelowMinimum),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInconsistentImpactSign),
		errors.Is(err, domain.ErrImpactOutOfRange),
		errors.Is(err, domain.ErrSelfReport):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrReportExpired),
		errors.Is(err, domain.ErrReportAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrChainHalted),
		errors.Is(err, domain.ErrChainIntegrity):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
