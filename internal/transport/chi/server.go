package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/domain"
	"github.com/kailas-cloud/paperdex/internal/metrics"
	healthuc "github.com/kailas-cloud/paperdex/internal/usecase/health"
	"github.com/kailas-cloud/paperdex/internal/usecase/retrieval"
)

const (
	maxBodyBytes = 1 << 20
	metricsPath  = "/metrics"
	// DefaultRetryAfterSec is sent with 503 responses while no index is loaded.
	DefaultRetryAfterSec = 5
)

// Querier answers similarity queries.
type Querier interface {
	Query(ctx context.Context, text string, k *int) ([]retrieval.Result, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the paperdex HTTP API.
type Server struct {
	retrieval     Querier
	health        HealthChecker
	logger        *zap.Logger
	retryAfter    int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(querier Querier, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retrieval:  querier,
		health:     health,
		logger:     logger,
		retryAfter: DefaultRetryAfterSec,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		s.indexUnavailableHandler,
		sentinelHandler(domain.ErrEncoding, http.StatusBadGateway, codeEncodingFailed),
	}
	return s
}

// WithRetryAfter sets the Retry-After seconds sent while the index is unavailable.
func (s *Server) WithRetryAfter(sec int) *Server {
	if sec > 0 {
		s.retryAfter = sec
	}
	return s
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := gochi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware(metricsPath))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Post("/query", s.Query)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, metricsPath, promhttp.Handler())
	return r
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.retrieval.Query(ctx, req.Query, req.K)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]resultItem, len(results))
	for i := range results {
		items[i] = resultToItem(&results[i])
	}
	writeJSON(w, http.StatusOK, queryResponse{Results: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrIndexUnavailable,
		domain.ErrEncoding,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationHandler reports the full message: validation errors only describe
// the request itself.
func validationHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	return true
}

func (s *Server) indexUnavailableHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(s.retryAfter))
	writeError(w, http.StatusServiceUnavailable, codeIndexUnavailable, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := loggerFrom(r, s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
