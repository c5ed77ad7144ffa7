// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/okian/cupcakes/internal/adapters/repository"
	"github.com/okian/cupcakes/internal/domain/model"
	"github.com/okian/cupcakes/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the store implementation.
type Dependencies interface {
	repository.Store

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}

// Server wires HTTP routes for the cupcake API.
type Server struct {
	cupcakes *CupcakesHandler
	health   *HealthHandler
	stats    *StatsHandler

	limiter *rate.Limiter
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit enables a token bucket limiter on the API routes. A
// non-positive rps leaves limiting disabled.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for access and error logs.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	s.cupcakes = NewCupcakesHandler(deps, s.logger)
	s.health = NewHealthHandler(deps, s.logger)
	s.stats = NewStatsHandler(statsProvider, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /api/cupcakes", s.withMiddleware(s.cupcakes.HandleList, "cupcakes"))
	mux.HandleFunc("POST /api/cupcakes", s.withMiddleware(s.cupcakes.HandleCreate, "cupcakes"))
	mux.HandleFunc("GET /api/cupcakes/{id}", s.withMiddleware(s.cupcakes.HandleGet, "cupcake"))
	mux.HandleFunc("PATCH /api/cupcakes/{id}", s.withMiddleware(s.cupcakes.HandleUpdate, "cupcake"))
	mux.HandleFunc("DELETE /api/cupcakes/{id}", s.withMiddleware(s.cupcakes.HandleDelete, "cupcake"))

	// System endpoints skip rate limiting.
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", s.withMiddleware(s.stats.HandleStats, "stats"))
	mux.Handle("GET /metrics", MetricsHandler())
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   msg,
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

// writeFailure translates store and decode errors into the HTTP contract:
// validation -> 400, unknown id -> 404, anything else -> a generic 500.
func writeFailure(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, unwrapField(err)))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	default:
		log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}

// unwrapField strips store op prefixes so clients see only the field failure.
func unwrapField(err error) error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return fe
	}
	return err
}

// pathID parses the {id} path segment. Anything but a positive integer
// cannot name a stored record.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
