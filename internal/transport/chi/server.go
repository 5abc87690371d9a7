// Package chi exposes the search pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/request"
	"github.com/kailas-cloud/hvacsearch/internal/logger"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
	healthuc "github.com/kailas-cloud/hvacsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/hvacsearch/internal/usecase/search"
)

const maxBodyBytes = 64 << 10

// Searcher runs one search for an authenticated caller.
type Searcher interface {
	Search(ctx context.Context, p principal.Principal, req request.Request) (searchuc.Response, error)
}

// HealthReporter reports component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the HTTP API.
type Server struct {
	search        Searcher
	health        HealthReporter
	auth          Authenticator
	validate      *validator.Validate
	logger        *zap.Logger
	secrets       []string
	sessionCookie string
	defaultMax    int
	errorHandlers []errorHandler
}

// Option configures a Server.
type Option func(*Server)

// WithSecrets masks the given values in error payloads and logs.
func WithSecrets(secrets ...string) Option {
	return func(s *Server) { s.secrets = append(s.secrets, secrets...) }
}

// WithSessionCookie overrides the session cookie name.
func WithSessionCookie(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.sessionCookie = name
		}
	}
}

// WithDefaultMaxResults sets the result ceiling used when a request omits max_results.
func WithDefaultMaxResults(n int) Option {
	return func(s *Server) { s.defaultMax = n }
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthReporter, auth Authenticator, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:        search,
		health:        health,
		auth:          auth,
		validate:      newValidator(),
		logger:        logger,
		sessionCookie: DefaultSessionCookie,
		errorHandlers: defaultErrorHandlers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(s.SessionAuth)
	r.Use(metrics.Middleware())

	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		s.handleDomainError(w, r, fmt.Errorf("%w: no session on request", domain.ErrUnauthenticated), start)
		return
	}

	var body SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.handleDomainError(w, r, fmt.Errorf("%w: invalid request body: %w", domain.ErrValidation, err), start)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.handleDomainError(w, r, validationError(err), start)
		return
	}

	if body.MaxResults == nil && s.defaultMax > 0 {
		body.MaxResults = &s.defaultMax
	}
	req, err := request.New(body.Query, body.MaxResults)
	if err != nil {
		s.handleDomainError(w, r, err, start)
		return
	}

	resp, err := s.search.Search(r.Context(), p, req)
	if err != nil {
		s.handleDomainError(w, r, err, start)
		return
	}
	if err := writeJSON(w, http.StatusOK, NewSearchResponse(resp)); err != nil {
		logger.FromContext(r.Context()).Error("encode search response",
			zap.Int("sources", len(resp.Sources)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
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
	_ = writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns validator output into a domain.ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

// writeJSON encodes v before writing the status, so an unencodable body becomes a
// 500 error payload instead of a truncated success. The encode error is returned.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{
			Code:    CodeInternalError,
			Message: userMessage(domain.ErrInternal),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
	return err
}

func writeError(w http.ResponseWriter, status int, code, message string, debug *ErrorDebug) {
	_ = writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Debug:   debug,
	})
}
