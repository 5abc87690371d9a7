package chi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidationFailed    = "validation_failed"
	CodeInvalidFilter       = "invalid_filter"
	CodeUnauthenticated     = "unauthenticated"
	CodeSessionExpired      = "session_expired"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeRateLimited         = "rate_limited"
	CodeDimensionMismatch   = "dimension_mismatch"
	CodeInternalError       = "internal_error"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeNetworkError        = "network_error"
	CodeTimeout             = "timeout"
)

const (
	causeChainDepth    = 3
	maxCauseMessageLen = 240
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Debug   *ErrorDebug `json:"debug,omitempty"`
}

// ErrorDebug carries operator-facing detail. Configured secrets are masked.
type ErrorDebug struct {
	Operation    string `json:"operation"`
	CauseClass   string `json:"cause_class"`
	CauseMessage string `json:"cause_message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, debug *ErrorDebug) bool

// defaultErrorHandlers is ordered most-specific first: a filter validation error
// is also a validation error, an expired session is also unauthenticated.
func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrFilterValidation, http.StatusBadRequest, CodeInvalidFilter),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		challengeHandler(domain.ErrSessionExpired, CodeSessionExpired),
		challengeHandler(domain.ErrUnauthenticated, CodeUnauthenticated),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, CodeForbidden),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusInternalServerError, CodeDimensionMismatch),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, CodeUpstreamUnavailable),
		sentinelHandler(domain.ErrNetwork, http.StatusServiceUnavailable, CodeNetworkError),
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, debug *ErrorDebug) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, userMessage(sentinel), debug)
		return true
	}
}

// challengeHandler answers 401 with a Bearer challenge.
func challengeHandler(sentinel error, code string) errorHandler {
	return func(w http.ResponseWriter, err error, debug *ErrorDebug) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="hvacsearch"`)
		writeError(w, http.StatusUnauthorized, code, userMessage(sentinel), debug)
		return true
	}
}

func userMessage(class error) string {
	switch class {
	case domain.ErrValidation:
		return "The request is invalid."
	case domain.ErrFilterValidation:
		return "The search filter is invalid."
	case domain.ErrUnauthenticated:
		return "Please sign in to search."
	case domain.ErrSessionExpired:
		return "Your session has expired. Please sign in again."
	case domain.ErrForbidden:
		return "You do not have access to this data."
	case domain.ErrNotFound:
		return "The search index is not available."
	case domain.ErrRateLimited:
		return "Too many requests. Please try again shortly."
	case domain.ErrTimeout:
		return "The search took too long. Please try again."
	case domain.ErrUpstreamUnavailable, domain.ErrNetwork:
		return "A search dependency is temporarily unavailable."
	default:
		return "Something went wrong while searching."
	}
}

// handleDomainError logs err with its redacted cause chain and writes the
// mapped response. Unmatched errors become 500.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, started time.Time) {
	debug := s.debugFor(err)

	status := http.StatusInternalServerError
	handled := false
	rec := &statusRecorder{ResponseWriter: w}
	for _, h := range s.errorHandlers {
		if h(rec, err, debug) {
			status = rec.status
			handled = true
			break
		}
	}
	if !handled {
		writeError(w, status, CodeInternalError, userMessage(domain.ErrInternal), debug)
	}

	level := zapcore.WarnLevel
	if status >= http.StatusInternalServerError {
		level = zapcore.ErrorLevel
	}
	logger.FromContext(r.Context()).Log(level, "request failed",
		zap.String("op", debug.Operation),
		zap.Int("status", status),
		zap.String("class", domain.ClassOf(err).Error()),
		zap.Duration("duration", time.Since(started)),
		zap.Strings("cause_chain", logger.CauseChain(err, causeChainDepth, s.secrets...)),
	)
}

func (s *Server) debugFor(err error) *ErrorDebug {
	op := "search"
	var up *domain.UpstreamError
	if errors.As(err, &up) && up.Op != "" {
		op = up.Op
	}

	cause := rootCause(err)
	if cause == domain.ClassOf(err) {
		// a bare class sentinel says less than the wrapping message
		cause = err
	}
	msg := logger.Redact(cause.Error(), s.secrets...)
	if utf8.RuneCountInString(msg) > maxCauseMessageLen {
		msg = string([]rune(msg)[:maxCauseMessageLen]) + "…"
	}
	return &ErrorDebug{
		Operation:    op,
		CauseClass:   fmt.Sprintf("%T", cause),
		CauseMessage: msg,
	}
}

// rootCause follows the unwrap chain to its end. For multi-errors the last
// entry is taken, which is the underlying cause of a domain.UpstreamError.
func rootCause(err error) error {
	for {
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
}

// statusRecorder remembers the status written by an errorHandler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
