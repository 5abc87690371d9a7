package chi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/logger"
)

// DefaultSessionCookie is read when no Authorization header is present.
const DefaultSessionCookie = "session"

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Authenticator resolves a session token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (principal.Principal, error)
}

type principalKey struct{}

// ContextWithPrincipal returns a context carrying p.
func ContextWithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal.Principal)
	return p, ok
}

// SessionAuth resolves the caller's session and stores the principal in the
// request context. Failures are answered through the error handler chain.
func (s *Server) SessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := exemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		token, err := sessionToken(r, s.sessionCookie)
		if err != nil {
			s.handleDomainError(w, r, err, start)
			return
		}

		p, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.handleDomainError(w, r, err, start)
			return
		}

		ctx := ContextWithPrincipal(r.Context(), p)
		reqLogger := logger.FromContext(ctx).With(
			zap.String("user_id", p.UserID),
			zap.String("role", p.Role),
		)
		ctx = logger.ContextWithLogger(ctx, reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken reads a Bearer token, falling back to the session cookie.
func sessionToken(r *http.Request, cookieName string) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", fmt.Errorf("%w: authorization header must use Bearer scheme", domain.ErrUnauthenticated)
		}
		if token = strings.TrimSpace(token); token == "" {
			return "", fmt.Errorf("%w: empty bearer token", domain.ErrUnauthenticated)
		}
		return token, nil
	}

	if c, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	return "", fmt.Errorf("%w: missing session", domain.ErrUnauthenticated)
}
