package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/hvacsearch/internal/db"
	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
)

// store is the consumer interface for session lookups (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Repo resolves session tokens to principals. Sessions are issued elsewhere;
// this side only reads them.
type Repo struct {
	store  store
	prefix string
	static map[string]principal.Principal
	now    func() time.Time
}

// Option configures a Repo.
type Option func(*Repo)

// WithStatic registers fixed token→principal bindings consulted before the store.
func WithStatic(sessions map[string]principal.Principal) Option {
	return func(r *Repo) {
		for token, p := range sessions {
			r.static[token] = p
		}
	}
}

// WithClock overrides the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// New creates a session repository. s may be nil when only static sessions are used.
func New(s store, prefix string, opts ...Option) *Repo {
	r := &Repo{
		store:  s,
		prefix: prefix,
		static: make(map[string]principal.Principal),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authenticate returns the principal behind token.
// Unknown tokens yield ErrUnauthenticated; lapsed sessions yield ErrSessionExpired.
func (r *Repo) Authenticate(ctx context.Context, token string) (principal.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return principal.Principal{}, fmt.Errorf("%w: missing session", domain.ErrUnauthenticated)
	}

	if p, ok := r.static[token]; ok {
		return r.checkExpiry(p)
	}
	if r.store == nil {
		return principal.Principal{}, fmt.Errorf("%w: unknown session", domain.ErrUnauthenticated)
	}

	data, err := r.store.Get(ctx, r.prefix+token)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return principal.Principal{}, fmt.Errorf("%w: unknown session", domain.ErrUnauthenticated)
		}
		return principal.Principal{}, domain.NewUpstreamError("session.lookup", 0, domain.ErrUpstreamUnavailable, err)
	}

	var p principal.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return principal.Principal{}, fmt.Errorf("%w: malformed session record", domain.ErrUnauthenticated)
	}
	if p.Role == "" {
		return principal.Principal{}, fmt.Errorf("%w: session has no role", domain.ErrUnauthenticated)
	}
	return r.checkExpiry(p)
}

func (r *Repo) checkExpiry(p principal.Principal) (principal.Principal, error) {
	if p.Expired(r.now()) {
		return principal.Principal{}, domain.ErrSessionExpired
	}
	return p, nil
}
