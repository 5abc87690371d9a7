package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length in characters.
	MaxQueryLength    = 4096
	DefaultMaxResults = 25
	MinResults        = 1
	MaxResults        = 100
)

// Request is a validated search query.
type Request struct {
	query      string
	maxResults int
}

// New validates the query text and clamps the result ceiling.
// A nil maxResults selects DefaultMaxResults.
func New(query string, maxResults *int) (Request, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query exceeds %d characters", domain.ErrValidation, MaxQueryLength)
	}

	n := DefaultMaxResults
	if maxResults != nil {
		n = Clamp(*maxResults)
	}
	return Request{query: q, maxResults: n}, nil
}

// Query returns the trimmed query text.
func (r Request) Query() string { return r.query }

// MaxResults returns the effective result ceiling, always in [MinResults, MaxResults].
func (r Request) MaxResults() int { return r.maxResults }

// Clamp bounds n to [MinResults, MaxResults].
func Clamp(n int) int {
	return min(max(n, MinResults), MaxResults)
}
