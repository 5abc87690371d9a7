package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/hvacsearch/internal/db"
	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
)

// OpQuery names vector queries in upstream errors.
const OpQuery = "vector.query"

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Config describes the pre-populated record index.
type Config struct {
	IndexName       string
	KeyPrefix       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
	Timeout         time.Duration // per query; 0 disables
}

// Repo implements the vector retriever over an FT index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a search repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// Query runs a filtered KNN search and returns hits ordered by similarity.
// Failures are *domain.UpstreamError values with Op "vector.query".
func (r *Repo) Query(
	ctx context.Context, vector []float32, f filter.Filter, topK int,
) ([]result.RawHit, error) {
	if r.cfg.Dimensions > 0 && len(vector) != r.cfg.Dimensions {
		return nil, domain.NewUpstreamError(OpQuery, 0, domain.ErrDimensionMismatch,
			fmt.Errorf("query vector has %d dimensions, index %s expects %d",
				len(vector), r.cfg.IndexName, r.cfg.Dimensions))
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	q := &db.KNNQuery{
		IndexName: r.cfg.IndexName,
		Filter:    f,
		Vector:    vector,
		K:         topK,
	}

	start := time.Now()
	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		upErr := translateError(err)
		metrics.VectorQueryDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, upErr
	}
	metrics.VectorQueryDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	return r.parseHits(sr), nil
}

// translateError maps storage failures to the pipeline's error classes.
func translateError(err error) *domain.UpstreamError {
	switch {
	case errors.Is(err, db.ErrIndexNotFound):
		return domain.NewUpstreamError(OpQuery, 0, domain.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewUpstreamError(OpQuery, 0, domain.ErrTimeout, err)
	}
	if re, ok := rueidis.IsRedisErr(err); ok {
		if re.IsTryAgain() || re.IsClusterDown() || hasAnyPrefix(re.Error(), transientServerErrors) {
			return domain.NewUpstreamError(OpQuery, 0, domain.ErrUpstreamUnavailable, err)
		}
		return domain.NewUpstreamError(OpQuery, 0, domain.ErrInternal, err)
	}
	return domain.NewUpstreamError(OpQuery, 0, domain.ErrNetwork, err)
}

// transientServerErrors are server replies that clear up on their own.
var transientServerErrors = []string{"LOADING", "BUSY", "MASTERDOWN"}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// parseHits converts hash fields into hit metadata. Schema-numeric fields become float64.
func (r *Repo) parseHits(sr *db.SearchResult) []result.RawHit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	hits := make([]result.RawHit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hit := result.RawHit{
			ID:       strings.TrimPrefix(entry.Key, r.cfg.KeyPrefix),
			Score:    entry.Score,
			Metadata: make(map[string]any, len(entry.Fields)),
		}
		for k, v := range entry.Fields {
			if k == result.FieldText {
				hit.Text = v
				continue
			}
			if f, ok := numericValue(k, v); ok {
				hit.Metadata[k] = f
			} else {
				hit.Metadata[k] = v
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// numericFields are the schema-numeric fields; everything else is copied verbatim.
var numericFields = func() map[string]bool {
	m := make(map[string]bool, len(result.NumericFields)+len(filterableNumerics))
	for _, f := range result.NumericFields {
		m[f] = true
	}
	for _, f := range filterableNumerics {
		m[f] = true
	}
	return m
}()

// numericValue parses v when field k is numeric by schema and v is a finite number.
func numericValue(k, v string) (float64, bool) {
	if !numericFields[k] {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
