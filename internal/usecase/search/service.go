// Package search orchestrates one natural-language search: routing, concurrent
// retrieval per tool call, entity aggregation, charts and the summary.
package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/execution"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/request"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/logger"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
	"github.com/kailas-cloud/hvacsearch/internal/retry"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/normalize"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/router"
)

// Operation names used for retries.
const (
	OpEmbed = "embedding.create"
	OpQuery = "vector.query"
)

// DefaultConcurrency bounds concurrent tool calls per request.
const DefaultConcurrency = 4

// Response is the assembled search answer.
type Response struct {
	Answer        string
	Sources       []result.SearchResult
	Visualization *chart.Visualization
	EntityIntent  aggregate.EntityIntent
	Aggregated    bool
	Intents       []intent.Intent
	Executions    []execution.ToolExecution
}

// Deps are the collaborators of a Service.
type Deps struct {
	Router     Router
	Filters    FilterBuilder
	Embedder   Embedder
	Retriever  Retriever
	Visualizer Visualizer
	Summarizer Summarizer
}

// Config tunes a Service.
type Config struct {
	Concurrency int
	Retry       retry.Options
}

// Service runs searches.
type Service struct {
	deps Deps
	cfg  Config
}

// New creates a search service.
func New(deps Deps, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Service{deps: deps, cfg: cfg}
}

// Search answers req for the caller p.
//
// Tool calls run concurrently and fail independently; the request fails only when
// every call failed, with the most severe of their errors.
func (s *Service) Search(ctx context.Context, p principal.Principal, req request.Request) (Response, error) {
	log := logger.FromContext(ctx)

	plan, err := s.deps.Router.Route(ctx, req.Query())
	if err != nil {
		return Response{}, err
	}
	if plan.IsDirect() {
		return Response{Answer: plan.DirectAnswer}, nil
	}

	execs := s.execute(ctx, p, plan.Calls, req.MaxResults())

	var failed []error
	for _, e := range execs {
		if !e.OK() {
			failed = append(failed, e.Err())
			log.Warn("tool call failed",
				zap.String("call_id", e.Call().ID),
				zap.Stringer("intent", e.Call().Intent),
				zap.Error(e.Err()),
			)
		}
	}
	if len(failed) == len(execs) {
		return Response{}, MostSevere(failed)
	}

	results := Union(execs, req.MaxResults())

	ei := aggregate.DetectEntityIntent(req.Query())
	out := aggregate.Aggregate(results, ei)
	if ei != aggregate.None {
		metrics.EntityAggregationsTotal.WithLabelValues(ei.String(), fmt.Sprint(out.Aggregated)).Inc()
	}

	viz := s.deps.Visualizer.Generate(out.Results, out.Intent, req.Query(), out.Aggregated)

	answer, err := s.deps.Summarizer.Summarize(ctx, plan, execs)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Answer:        answer,
		Sources:       out.Results,
		Visualization: viz,
		EntityIntent:  out.Intent,
		Aggregated:    out.Aggregated,
		Intents:       plan.Intents(),
		Executions:    execs,
	}, nil
}

func (s *Service) execute(
	ctx context.Context, p principal.Principal, calls []intent.Call, maxResults int,
) []execution.ToolExecution {
	execs := make([]execution.ToolExecution, len(calls))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, call := range calls {
		g.Go(func() error {
			execs[i] = s.runCall(ctx, p, call, maxResults)
			return nil
		})
	}
	_ = g.Wait()

	return execs
}

func (s *Service) runCall(
	ctx context.Context, p principal.Principal, call intent.Call, maxResults int,
) execution.ToolExecution {
	start := time.Now()
	exec := s.retrieve(ctx, p, call, maxResults)

	status := "ok"
	if !exec.OK() {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(call.Intent.String(), status).Inc()
	logger.FromContext(ctx).Debug("tool call finished",
		zap.String("call_id", call.ID),
		zap.Stringer("intent", call.Intent),
		zap.String("status", status),
		zap.Int("results", len(exec.Results())),
		zap.Duration("duration", time.Since(start)),
	)
	return exec
}

func (s *Service) retrieve(
	ctx context.Context, p principal.Principal, call intent.Call, maxResults int,
) execution.ToolExecution {
	f, err := s.deps.Filters.Build(call.Intent, call.Args, p)
	if err != nil {
		return execution.Failed(call, filter.Filter{}, fmt.Errorf("build filter: %w", err))
	}

	var emb domain.EmbeddingResult
	err = retry.Do(ctx, OpEmbed, s.cfg.Retry, func(ctx context.Context) error {
		var embErr error
		emb, embErr = s.deps.Embedder.Embed(ctx, call.Args.Query)
		return embErr
	})
	if err != nil {
		return execution.Failed(call, f, fmt.Errorf("embed query: %w", err))
	}

	var hits []result.RawHit
	topK := intent.TopK(call.Intent, call.Args, maxResults)
	err = retry.Do(ctx, OpQuery, s.cfg.Retry, func(ctx context.Context) error {
		var qErr error
		hits, qErr = s.deps.Retriever.Query(ctx, emb.Embedding, f, topK)
		return qErr
	})
	if err != nil {
		return execution.Failed(call, f, fmt.Errorf("query vectors: %w", err))
	}

	return execution.Succeeded(call, f, normalize.Normalize(hits))
}

// MostSevere returns the error with the highest domain.Severity; the first wins ties.
func MostSevere(errs []error) error {
	var worst error
	for _, err := range errs {
		if worst == nil || domain.Severity(err) > domain.Severity(worst) {
			worst = err
		}
	}
	return worst
}

// Union merges the results of successful executions, keeping the highest-scored copy
// of each id, ordered by score and truncated to limit.
func Union(execs []execution.ToolExecution, limit int) []result.SearchResult {
	best := make(map[string]int)
	var out []result.SearchResult
	for _, e := range execs {
		if !e.OK() {
			continue
		}
		for _, r := range e.Results() {
			if i, ok := best[r.ID]; ok {
				if r.Score > out[i].Score {
					out[i] = r
				}
				continue
			}
			best[r.ID] = len(out)
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b result.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Interface compliance.
var _ Router = (*router.Router)(nil)
