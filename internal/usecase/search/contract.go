package search

import (
	"context"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/execution"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/router"
)

// Router turns a question into tool calls.
type Router interface {
	Route(ctx context.Context, query string) (router.Plan, error)
}

// FilterBuilder builds the scoped metadata filter for one call.
type FilterBuilder interface {
	Build(i intent.Intent, args intent.Args, p principal.Principal) (filter.Filter, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever runs filtered similarity queries.
type Retriever interface {
	Query(ctx context.Context, vector []float32, f filter.Filter, topK int) ([]result.RawHit, error)
}

// Visualizer derives charts from the final result set.
type Visualizer interface {
	Generate(results []result.SearchResult, ei aggregate.EntityIntent, query string, aggregated bool) *chart.Visualization
}

// Summarizer drafts the answer from the executed calls.
type Summarizer interface {
	Summarize(ctx context.Context, plan router.Plan, execs []execution.ToolExecution) (string, error)
}
