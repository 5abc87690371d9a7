package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/execution"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/request"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/retry"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/filterbuild"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/router"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/synthesize"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/visualize"
)

// --- Mocks ---

type mockChat struct {
	reply   domain.ChatCompletion
	summary string
	sumErr  error
}

func (m *mockChat) SelectTools(
	_ context.Context, _ []domain.ChatMessage, _ []intent.Tool,
) (domain.ChatCompletion, error) {
	return m.reply, nil
}

func (m *mockChat) Complete(_ context.Context, _ []domain.ChatMessage) (string, error) {
	return m.summary, m.sumErr
}

type mockEmbedder struct {
	mu    sync.Mutex
	texts []string
	errs  map[string]error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if err := m.errs[text]; err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type query struct {
	filter filter.Filter
	topK   int
}

type mockRetriever struct {
	mu      sync.Mutex
	queries []query
	hits    func(f filter.Filter) []result.RawHit
	err     error
}

func (m *mockRetriever) Query(_ context.Context, _ []float32, f filter.Filter, topK int) ([]result.RawHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query{filter: f, topK: topK})
	if m.err != nil {
		return nil, m.err
	}
	if m.hits == nil {
		return nil, nil
	}
	return m.hits(f), nil
}

var noSleep = retry.Options{MaxRetries: 2, Sleep: func(context.Context, time.Duration) error { return nil }}

func newService(chat *mockChat, emb *mockEmbedder, ret *mockRetriever, policy filterbuild.SecurityPolicy) *Service {
	return New(Deps{
		Router:     router.New(chat, router.WithRetry(noSleep)),
		Filters:    filterbuild.New(policy),
		Embedder:   emb,
		Retriever:  ret,
		Visualizer: visualize.New(0),
		Summarizer: synthesize.New(chat, noSleep),
	}, Config{Retry: noSleep})
}

func mustRequest(t *testing.T, q string, maxResults *int) request.Request {
	t.Helper()
	req, err := request.New(q, maxResults)
	require.NoError(t, err)
	return req
}

func toolReply(calls ...domain.ToolCall) domain.ChatCompletion {
	return domain.ChatCompletion{ToolCalls: calls}
}

func eq(f filter.Filter, key string) any {
	c, ok := f.Condition(key)
	if !ok {
		return nil
	}
	v, _ := c.EqValue()
	return v
}

// --- Tests ---

func TestSearch_OverdueInvoicesFromCarrier(t *testing.T) {
	chat := &mockChat{
		reply: toolReply(domain.ToolCall{
			ID:        "call_1",
			Name:      "search_invoices",
			Arguments: `{"query":"overdue invoices from Carrier","payment_status":"overdue","vendor":"Carrier"}`,
		}),
		summary: "Carrier has 3 overdue invoices.",
	}
	ret := &mockRetriever{hits: func(f filter.Filter) []result.RawHit {
		var hits []result.RawHit
		for i := range 3 {
			hits = append(hits, result.RawHit{
				ID:    fmt.Sprintf("inv-%d", i),
				Score: 0.9 - float64(i)/10,
				Metadata: map[string]any{
					"domain": "financial", "record_type": "invoice",
					"vendor": eq(f, "vendor"), "payment_status": eq(f, "payment_status"),
					"amount": 1000.0,
				},
			})
		}
		return hits
	}}
	svc := newService(chat, &mockEmbedder{}, ret, nil)

	resp, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "overdue invoices from Carrier", nil))
	require.NoError(t, err)

	require.Len(t, ret.queries, 1)
	f := ret.queries[0].filter
	assert.Equal(t, "financial", eq(f, "domain"))
	assert.Equal(t, "invoice", eq(f, "record_type"))
	assert.Equal(t, "overdue", eq(f, "payment_status"))
	assert.Equal(t, "Carrier", eq(f, "vendor"))
	assert.Equal(t, 10, ret.queries[0].topK)

	require.Len(t, resp.Sources, 3)
	for _, s := range resp.Sources {
		assert.Equal(t, "overdue", s.Metadata["payment_status"])
	}
	assert.Equal(t, "Carrier has 3 overdue invoices.", resp.Answer)
	assert.Equal(t, []intent.Intent{intent.SearchInvoices}, resp.Intents)
	assert.False(t, resp.Aggregated)
}

func TestSearch_EmptyToolQueryEmbedsUserQuery(t *testing.T) {
	chat := &mockChat{
		reply:   toolReply(domain.ToolCall{ID: "c", Name: "search_all", Arguments: `{"query":""}`}),
		summary: "ok",
	}
	emb := &mockEmbedder{}
	svc := newService(chat, emb, &mockRetriever{}, nil)

	_, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "Carrier", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Carrier"}, emb.texts)
}

func TestSearch_ShowMeVendorsAggregates(t *testing.T) {
	vendors := []string{"Carrier", "Trane", "Lennox", "Daikin"}
	chat := &mockChat{
		reply:   toolReply(domain.ToolCall{ID: "c", Name: "search_invoices", Arguments: `{"query":"vendors","top_k":20}`}),
		summary: "Four vendors.",
	}
	ret := &mockRetriever{hits: func(filter.Filter) []result.RawHit {
		var hits []result.RawHit
		for i := range 20 {
			hits = append(hits, result.RawHit{
				ID:    fmt.Sprintf("inv-%d", i),
				Score: 0.5,
				Metadata: map[string]any{
					"domain": "financial", "vendor": vendors[i%len(vendors)], "amount": 10.0,
					"payment_status": []string{"paid", "pending"}[i%2],
				},
			})
		}
		return hits
	}}
	svc := newService(chat, &mockEmbedder{}, ret, nil)

	resp, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "show me vendors", nil))
	require.NoError(t, err)
	assert.True(t, resp.Aggregated)
	assert.Equal(t, aggregate.Vendor, resp.EntityIntent)
	require.Len(t, resp.Sources, 4)
	require.NotNil(t, resp.Visualization)
}

func TestSearch_DirectAnswerSkipsRetrieval(t *testing.T) {
	chat := &mockChat{reply: domain.ChatCompletion{Content: "Hi! Ask me about invoices."}}
	emb := &mockEmbedder{}
	ret := &mockRetriever{}
	svc := newService(chat, emb, ret, nil)

	resp, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "hello", nil))
	require.NoError(t, err)
	assert.Equal(t, "Hi! Ask me about invoices.", resp.Answer)
	assert.Empty(t, emb.texts)
	assert.Empty(t, ret.queries)
	assert.Nil(t, resp.Visualization)
}

func TestSearch_PartialFailureKeepsSiblings(t *testing.T) {
	chat := &mockChat{
		reply: toolReply(
			domain.ToolCall{ID: "a", Name: "search_invoices", Arguments: `{"query":"bad"}`},
			domain.ToolCall{ID: "b", Name: "search_customers", Arguments: `{"query":"good"}`},
		),
		summary: "partial",
	}
	emb := &mockEmbedder{errs: map[string]error{
		"bad": domain.NewUpstreamError(OpEmbed, 401, domain.ErrUnauthenticated, errors.New("bad key")),
	}}
	ret := &mockRetriever{hits: func(filter.Filter) []result.RawHit {
		return []result.RawHit{{ID: "cust-1", Score: 0.8, Metadata: map[string]any{"domain": "crm"}}}
	}}
	svc := newService(chat, emb, ret, nil)

	resp, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "invoices and customers", nil))
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "cust-1", resp.Sources[0].ID)
	require.Len(t, resp.Executions, 2)
	assert.False(t, resp.Executions[0].OK())
	assert.True(t, resp.Executions[1].OK())
}

func TestSearch_AllCallsFailReturnsMostSevere(t *testing.T) {
	chat := &mockChat{reply: toolReply(
		domain.ToolCall{ID: "a", Name: "search_invoices", Arguments: `{"query":"x"}`},
		domain.ToolCall{ID: "b", Name: "search_customers", Arguments: `{"query":"y"}`},
	)}
	emb := &mockEmbedder{errs: map[string]error{
		"x": domain.NewUpstreamError(OpEmbed, 429, domain.ErrRateLimited, errors.New("slow down")),
		"y": domain.NewUpstreamError(OpEmbed, 0, domain.ErrDimensionMismatch, errors.New("got 3")),
	}}
	svc := newService(chat, emb, &mockRetriever{}, nil)

	_, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "q", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSearch_RetriesTransientRetrieval(t *testing.T) {
	chat := &mockChat{
		reply:   toolReply(domain.ToolCall{ID: "a", Name: "search_all", Arguments: `{"query":"x"}`}),
		summary: "ok",
	}
	ret := &mockRetriever{err: domain.NewUpstreamError(OpQuery, 0, domain.ErrNetwork, errors.New("connection reset"))}
	svc := newService(chat, &mockEmbedder{}, ret, nil)

	_, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "q", nil))
	require.ErrorIs(t, err, domain.ErrNetwork)
	assert.Len(t, ret.queries, noSleep.MaxRetries+1)
}

func TestSearch_TenantPolicyScopesEveryCall(t *testing.T) {
	chat := &mockChat{
		reply: toolReply(
			domain.ToolCall{ID: "a", Name: "search_invoices", Arguments: `{"query":"x"}`},
			domain.ToolCall{ID: "b", Name: "search_equipment", Arguments: `{"query":"y"}`},
		),
		summary: "ok",
	}
	ret := &mockRetriever{}
	policy := filterbuild.NewTenantScopedPolicy(map[string][]string{"analyst": {"analyst", "viewer"}})
	svc := newService(chat, &mockEmbedder{}, ret, policy)

	who := principal.Principal{UserID: "u", Role: "analyst", OpCo: "NE"}
	_, err := svc.Search(context.Background(), who, mustRequest(t, "q", nil))
	require.NoError(t, err)
	require.Len(t, ret.queries, 2)
	for _, q := range ret.queries {
		require.Len(t, q.filter.AndClauses(), 2)
		assert.Equal(t, "NE", eq(q.filter.AndClauses()[1], "opco_id"))
	}

	_, err = svc.Search(context.Background(), principal.Principal{UserID: "u", Role: "analyst"}, mustRequest(t, "q", nil))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSearch_ClampsToMaxResults(t *testing.T) {
	chat := &mockChat{
		reply: toolReply(
			domain.ToolCall{ID: "a", Name: "search_all", Arguments: `{"query":"x","top_k":500}`},
			domain.ToolCall{ID: "b", Name: "search_invoices", Arguments: `{"query":"y"}`},
		),
		summary: "ok",
	}
	n := 0
	var mu sync.Mutex
	ret := &mockRetriever{hits: func(filter.Filter) []result.RawHit {
		mu.Lock()
		defer mu.Unlock()
		var hits []result.RawHit
		for range 10 {
			n++
			hits = append(hits, result.RawHit{ID: fmt.Sprint(n), Score: float64(n) / 100})
		}
		return hits
	}}
	svc := newService(chat, &mockEmbedder{}, ret, nil)

	limit := 7
	resp, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "q", &limit))
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 7)
	for _, q := range ret.queries {
		assert.LessOrEqual(t, q.topK, 7)
		assert.GreaterOrEqual(t, q.topK, 1)
	}
}

func TestSearch_RouterFailure(t *testing.T) {
	rt := routerFunc(func(context.Context, string) (router.Plan, error) {
		return router.Plan{}, domain.NewUpstreamError(router.OpRoute, 0, domain.ErrTimeout, context.DeadlineExceeded)
	})
	svc := New(Deps{Router: rt}, Config{})
	_, err := svc.Search(context.Background(), principal.Principal{}, mustRequest(t, "q", nil))
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

type routerFunc func(ctx context.Context, q string) (router.Plan, error)

func (f routerFunc) Route(ctx context.Context, q string) (router.Plan, error) { return f(ctx, q) }

func TestUnion(t *testing.T) {
	call := intent.Call{ID: "c", Intent: intent.SearchAll}
	execs := []execution.ToolExecution{
		execution.Succeeded(call, filter.New(), []result.SearchResult{{ID: "a", Score: 0.4}, {ID: "b", Score: 0.9}}),
		execution.Failed(call, filter.New(), errors.New("boom")),
		execution.Succeeded(call, filter.New(), []result.SearchResult{{ID: "a", Score: 0.95, Text: "better"}, {ID: "c", Score: 0.1}}),
	}
	got := Union(execs, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "better", got[0].Text)
	assert.Equal(t, "b", got[1].ID)
}

func TestMostSevere(t *testing.T) {
	rate := domain.NewUpstreamError(OpEmbed, 429, domain.ErrRateLimited, nil)
	down := domain.NewUpstreamError(OpQuery, 503, domain.ErrUpstreamUnavailable, nil)
	auth := fmt.Errorf("embed: %w", domain.NewUpstreamError(OpEmbed, 401, domain.ErrUnauthenticated, nil))

	assert.Equal(t, down, MostSevere([]error{rate, down}))
	assert.Equal(t, auth, MostSevere([]error{rate, auth, down}))
	assert.Nil(t, MostSevere(nil))
}
