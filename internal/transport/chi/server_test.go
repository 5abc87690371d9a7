package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/execution"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/request"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
	healthuc "github.com/kailas-cloud/hvacsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/hvacsearch/internal/usecase/search"
)

const testSecret = "sk-live-0123456789abcdef"

type mockSearcher struct {
	resp   searchuc.Response
	err    error
	panics bool

	calls int
	who   principal.Principal
	req   request.Request
}

func (m *mockSearcher) Search(_ context.Context, p principal.Principal, req request.Request) (searchuc.Response, error) {
	if m.panics {
		panic("boom")
	}
	m.calls++
	m.who = p
	m.req = req
	return m.resp, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

type mockAuth struct {
	sessions map[string]principal.Principal
	err      error
}

func (m *mockAuth) Authenticate(_ context.Context, token string) (principal.Principal, error) {
	if m.err != nil {
		return principal.Principal{}, m.err
	}
	p, ok := m.sessions[token]
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w: unknown session", domain.ErrUnauthenticated)
	}
	return p, nil
}

var analyst = principal.Principal{UserID: "u-1", Role: "analyst", OpCo: "NE"}

func newTestServer(s Searcher, opts ...Option) (*Server, http.Handler) {
	auth := &mockAuth{sessions: map[string]principal.Principal{"tok": analyst}}
	health := &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
	}}
	srv := NewServer(s, health, auth, zap.NewNop(), opts...)
	return srv, srv.Routes()
}

func postSearch(h http.Handler, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok")
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestSearch_OK(t *testing.T) {
	call := intent.Call{ID: "call_1", Intent: intent.SearchInvoices, Args: intent.Args{Query: "overdue invoices"}}
	sources := []result.SearchResult{
		{ID: "inv-1", Text: "Invoice INV-1", Score: 0.9, Metadata: result.Metadata{"vendor": "Carrier"}},
	}
	ms := &mockSearcher{resp: searchuc.Response{
		Answer:  "One overdue invoice from Carrier.",
		Sources: sources,
		Visualization: &chart.Visualization{Charts: []chart.Descriptor{
			{Type: chart.Pie, Title: "Records by type", Data: []chart.Point{{Label: "invoice", Value: 1}}},
		}},
		EntityIntent: aggregate.None,
		Intents:      []intent.Intent{intent.SearchInvoices},
		Executions:   []execution.ToolExecution{execution.Succeeded(call, filter.New(), sources)},
	}}
	_, h := newTestServer(ms)

	rr := postSearch(h, `{"query":"  overdue invoices  ","max_results":500}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ms.who.UserID != "u-1" {
		t.Errorf("principal = %+v", ms.who)
	}
	if ms.req.Query() != "overdue invoices" {
		t.Errorf("query = %q", ms.req.Query())
	}
	if ms.req.MaxResults() != request.MaxResults {
		t.Errorf("max results = %d, want clamp to %d", ms.req.MaxResults(), request.MaxResults)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "One overdue invoice from Carrier." || len(resp.Sources) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Visualization == nil || len(resp.Visualization.Charts) != 1 {
		t.Errorf("visualization = %+v", resp.Visualization)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Results != 1 {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}

func TestSearch_WireFormat(t *testing.T) {
	ms := &mockSearcher{resp: searchuc.Response{Answer: "Hello!"}}
	_, h := newTestServer(ms)

	rr := postSearch(h, `{"query":"hi"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"answer", "sources", "entity_intent", "aggregated", "intents", "tool_calls"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing %q in %s", key, rr.Body.String())
		}
	}
	if _, ok := raw["visualization"]; ok {
		t.Error("visualization must be omitted when there are no charts")
	}
	if raw["entity_intent"] != "none" {
		t.Errorf("entity_intent = %v", raw["entity_intent"])
	}
	if ms.req.MaxResults() != request.DefaultMaxResults {
		t.Errorf("max results = %d", ms.req.MaxResults())
	}
}

func TestSearch_SessionCookie(t *testing.T) {
	ms := &mockSearcher{}
	_, h := newTestServer(ms, WithSessionCookie("hvac_session"))

	rr := postSearch(h, `{"query":"chillers"}`, func(r *http.Request) {
		r.Header.Del("Authorization")
		r.AddCookie(&http.Cookie{Name: "hvac_session", Value: "tok"})
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ms.who.UserID != "u-1" {
		t.Errorf("principal = %+v", ms.who)
	}
}

func TestSearch_Authentication(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*http.Request)
		wantCode string
	}{
		{"missing session", func(r *http.Request) { r.Header.Del("Authorization") }, CodeUnauthenticated},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") }, CodeUnauthenticated},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, CodeUnauthenticated},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSearcher{}
			_, h := newTestServer(ms)

			rr := postSearch(h, `{"query":"q"}`, tt.mutate)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
			if got := decodeError(t, rr); got.Code != tt.wantCode || got.Debug == nil {
				t.Errorf("error = %+v", got)
			}
			if ms.calls != 0 {
				t.Error("pipeline must not run without a session")
			}
		})
	}
}

func TestSearch_ExpiredSession(t *testing.T) {
	auth := &mockAuth{err: fmt.Errorf("%w: session for u-2 lapsed", domain.ErrSessionExpired)}
	srv := NewServer(&mockSearcher{}, &mockHealth{}, auth, zap.NewNop())

	rr := postSearch(srv.Routes(), `{"query":"q"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != CodeSessionExpired {
		t.Errorf("code = %q, want %q", got.Code, CodeSessionExpired)
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"query":`},
		{"missing query", `{}`},
		{"blank query", `{"query":"   "}`},
		{"query too long", fmt.Sprintf(`{"query":%q}`, strings.Repeat("a", request.MaxQueryLength+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSearcher{}
			_, h := newTestServer(ms)

			rr := postSearch(h, tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			got := decodeError(t, rr)
			if got.Code != CodeValidationFailed {
				t.Errorf("code = %q", got.Code)
			}
			if got.Debug == nil || got.Debug.CauseMessage == "" {
				t.Errorf("debug = %+v", got.Debug)
			}
			if ms.calls != 0 {
				t.Error("invalid requests must not reach the pipeline")
			}
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	cause := errors.New("upstream said no")
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantOp     string
	}{
		{"filter validation", fmt.Errorf("%w: $in needs values", domain.ErrFilterValidation), 400, CodeInvalidFilter, "search"},
		{"validation", domain.ErrValidation, 400, CodeValidationFailed, "search"},
		{"upstream auth", domain.NewUpstreamError("embedding.create", 401, domain.ErrUnauthenticated, cause), 401, CodeUnauthenticated, "embedding.create"},
		{"forbidden", fmt.Errorf("apply security policy: %w", domain.ErrForbidden), 403, CodeForbidden, "search"},
		{"index missing", domain.NewUpstreamError("vector.query", 0, domain.ErrNotFound, cause), 404, CodeNotFound, "vector.query"},
		{"rate limited", domain.NewUpstreamError("chat.tools", 429, domain.ErrRateLimited, cause), 429, CodeRateLimited, "chat.tools"},
		{"dimension", domain.NewUpstreamError("vector.query", 0, domain.ErrDimensionMismatch, cause), 500, CodeDimensionMismatch, "vector.query"},
		{"unexpected", errors.New("nil map"), 500, CodeInternalError, "search"},
		{"unavailable", domain.NewUpstreamError("chat.summary", 503, domain.ErrUpstreamUnavailable, cause), 503, CodeUpstreamUnavailable, "chat.summary"},
		{"network", domain.NewUpstreamError("embedding.create", 0, domain.ErrNetwork, cause), 503, CodeNetworkError, "embedding.create"},
		{"timeout", domain.NewUpstreamError("vector.query", 0, domain.ErrTimeout, context.DeadlineExceeded), 504, CodeTimeout, "vector.query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(&mockSearcher{err: tt.err})

			rr := postSearch(h, `{"query":"q"}`, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			got := decodeError(t, rr)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message == "" {
				t.Error("message must not be empty")
			}
			if got.Debug == nil {
				t.Fatal("debug object missing")
			}
			if got.Debug.Operation != tt.wantOp {
				t.Errorf("operation = %q, want %q", got.Debug.Operation, tt.wantOp)
			}
			if got.Debug.CauseClass == "" || got.Debug.CauseMessage == "" {
				t.Errorf("debug = %+v", got.Debug)
			}
		})
	}
}

func TestSearch_UpstreamCauseInDebug(t *testing.T) {
	err := domain.NewUpstreamError("embedding.create", 503, domain.ErrUpstreamUnavailable, errors.New("bad gateway from provider"))
	_, h := newTestServer(&mockSearcher{err: err})

	got := decodeError(t, postSearch(h, `{"query":"q"}`, nil))
	if got.Debug.CauseMessage != "bad gateway from provider" {
		t.Errorf("cause message = %q", got.Debug.CauseMessage)
	}
	if got.Debug.CauseClass != "*errors.errorString" {
		t.Errorf("cause class = %q", got.Debug.CauseClass)
	}
}

func TestSearch_SecretsNeverLeak(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cause := fmt.Errorf("invalid api key %s provided", testSecret)
	ms := &mockSearcher{err: domain.NewUpstreamError("chat.tools", 401, domain.ErrUnauthenticated, cause)}

	auth := &mockAuth{sessions: map[string]principal.Principal{"tok": analyst}}
	srv := NewServer(ms, &mockHealth{}, auth, zap.New(core), WithSecrets(testSecret))

	rr := postSearch(srv.Routes(), `{"query":"q"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), testSecret) {
		t.Fatalf("secret leaked in body: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "redacted") {
		t.Errorf("expected masked key hint in body: %s", rr.Body.String())
	}

	failures := logs.FilterMessage("request failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one failure log line, got %d", len(failures))
	}
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			if strings.Contains(fmt.Sprint(v), testSecret) {
				t.Errorf("secret leaked in log field %q", k)
			}
		}
	}
	fields := failures[0].ContextMap()
	if fields["op"] != "chat.tools" {
		t.Errorf("op = %v", fields["op"])
	}
	if _, ok := fields["duration"]; !ok {
		t.Error("failure log must carry duration")
	}
}

func TestSearch_UnencodableResponseIs500(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ms := &mockSearcher{resp: searchuc.Response{
		Answer: "ok",
		Sources: []result.SearchResult{
			{ID: "c-1", Metadata: result.Metadata{"contact_first_name": math.NaN()}},
		},
	}}
	auth := &mockAuth{sessions: map[string]principal.Principal{"tok": analyst}}
	srv := NewServer(ms, &mockHealth{}, auth, zap.New(core))

	rr := postSearch(srv.Routes(), `{"query":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %q", rr.Code, rr.Body.String())
	}
	if resp := decodeError(t, rr); resp.Code != CodeInternalError {
		t.Errorf("code = %q", resp.Code)
	}
	if n := logs.FilterMessage("encode search response").Len(); n != 1 {
		t.Errorf("expected one encode failure log line, got %d", n)
	}
}

func TestHealthAndMetrics_AreExempt(t *testing.T) {
	_, h := newTestServer(&mockSearcher{})

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rr.Code)
		}
	}
}

func TestHealth_Degraded(t *testing.T) {
	health := &mockHealth{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK, "chat": healthuc.CheckError},
	}}
	srv := NewServer(&mockSearcher{}, health, &mockAuth{}, zap.NewNop())

	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["chat"] != "error" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestRecoverer_ReturnsJSON(t *testing.T) {
	_, h := newTestServer(&mockSearcher{panics: true})

	rr := postSearch(h, `{"query":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != CodeInternalError {
		t.Errorf("code = %q", got.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	_, h := newTestServer(&mockSearcher{})

	rr := postSearch(h, `{"query":"q"}`, func(r *http.Request) { r.Header.Set("X-Request-Id", "req-42") })
	if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestUnknownRoute_JSON404(t *testing.T) {
	_, h := newTestServer(&mockSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != CodeNotFound {
		t.Errorf("code = %q", got.Code)
	}
}

func TestSearch_GetNotAllowed(t *testing.T) {
	_, h := newTestServer(&mockSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/search", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSearch_DefaultMaxResultsOption(t *testing.T) {
	ms := &mockSearcher{}
	_, h := newTestServer(ms, WithDefaultMaxResults(40))

	if rr := postSearch(h, `{"query":"q"}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ms.req.MaxResults() != 40 {
		t.Errorf("max results = %d, want 40", ms.req.MaxResults())
	}

	if rr := postSearch(h, `{"query":"q","max_results":0}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ms.req.MaxResults() != request.MinResults {
		t.Errorf("explicit max_results must win, got %d", ms.req.MaxResults())
	}
}
