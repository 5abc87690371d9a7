package chi

import (
	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/aggregate"
	searchuc "github.com/kailas-cloud/hvacsearch/internal/usecase/search"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string `json:"query" validate:"required,max=4096"`
	MaxResults *int   `json:"max_results,omitempty"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Answer        string                 `json:"answer"`
	Sources       []result.SearchResult  `json:"sources"`
	Visualization *chart.Visualization   `json:"visualization,omitempty"`
	EntityIntent  aggregate.EntityIntent `json:"entity_intent"`
	Aggregated    bool                   `json:"aggregated"`
	Intents       []intent.Intent        `json:"intents"`
	ToolCalls     []ToolCall             `json:"tool_calls"`
}

// ToolCall summarizes one executed tool call. Error holds only the error class.
type ToolCall struct {
	ID      string        `json:"id"`
	Intent  intent.Intent `json:"intent"`
	Query   string        `json:"query"`
	Results int           `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewSearchResponse converts a pipeline response to its wire shape.
func NewSearchResponse(resp searchuc.Response) SearchResponse {
	out := SearchResponse{
		Answer:        resp.Answer,
		Sources:       resp.Sources,
		Visualization: resp.Visualization,
		EntityIntent:  resp.EntityIntent,
		Aggregated:    resp.Aggregated,
		Intents:       resp.Intents,
		ToolCalls:     make([]ToolCall, 0, len(resp.Executions)),
	}
	if out.Sources == nil {
		out.Sources = []result.SearchResult{}
	}
	if out.Intents == nil {
		out.Intents = []intent.Intent{}
	}
	for _, e := range resp.Executions {
		tc := ToolCall{
			ID:      e.Call().ID,
			Intent:  e.Call().Intent,
			Query:   e.Call().Args.Query,
			Results: len(e.Results()),
		}
		if !e.OK() {
			tc.Error = domain.ClassOf(e.Err()).Error()
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	return out
}
