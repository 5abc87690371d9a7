// Package execution holds the outcome of running one routed tool call.
package execution

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// MaxPayloadResults bounds the results replayed to the summarizer per call.
const MaxPayloadResults = 15

// ToolExecution is the immutable outcome of one tool call. Exactly one of
// results or err is meaningful.
type ToolExecution struct {
	call    intent.Call
	filter  filter.Filter
	results []result.SearchResult
	err     error
}

// Succeeded records a successful call.
func Succeeded(call intent.Call, f filter.Filter, results []result.SearchResult) ToolExecution {
	return ToolExecution{call: call, filter: f, results: slices.Clone(results)}
}

// Failed records a failed call. f may be empty when filter building failed.
func Failed(call intent.Call, f filter.Filter, err error) ToolExecution {
	return ToolExecution{call: call, filter: f, err: err}
}

// Call returns the routed call.
func (e ToolExecution) Call() intent.Call { return e.call }

// Filter returns the filter sent to the vector store.
func (e ToolExecution) Filter() filter.Filter { return e.filter }

// Results returns a copy of the normalized results.
func (e ToolExecution) Results() []result.SearchResult { return slices.Clone(e.results) }

// Err returns the failure, if any.
func (e ToolExecution) Err() error { return e.err }

// OK reports whether the call succeeded.
func (e ToolExecution) OK() bool { return e.err == nil }

type payloadResult struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Score    float64         `json:"score"`
	Metadata result.Metadata `json:"metadata"`
}

type payload struct {
	Tool    string          `json:"tool"`
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []payloadResult `json:"results"`
}

type errorPayload struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// Payload renders the execution as tool-message content for the summarizer.
// Failures carry only the error class and operation.
func (e ToolExecution) Payload() string {
	var v any
	if e.err != nil {
		msg := domain.ClassOf(e.err).Error()
		var up *domain.UpstreamError
		if errors.As(e.err, &up) {
			msg = up.Op + ": " + msg
		}
		v = errorPayload{Tool: e.call.Intent.String(), Error: msg}
	} else {
		p := payload{
			Tool:    e.call.Intent.String(),
			Query:   e.call.Args.Query,
			Count:   len(e.results),
			Results: make([]payloadResult, 0, min(len(e.results), MaxPayloadResults)),
		}
		for _, r := range e.results[:min(len(e.results), MaxPayloadResults)] {
			p.Results = append(p.Results, payloadResult(r))
		}
		v = p
	}

	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unrenderable tool output"}`
	}
	return string(data)
}
