// Package router maps a free-text question to search tool calls using a
// tool-calling chat model.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/retry"
)

// OpRoute names the tool-selection call in retries and logs.
const OpRoute = "chat.tools"

// Plan is the router's decision for one question.
type Plan struct {
	Query string
	// DirectAnswer is set when the model answered without tools; Calls is then empty.
	DirectAnswer string
	// Assistant is the model turn that requested Calls, replayed to the summarizer.
	Assistant domain.ChatMessage
	Calls     []intent.Call
}

// IsDirect reports whether the plan skips retrieval.
func (p Plan) IsDirect() bool { return len(p.Calls) == 0 }

// Intents lists the distinct intents of the plan in call order.
func (p Plan) Intents() []intent.Intent {
	var out []intent.Intent
	seen := make(map[intent.Intent]bool, len(p.Calls))
	for _, c := range p.Calls {
		if !seen[c.Intent] {
			seen[c.Intent] = true
			out = append(out, c.Intent)
		}
	}
	return out
}

// Option configures a Router.
type Option func(*Router)

// WithRetry sets the retry policy for the tool-selection call.
func WithRetry(opts retry.Options) Option {
	return func(r *Router) { r.retry = opts }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithIDGenerator replaces the generator used for tool calls that arrive without an id.
func WithIDGenerator(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

// Router routes questions to search intents.
type Router struct {
	model  ChatModel
	tools  []intent.Tool
	prompt string
	retry  retry.Options
	logger *zap.Logger
	newID  func() string
}

// New creates a Router over the full intent catalog.
func New(model ChatModel, opts ...Option) *Router {
	tools := intent.Catalog()
	r := &Router{
		model:  model,
		tools:  tools,
		prompt: SystemPrompt(tools),
		logger: zap.NewNop(),
		newID:  func() string { return "call_" + uuid.NewString() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route makes one tool-selection call for query and returns the resulting plan.
//
// Unknown tool names are dropped. When nothing usable remains, or the model replies
// with neither tools nor text, the plan falls back to a single search_all call
// over the original query.
func (r *Router) Route(ctx context.Context, query string) (Plan, error) {
	query = strings.TrimSpace(query)
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: r.prompt},
		{Role: domain.RoleUser, Content: query},
	}

	var completion domain.ChatCompletion
	err := retry.Do(ctx, OpRoute, r.retry, func(ctx context.Context) error {
		var callErr error
		completion, callErr = r.model.SelectTools(ctx, messages, r.tools)
		return callErr
	})
	if err != nil {
		return Plan{}, fmt.Errorf("route query: %w", err)
	}

	plan := Plan{Query: query}

	if len(completion.ToolCalls) == 0 {
		if answer := strings.TrimSpace(completion.Content); answer != "" {
			plan.DirectAnswer = answer
			plan.Assistant = completion.Message()
			return plan, nil
		}
		r.logger.Warn("router returned neither tools nor text, falling back to search_all")
		return r.fallback(plan), nil
	}

	kept := make([]domain.ToolCall, 0, len(completion.ToolCalls))
	for _, tc := range completion.ToolCalls {
		i, err := intent.Parse(tc.Name)
		if err != nil {
			r.logger.Warn("skipping unknown tool call", zap.String("tool", tc.Name))
			continue
		}

		args, err := intent.ParseArgs(tc.Arguments, query)
		if err != nil {
			r.logger.Warn("malformed tool arguments, using the original query",
				zap.String("tool", tc.Name), zap.Error(err))
		}

		if strings.TrimSpace(tc.ID) == "" {
			tc.ID = r.newID()
		}
		kept = append(kept, tc)
		plan.Calls = append(plan.Calls, intent.Call{ID: tc.ID, Intent: i, Args: args})
	}

	if len(plan.Calls) == 0 {
		return r.fallback(plan), nil
	}

	plan.Assistant = domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   completion.Content,
		ToolCalls: kept,
	}
	return plan, nil
}

func (r *Router) fallback(plan Plan) Plan {
	args := intent.Args{Query: plan.Query}
	raw, _ := json.Marshal(map[string]string{"query": plan.Query})

	call := intent.Call{ID: r.newID(), Intent: intent.SearchAll, Args: args}
	plan.Calls = []intent.Call{call}
	plan.Assistant = domain.ChatMessage{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{ID: call.ID, Name: call.Intent.String(), Arguments: string(raw)},
		},
	}
	return plan
}
