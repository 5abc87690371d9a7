// Package synthesize drafts the prose answer from tool outputs.
package synthesize

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/execution"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
	"github.com/kailas-cloud/hvacsearch/internal/logger"
	"github.com/kailas-cloud/hvacsearch/internal/retry"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/router"
)

// OpSummarize names the summarization call in retries and logs.
const OpSummarize = "chat.summary"

const systemPrompt = "You summarize search results over an HVAC company's business records " +
	"(invoices, customers, equipment, inventory, marketing, sales). " +
	"Answer the user's question in at most five sentences using only the tool outputs. " +
	"Do not invent facts, names, or numbers. If the outputs are empty or failed, say so plainly."

const topVendors = 3

// Completer produces prose from a transcript.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Synthesizer runs the second chat call of a search.
type Synthesizer struct {
	llm     Completer
	retry   retry.Options
	secrets []string
}

// New creates a Synthesizer. secrets are masked in logged causes.
func New(llm Completer, opts retry.Options, secrets ...string) *Synthesizer {
	return &Synthesizer{llm: llm, retry: opts, secrets: secrets}
}

// Transcript builds the summarization messages: instructions, the question, the
// router's tool-call turn and one tool message per execution.
func Transcript(plan router.Plan, execs []execution.ToolExecution) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(execs)+3)
	msgs = append(msgs,
		domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt},
		domain.ChatMessage{Role: domain.RoleUser, Content: plan.Query},
		plan.Assistant,
	)
	for _, e := range execs {
		msgs = append(msgs, domain.ChatMessage{
			Role:       domain.RoleTool,
			ToolCallID: e.Call().ID,
			Content:    e.Payload(),
		})
	}
	return msgs
}

// Summarize returns the answer for plan. When the model call fails and at least one
// execution returned results, a deterministic fallback is returned and the failure
// is only logged.
func (s *Synthesizer) Summarize(
	ctx context.Context, plan router.Plan, execs []execution.ToolExecution,
) (string, error) {
	msgs := Transcript(plan, execs)

	var answer string
	err := retry.Do(ctx, OpSummarize, s.retry, func(ctx context.Context) error {
		var callErr error
		answer, callErr = s.llm.Complete(ctx, msgs)
		return callErr
	})
	if err == nil && strings.TrimSpace(answer) != "" {
		return strings.TrimSpace(answer), nil
	}

	if !anyResults(execs) {
		if err == nil {
			return Fallback(nil), nil
		}
		return "", fmt.Errorf("summarize results: %w", err)
	}

	if err != nil {
		logger.FromContext(ctx).Warn("summary failed, using fallback",
			zap.String("op", OpSummarize),
			zap.Strings("cause_chain", logger.CauseChain(err, 3, s.secrets...)),
		)
	}
	var all []result.SearchResult
	for _, e := range execs {
		all = append(all, e.Results()...)
	}
	return Fallback(all), nil
}

func anyResults(execs []execution.ToolExecution) bool {
	return slices.ContainsFunc(execs, func(e execution.ToolExecution) bool {
		return e.OK() && len(e.Results()) > 0
	})
}

// Fallback renders a summary from counts alone.
func Fallback(results []result.SearchResult) string {
	if len(results) == 0 {
		return "No matching records were found."
	}

	counts := make(map[string]int)
	for _, r := range results {
		if v := r.Metadata.String(result.FieldVendor); v != "" {
			counts[v]++
		}
	}
	vendors := make([]string, 0, len(counts))
	for v := range counts {
		vendors = append(vendors, v)
	}
	slices.SortFunc(vendors, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	noun := "records"
	if len(results) == 1 {
		noun = "record"
	}
	s := fmt.Sprintf("Found %d matching %s.", len(results), noun)
	if len(vendors) > 0 {
		top := make([]string, 0, topVendors)
		for _, v := range vendors[:min(len(vendors), topVendors)] {
			top = append(top, fmt.Sprintf("%s (%d)", v, counts[v]))
		}
		s += " Top vendors: " + strings.Join(top, ", ") + "."
	}
	return s
}
