package router

import (
	"context"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
)

// ChatModel selects tools for a transcript.
type ChatModel interface {
	SelectTools(ctx context.Context, messages []domain.ChatMessage, tools []intent.Tool) (domain.ChatCompletion, error)
}
