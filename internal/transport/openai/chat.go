package openai

import (
	"context"
	"errors"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
)

// zeroTemperature is the smallest value go-openai serializes; a literal 0 is omitted
// from the request and the provider default applies instead.
const zeroTemperature = math.SmallestNonzeroFloat32

const summaryTemperature = 0.3

// ChatClient talks to an OpenAI-compatible chat completion API.
type ChatClient struct {
	client       *openai.Client
	model        string
	summaryModel string
	seed         int
	maxTokens    int
	timeout      time.Duration
	logger       *zap.Logger
}

// ChatConfig holds chat provider settings.
type ChatConfig struct {
	APIKey       string
	BaseURL      string
	Model        string // tool selection
	SummaryModel string // summarization; defaults to Model
	Seed         int
	MaxTokens    int
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewChatClient creates a chat client.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.Model
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		summaryModel: summaryModel,
		seed:         cfg.Seed,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		logger:       logger,
	}
}

// SelectTools runs a tool-calling completion at zero temperature with a fixed seed,
// so the same transcript selects the same tools.
func (c *ChatClient) SelectTools(
	ctx context.Context, messages []domain.ChatMessage, tools []intent.Tool,
) (domain.ChatCompletion, error) {
	seed := c.seed
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Tools:       toOpenAITools(tools),
		ToolChoice:  "auto",
		Temperature: zeroTemperature,
		Seed:        &seed,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.create(ctx, "tools", OpSelectTools, req)
	if err != nil {
		return domain.ChatCompletion{}, err
	}

	msg := resp.Choices[0].Message
	out := domain.ChatCompletion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "" && tc.Type != openai.ToolTypeFunction {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Complete runs a plain completion over the transcript and returns the reply text.
func (c *ChatClient) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	seed := c.seed
	req := openai.ChatCompletionRequest{
		Model:       c.summaryModel,
		Messages:    toOpenAIMessages(messages),
		Temperature: summaryTemperature,
		Seed:        &seed,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.create(ctx, "summary", OpComplete, req)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels.
func (c *ChatClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyError(OpListModels, err)
	}
	return nil
}

func (c *ChatClient) create(
	ctx context.Context, call, op string, req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())

	if err == nil && len(resp.Choices) == 0 {
		err = domain.NewUpstreamError(op, 0, domain.ErrUpstreamUnavailable, errors.New("no choices in response"))
	}
	if err != nil {
		var upErr *domain.UpstreamError
		if !errors.As(err, &upErr) {
			upErr = classifyError(op, err)
		}
		metrics.LLMRequestsTotal.WithLabelValues(call, errorClass(upErr)).Inc()
		c.logger.Warn("chat completion failed",
			zap.String("op", op),
			zap.String("model", req.Model),
			zap.Int("status", upErr.StatusCode),
			zap.String("error_class", errorClass(upErr)),
			zap.Duration("duration", time.Since(start)),
		)
		return openai.ChatCompletionResponse{}, upErr
	}

	metrics.LLMRequestsTotal.WithLabelValues(call, "success").Inc()
	return resp, nil
}

func toOpenAIMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []intent.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description,
				Parameters:  toSchema(t.Params),
			},
		})
	}
	return out
}

func toSchema(params []intent.Param) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition, len(params)),
	}
	for _, p := range params {
		def.Properties[p.Name] = jsonschema.Definition{
			Type:        schemaType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			def.Required = append(def.Required, p.Name)
		}
	}
	return def
}

func schemaType(t intent.ParamType) jsonschema.DataType {
	switch t {
	case intent.TypeNumber:
		return jsonschema.Number
	case intent.TypeInteger:
		return jsonschema.Integer
	default:
		return jsonschema.String
	}
}
