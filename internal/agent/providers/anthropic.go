package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/reun10n/kuro/internal/agent"
	"github.com/reun10n/kuro/pkg/models"
)

// AnthropicProvider implements agent.LLMProvider for Anthropic's Messages
// API. Safe for concurrent use; each Complete call owns its stream and
// goroutine.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	base         BaseProvider
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL overrides the API endpoint. Tests point this at a local
	// server.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// MaxRetries is the maximum attempts for creating the stream (default 3).
	MaxRetries int

	// RetryDelay is the base delay between retries (default 1s).
	RetryDelay time.Duration
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	// The SDK retries internally by default; disabled so the retry policy
	// here is the only one in play.
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		defaultModel: cfg.DefaultModel,
		base:         NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// SupportsTools reports tool-calling support.
func (p *AnthropicProvider) SupportsTools() bool {
	return true
}

// Complete sends a completion request and streams the response.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)
		// Retry covers stream creation and failures before the first
		// chunk reaches the consumer. Once anything has been delivered a
		// retry would replay partial output, so the stream fails instead.
		var delivered bool
		err := p.base.Retry(ctx, func(err error) bool {
			return !delivered && isRetryableProviderError(err)
		}, func() error {
			stream := p.client.Messages.NewStreaming(ctx, params)
			return p.processStream(stream, chunks, model, &delivered)
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: err}
		}
	}()
	return chunks, nil
}

// isRetryableProviderError reports whether a fresh stream attempt could
// plausibly succeed.
func isRetryableProviderError(err error) bool {
	var pe *agent.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Reason {
	case agent.FailRateLimit, agent.FailTimeout, agent.FailServerError:
		return true
	}
	return false
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest, model string) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// processStream converts Anthropic SSE events into completion chunks. Text
// deltas are forwarded as they arrive; tool input JSON accumulates across
// delta events and is emitted as a whole call at content_block_stop.
// Failures are returned rather than emitted so the caller decides whether
// to retry; delivered is set once any chunk has gone out.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string, delivered *bool) error {
	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder

	send := func(chunk *agent.CompletionChunk) {
		*delivered = true
		chunks <- chunk
	}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentToolCall = &models.ToolCall{
					ID:   toolUse.ID,
					Name: toolUse.Name,
				}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					send(&agent.CompletionChunk{Text: delta.Text})
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(currentToolInput.String())
				send(&agent.CompletionChunk{ToolCall: currentToolCall})
				currentToolCall = nil
			}

		case "message_stop":
			send(&agent.CompletionChunk{Done: true})
			return nil

		case "error":
			return p.wrapError(errors.New("anthropic stream error"), model)
		}
	}

	return p.wrapError(stream.Err(), model)
}

// convertMessages converts internal messages into Anthropic content blocks.
// Tool results ride in user messages, tool calls in assistant messages.
func (p *AnthropicProvider) convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Content,
				toolResult.IsError,
			))
		}

		for _, toolCall := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(
				toolCall.ID,
				input,
				toolCall.Name,
			))
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())

		result = append(result, toolParam)
	}

	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var pe *agent.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped := agent.NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					wrapped.Message = payload.Error.Message
				}
				if payload.Error.Type != "" {
					wrapped = wrapped.WithCode(payload.Error.Type)
				}
			}
		}
		return wrapped
	}

	return agent.NewProviderError("anthropic", model, err)
}
