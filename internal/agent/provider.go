// Package agent implements the conversation core: the LLM provider
// abstraction, the tool registry, the turn runner, and the streaming
// orchestrator that multiplexes model output, tool status, and heartbeats
// into a single ordered event stream.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/reun10n/kuro/pkg/models"
)

// LLMProvider is the interface implemented by model backends.
//
// Complete returns a channel of streaming chunks. The channel is closed when
// the response finishes or fails; a failed response carries the error in the
// final chunk rather than returning it from Complete.
type LLMProvider interface {
	// Complete sends a completion request and streams the response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns a stable lowercase provider identifier.
	Name() string

	// SupportsTools reports whether the provider accepts tool definitions.
	SupportsTools() bool
}

// CompletionRequest is a provider-agnostic completion request.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []Tool
	MaxTokens int
}

// CompletionMessage is one message in a completion request.
// Role is one of "user", "assistant", "tool".
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionChunk is one streamed fragment of a model response.
// Exactly one of Text, ToolCall, Done, or Error is meaningful per chunk.
type CompletionChunk struct {
	// Text is an incremental text delta.
	Text string

	// ToolCall is a complete tool invocation request. Providers accumulate
	// partial tool-call fragments internally and emit only whole calls.
	ToolCall *models.ToolCall

	// Done marks the end of a successful response.
	Done bool

	// Error terminates the stream with a failure.
	Error error
}

// Tool is a capability the model can invoke during a turn.
//
// Execute never returns an error for tool-level failures: those are reported
// as a ToolResult with IsError set and a descriptive message in Content, so
// the model can see what went wrong and adjust. A non-nil error from Execute
// means the tool machinery itself is broken.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// CollectText drains a completion stream and returns the concatenated text.
// Used for one-shot internal calls (summarization) where streaming deltas
// are not needed. Tool calls in the stream are ignored.
func CollectText(chunks <-chan *CompletionChunk) (string, error) {
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), nil
}

// TurnsToMessages converts stored history turns into completion messages.
func TurnsToMessages(turns []models.Turn) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, CompletionMessage{
			Role:        string(t.Role),
			Content:     t.Content,
			ToolCalls:   t.ToolCalls,
			ToolResults: t.ToolResults,
		})
	}
	return out
}
