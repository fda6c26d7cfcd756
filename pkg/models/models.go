// Package models defines the conversation records shared across the agent
// core, the history store, and the chat front-end.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to execute a registered tool.
type ToolCall struct {
	// ID is the provider-assigned call identifier, used to pair results.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the raw JSON arguments as produced by the model.
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the outcome of executing a single tool call.
//
// Tools report failures as results, not errors: a failed execution sets
// IsError and puts a descriptive message in Content so the model can react.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`

	// Data carries a binary payload (for example a fetched image) that is
	// surfaced to the chat layer directly and never sent back to the model.
	Data     []byte `json:"-"`
	Filename string `json:"filename,omitempty"`
}

// Turn is one entry in a conversation history. A turn carries either plain
// content, a set of tool calls (assistant), or a set of tool results (tool).
type Turn struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// Clone returns a deep copy of the turn. Histories hand out copies so
// callers can never mutate stored state through a returned slice.
func (t Turn) Clone() Turn {
	out := t
	if len(t.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Input != nil {
				out.ToolCalls[i].Input = append(json.RawMessage(nil), tc.Input...)
			}
		}
	}
	if len(t.ToolResults) > 0 {
		out.ToolResults = make([]ToolResult, len(t.ToolResults))
		for i, tr := range t.ToolResults {
			out.ToolResults[i] = tr
			if tr.Data != nil {
				out.ToolResults[i].Data = append([]byte(nil), tr.Data...)
			}
		}
	}
	return out
}

// CloneTurns deep-copies a slice of turns.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
