package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/reun10n/kuro/pkg/models"
)

// ToolRegistry holds the tools available to the model. Safe for concurrent
// use; registration normally happens once at startup.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	if tool.Name() == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns registered tool names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns all registered tools for inclusion in a completion request.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *ToolRegistry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool. Unknown tools and tool-level failures come
// back as error results, never as Go errors: the model sees the message and
// can recover, and one bad call never aborts the turn.
func (r *ToolRegistry) Execute(ctx context.Context, call models.ToolCall) *models.ToolResult {
	tool, ok := r.Get(call.Name)
	if !ok {
		return &models.ToolResult{
			ToolCallID: call.ID,
			Content:    "tool not found: " + call.Name,
			IsError:    true,
		}
	}

	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("%s failed: %v", call.Name, err),
			IsError:    true,
		}
	}
	if result == nil {
		result = &models.ToolResult{Content: "(no output)"}
	}
	result.ToolCallID = call.ID
	return result
}
