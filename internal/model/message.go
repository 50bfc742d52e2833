// SPDX-License-Identifier: AGPL-3.0-only
package model

// Message roles. RoleSystem and the first RoleUser message are created once
// when a run is seeded; everything after is append-only.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a single tool invocation requested by the model, recovered from
// the in-band call block of an assistant reply. IDs are unique within a run.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of exactly one ToolCall. Content holds either the
// handler's output or a formatted error string.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// Message is one entry of a run's transcript.
// ToolCalls is only ever set on assistant messages; ToolCallID and ToolName
// only on tool messages.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"name,omitempty"`
}
