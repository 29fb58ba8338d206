package llm

import (
	"encoding/json"
	"fmt"
)

// ToolDef defines a tool that the model can invoke.
type ToolDef struct {
	// Name is the unique identifier for this tool.
	Name string

	// Description explains what the tool does and when to use it. This is
	// what the model reads when deciding whether to invoke the tool.
	Description string

	// Parameters is a JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// Validate checks if the tool definition is valid.
func (t *ToolDef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if t.Parameters == nil {
		return fmt.Errorf("tool parameters cannot be nil")
	}
	return nil
}

// ToolCall represents the model's request to invoke a tool.
type ToolCall struct {
	// ID is a unique identifier for this tool call, used to match tool
	// results back to the original call.
	ID string

	// Name is the name of the tool to invoke.
	Name string

	// Arguments contains the tool parameters as a JSON string.
	Arguments string
}

// ParseArguments parses the tool call arguments into the provided value.
func (c *ToolCall) ParseArguments(v any) error {
	if c.Arguments == "" {
		return fmt.Errorf("no arguments to parse")
	}
	return json.Unmarshal([]byte(c.Arguments), v)
}

// Validate checks if the tool call is well formed, including that its
// arguments are valid JSON.
func (c *ToolCall) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("tool call ID cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("tool call name cannot be empty")
	}
	var temp any
	if err := json.Unmarshal([]byte(c.Arguments), &temp); err != nil {
		return fmt.Errorf("invalid JSON in arguments: %w", err)
	}
	return nil
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	// ToolCallID matches the ID from the corresponding ToolCall.
	ToolCallID string

	// Content contains the result data as a string. For structured data,
	// this is JSON-encoded.
	Content string

	// IsError indicates whether the tool execution failed. If true, Content
	// contains an error message. Memory writes that fail must be reported
	// back to the model this way, never as success.
	IsError bool
}

// NewToolResult creates a successful tool result.
func NewToolResult(toolCallID, content string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: content}
}

// NewToolError creates an error tool result.
func NewToolError(toolCallID, errorMsg string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: errorMsg, IsError: true}
}

// SetJSONContent sets the result content from a JSON-encodable value.
func (r *ToolResult) SetJSONContent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	r.Content = string(data)
	return nil
}
