package llm

import "context"

// Client is the chat-completion capability. Implementations send the
// conversation to a model, let it invoke zero or more of the provided
// tools, and return final text and/or pending tool calls.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest represents a request for a model completion.
type CompletionRequest struct {
	// Messages contains the conversation history.
	Messages []Message

	// System is an optional system prompt applied to the whole request.
	System string

	// Temperature controls randomness in the output (0.0 to 2.0).
	Temperature *float64

	// MaxTokens limits the maximum number of tokens to generate.
	MaxTokens *int

	// Tools contains tool definitions available for the model to use.
	Tools []ToolDef
}

// CompletionResponse represents a response from a model completion.
type CompletionResponse struct {
	// Content is the generated text content.
	Content string

	// ToolCalls contains tool invocations requested by the model. The
	// caller executes them and continues the conversation with the results.
	ToolCalls []ToolCall

	// FinishReason indicates why generation stopped.
	// Common values: "stop", "length", "tool_calls".
	FinishReason string

	// Usage contains token usage statistics.
	Usage TokenUsage
}

// HasToolCalls returns true if the response contains tool calls.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Add combines two TokenUsage instances.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// CompletionOption is a functional option for configuring CompletionRequest.
type CompletionOption func(*CompletionRequest)

// WithSystem sets the system prompt.
func WithSystem(system string) CompletionOption {
	return func(r *CompletionRequest) {
		r.System = system
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.Temperature = &t
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) {
		r.MaxTokens = &n
	}
}

// WithTools sets the available tools.
func WithTools(tools ...ToolDef) CompletionOption {
	return func(r *CompletionRequest) {
		r.Tools = tools
	}
}

// NewCompletionRequest creates a CompletionRequest with the given messages
// and options.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) *CompletionRequest {
	req := &CompletionRequest{Messages: messages}
	for _, opt := range opts {
		opt(req)
	}
	return req
}
