package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/llm"
)

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  llm.Message
		ok   bool
	}{
		{"user message", llm.NewUserMessage("hi"), true},
		{"system message", llm.NewSystemMessage("be brief"), true},
		{"assistant text", llm.NewAssistantMessage("hello"), true},
		{"assistant tool calls only", llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "search_memory", Arguments: "{}"}},
		}, true},
		{"tool message", llm.NewToolMessage(llm.NewToolResult("1", "ok")), true},
		{"empty user", llm.Message{Role: llm.RoleUser}, false},
		{"empty assistant", llm.Message{Role: llm.RoleAssistant}, false},
		{"tool without results", llm.Message{Role: llm.RoleTool}, false},
		{"unknown role", llm.Message{Role: "narrator", Content: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.msg.IsValid())
		})
	}
}

func TestToolDefValidate(t *testing.T) {
	def := llm.ToolDef{
		Name:        "search_memory",
		Description: "Search stored memories",
		Parameters:  map[string]any{"type": "object"},
	}
	assert.NoError(t, def.Validate())

	for _, mutate := range []func(*llm.ToolDef){
		func(d *llm.ToolDef) { d.Name = "" },
		func(d *llm.ToolDef) { d.Description = "" },
		func(d *llm.ToolDef) { d.Parameters = nil },
	} {
		bad := def
		mutate(&bad)
		assert.Error(t, bad.Validate())
	}
}

func TestToolCallParseArguments(t *testing.T) {
	call := llm.ToolCall{
		ID:        "t1",
		Name:      "add_memory",
		Arguments: `{"kind":"semantic","answer":"Paris"}`,
	}
	require.NoError(t, call.Validate())

	var args struct {
		Kind   string `json:"kind"`
		Answer string `json:"answer"`
	}
	require.NoError(t, call.ParseArguments(&args))
	assert.Equal(t, "semantic", args.Kind)
	assert.Equal(t, "Paris", args.Answer)

	bad := llm.ToolCall{ID: "t2", Name: "add_memory", Arguments: "{not json"}
	assert.Error(t, bad.Validate())
}

func TestToolResultHelpers(t *testing.T) {
	ok := llm.NewToolResult("t1", "done")
	assert.False(t, ok.IsError)

	fail := llm.NewToolError("t1", "boom")
	assert.True(t, fail.IsError)
	assert.Equal(t, "boom", fail.Content)

	var r llm.ToolResult
	require.NoError(t, r.SetJSONContent(map[string]int{"count": 2}))
	assert.JSONEq(t, `{"count":2}`, r.Content)
}

func TestCompletionRequestOptions(t *testing.T) {
	def := llm.ToolDef{Name: "t", Description: "d", Parameters: map[string]any{}}
	req := llm.NewCompletionRequest(
		[]llm.Message{llm.NewUserMessage("hi")},
		llm.WithSystem("be brief"),
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(512),
		llm.WithTools(def),
	)

	assert.Equal(t, "be brief", req.System)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 512, *req.MaxTokens)
	require.Len(t, req.Tools, 1)
}

func TestTokenUsageAdd(t *testing.T) {
	total := llm.TokenUsage{InputTokens: 10, OutputTokens: 5}.
		Add(llm.TokenUsage{InputTokens: 3, OutputTokens: 7})
	assert.Equal(t, 13, total.InputTokens)
	assert.Equal(t, 12, total.OutputTokens)
}
