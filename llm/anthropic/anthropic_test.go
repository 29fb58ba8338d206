package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/llm"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestConvertMessages(t *testing.T) {
	msgs := []llm.Message{
		llm.NewSystemMessage("carried separately"),
		llm.NewUserMessage("What is the capital of France?"),
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "t1", Name: "search_memory", Arguments: `{"query":"capital"}`}},
		},
		llm.NewToolMessage(llm.NewToolResult("t1", "no matching memories")),
	}

	out, err := convertMessages(msgs)
	require.NoError(t, err)
	// The system message is dropped; tool results ride as user messages.
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Equal(t, "user", string(out[2].Role))
}

func TestConvertMessagesRejectsBadToolInput(t *testing.T) {
	_, err := convertMessages([]llm.Message{{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "t1", Name: "x", Arguments: "{broken"}},
	}})
	assert.Error(t, err)
}

func TestConvertTools(t *testing.T) {
	tools, err := convertTools([]llm.ToolDef{{
		Name:        "add_memory",
		Description: "Store a memory",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"answer": map[string]any{"type": "string"}},
			"required":   []string{"answer"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add_memory", tools[0].OfTool.Name)
	assert.Equal(t, "Store a memory", tools[0].OfTool.Description.Value)
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, "tool_calls", finishReason("tool_use"))
	assert.Equal(t, "length", finishReason("max_tokens"))
	assert.Equal(t, "stop", finishReason("end_turn"))
	assert.Equal(t, "stop", finishReason(""))
}
