package mnemo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/embedding/mock"
	"github.com/mnemo-ai/mnemo/llm/llmtest"
	"github.com/mnemo-ai/mnemo/memory"
	"github.com/mnemo-ai/mnemo/store/storetest"
)

func newAssistant(t *testing.T) (*mnemo.Assistant, *llmtest.Client, *storetest.Fake) {
	t.Helper()
	fake := storetest.New()
	script := llmtest.New()

	a, err := mnemo.New(context.Background(),
		mnemo.WithStore(fake),
		mnemo.WithEmbedder(mock.New(8)),
		mnemo.WithLLM(script),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, script, fake
}

func TestNewRequiresStore(t *testing.T) {
	_, err := mnemo.New(context.Background(),
		mnemo.WithEmbedder(mock.New(8)),
		mnemo.WithLLM(llmtest.New()),
	)
	assert.ErrorIs(t, err, mnemo.ErrInvalidConfig)
}

func TestNewRequiresProviders(t *testing.T) {
	// No embedder and no OpenAI key to build one from.
	_, err := mnemo.New(context.Background(),
		mnemo.WithStore(storetest.New()),
		mnemo.WithLLM(llmtest.New()),
	)
	assert.ErrorIs(t, err, mnemo.ErrInvalidConfig)

	// No LLM and no Anthropic key to build one from.
	_, err = mnemo.New(context.Background(),
		mnemo.WithStore(storetest.New()),
		mnemo.WithEmbedder(mock.New(8)),
	)
	assert.ErrorIs(t, err, mnemo.ErrInvalidConfig)
}

func TestAssistantProcessMessage(t *testing.T) {
	ctx := context.Background()
	a, script, _ := newAssistant(t)

	script.QueueText("Hello Alice!")
	reply, err := a.ProcessMessage(ctx, "alice", "", "hi there")
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice!", reply.Text)
	assert.Equal(t, "llm", reply.Source)

	// The same question from the same user now hits the semantic cache.
	reply, err = a.ProcessMessage(ctx, "alice", "", "hi there")
	require.NoError(t, err)
	assert.True(t, reply.CacheHit)
	assert.Equal(t, string(memory.KindSemantic), reply.Source)
}

func TestAssistantValidatesUser(t *testing.T) {
	a, _, _ := newAssistant(t)

	_, err := a.ProcessMessage(context.Background(), "", "", "hello")
	assert.Error(t, err)
}

func TestAssistantChatRouting(t *testing.T) {
	ctx := context.Background()
	a, script, _ := newAssistant(t)

	first := a.CurrentChat("alice")
	require.NotEmpty(t, first)

	script.QueueText("reply one")
	_, err := a.ProcessMessage(ctx, "alice", "", "message in first chat")
	require.NoError(t, err)

	second := a.NewChat("alice")
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, a.CurrentChat("alice"))

	// Naming an explicit chat id switches back.
	script.QueueText("reply two")
	reply, err := a.ProcessMessage(ctx, "alice", first, "back to the first chat")
	require.NoError(t, err)
	assert.Equal(t, first, reply.ChatID)
	assert.Equal(t, first, a.CurrentChat("alice"))

	infos, err := a.ListChats(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "only the chat with messages is listed")
	assert.EqualValues(t, 4, infos[0].Messages)
}

func TestAssistantUserIsolation(t *testing.T) {
	ctx := context.Background()
	a, script, _ := newAssistant(t)

	script.QueueText("hi alice")
	_, err := a.ProcessMessage(ctx, "alice", "", "remember me")
	require.NoError(t, err)

	infos, err := a.ListChats(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, infos)
}
