package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/embedding/mock"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/memory"
	"github.com/mnemo-ai/mnemo/store/storetest"
)

func newWorkingFixture(t *testing.T) (*memory.WorkingMemory, *storetest.Fake, *mock.Embedder) {
	t.Helper()
	fake := storetest.New()
	emb := mock.New(4)

	semantic := memory.NewSemanticStore(fake, emb, memory.SemanticConfig{Dim: 4})
	episodic := memory.NewEpisodicStore(fake, emb, memory.EpisodicConfig{UserID: "alice", Dim: 4})
	longTerm := memory.NewLongTermStore(fake, emb, nil, memory.LongTermConfig{Dim: 4})

	w := memory.NewWorkingMemory(semantic, episodic, longTerm, memory.WorkingConfig{
		UserID:    "alice",
		SessionID: "chat-1",
	})
	return w, fake, emb
}

func TestWorkingSearchMergesAscending(t *testing.T) {
	ctx := context.Background()
	w, _, emb := newWorkingFixture(t)

	// One entry per tier at a known distance from the query: episodic at
	// 0.1 (L2), long-term at ~0.15 (cosine), semantic at 0.3 (L2).
	emb.SetFixed("the query", []float32{1, 0, 0, 0})
	emb.SetFixed("semantic question", []float32{1, 0.3, 0, 0})
	emb.SetFixed("episodic summary", []float32{1, 0.1, 0, 0})
	emb.SetFixed("long-term question", []float32{0.85, 0.5267827, 0, 0})

	cmds := w.Commands()
	add := func(args string) {
		t.Helper()
		res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c", Name: "add_memory", Arguments: args})
		require.False(t, res.IsError, res.Content)
	}
	add(`{"kind":"semantic","question":"semantic question","answer":"from semantic"}`)
	add(`{"kind":"episodic","answer":"episodic summary"}`)
	add(`{"kind":"long-term","question":"long-term question","answer":"from long-term"}`)

	hits, err := w.Search(ctx, "the query", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, memory.KindEpisodic, hits[0].Kind)
	assert.Equal(t, memory.KindLongTerm, hits[1].Kind)
	assert.Equal(t, memory.KindSemantic, hits[2].Kind)
	assert.True(t, hits[0].Distance <= hits[1].Distance)
	assert.True(t, hits[1].Distance <= hits[2].Distance)
}

func TestWorkingSearchTopK(t *testing.T) {
	ctx := context.Background()
	w, _, emb := newWorkingFixture(t)

	emb.SetFixed("the query", []float32{1, 0, 0, 0})
	emb.SetFixed("near", []float32{1, 0.05, 0, 0})
	emb.SetFixed("far", []float32{1, 0.3, 0, 0})

	cmds := w.Commands()
	res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c", Name: "add_memory",
		Arguments: `{"kind":"semantic","question":"near","answer":"a"}`})
	require.False(t, res.IsError, res.Content)
	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c", Name: "add_memory",
		Arguments: `{"kind":"episodic","answer":"far"}`})
	require.False(t, res.IsError, res.Content)

	hits, err := w.Search(ctx, "the query", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, memory.KindSemantic, hits[0].Kind, "the closest hit wins across tiers")
}

func TestWorkingSearchFindsGlobalLongTerm(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	emb := mock.New(4)

	semantic := memory.NewSemanticStore(fake, emb, memory.SemanticConfig{Dim: 4})
	episodic := memory.NewEpisodicStore(fake, emb, memory.EpisodicConfig{UserID: "alice", Dim: 4})
	longTerm := memory.NewLongTermStore(fake, emb, nil, memory.LongTermConfig{Dim: 4})
	w := memory.NewWorkingMemory(semantic, episodic, longTerm, memory.WorkingConfig{
		UserID:    "alice",
		SessionID: "chat-1",
	})

	emb.SetFixed("what timezone does the team use?", []float32{0, 1, 0, 0})

	// Stored without a user id: the memory applies to anyone and has to be
	// reachable through a user's working memory.
	_, err := longTerm.Add(ctx, memory.AddParams{
		Type:     memory.LongTermSemantic,
		Question: "what timezone does the team use?",
		Text:     "The team runs on UTC.",
	})
	require.NoError(t, err)

	hits, err := w.Search(ctx, "what timezone does the team use?", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, memory.KindLongTerm, hits[0].Kind)
	assert.Equal(t, "The team runs on UTC.", hits[0].Answer())
}

func TestWorkingSearchPropagatesTierError(t *testing.T) {
	ctx := context.Background()
	w, fake, _ := newWorkingFixture(t)

	fake.SearchErr = errors.New("search exploded")

	_, err := w.Search(ctx, "anything", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search exploded")
}

func TestWorkingCommandsRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, fake, emb := newWorkingFixture(t)
	cmds := w.Commands()

	assert.Len(t, memory.Defs(cmds), 3)

	emb.SetFixed("capital of France?", []float32{0, 0, 1, 0})

	res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c1", Name: "add_memory",
		Arguments: `{"kind":"semantic","question":"capital of France?","answer":"Paris"}`})
	require.False(t, res.IsError, res.Content)

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c2", Name: "search_memory",
		Arguments: `{"query":"capital of France?","kind":"semantic"}`})
	require.False(t, res.IsError, res.Content)

	var hits []memory.Hit
	require.NoError(t, json.Unmarshal([]byte(res.Content), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "Paris", hits[0].Answer())

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c3", Name: "update_memory",
		Arguments: `{"kind":"semantic","id":"` + hits[0].ID() + `","question":"capital of France?","answer":"Paris, France"}`})
	require.False(t, res.IsError, res.Content)

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c4", Name: "search_memory",
		Arguments: `{"query":"capital of France?","kind":"semantic"}`})
	require.False(t, res.IsError)
	require.NoError(t, json.Unmarshal([]byte(res.Content), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "Paris, France", hits[0].Answer())

	// Episodic adds default to the working memory's session.
	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c5", Name: "add_memory",
		Arguments: `{"kind":"episodic","answer":"we discussed capitals"}`})
	require.False(t, res.IsError, res.Content)
	exists, err := fake.Exists(ctx, "memory:episodic:alice:chat-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWorkingSearchResultsOmitEmbeddings(t *testing.T) {
	ctx := context.Background()
	w, _, emb := newWorkingFixture(t)
	cmds := w.Commands()

	emb.SetFixed("capital of France?", []float32{1, 0, 0, 0})

	res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c1", Name: "add_memory",
		Arguments: `{"kind":"semantic","question":"capital of France?","answer":"Paris"}`})
	require.False(t, res.IsError, res.Content)
	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c2", Name: "add_memory",
		Arguments: `{"kind":"long-term","question":"capital of France?","answer":"Paris"}`})
	require.False(t, res.IsError, res.Content)

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c3", Name: "search_memory",
		Arguments: `{"query":"capital of France?","top_k":5}`})
	require.False(t, res.IsError, res.Content)

	// The model gets the text payloads, never the raw vectors.
	assert.NotContains(t, res.Content, "embedding")

	var hits []memory.Hit
	require.NoError(t, json.Unmarshal([]byte(res.Content), &hits))
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "Paris", h.Answer())
	}
}

func TestWorkingCommandErrors(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newWorkingFixture(t)
	cmds := w.Commands()

	res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c1", Name: "no_such_tool", Arguments: `{}`})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "no_such_tool")

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c2", Name: "add_memory",
		Arguments: `{"kind":"mystery","answer":"x"}`})
	assert.True(t, res.IsError)

	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c3", Name: "search_memory", Arguments: `{}`})
	assert.True(t, res.IsError, "query is required")

	// A failed update surfaces as an error result, not a panic or silence.
	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c4", Name: "update_memory",
		Arguments: `{"kind":"semantic","id":"missing","answer":"x"}`})
	assert.True(t, res.IsError)
}

func TestWorkingClear(t *testing.T) {
	ctx := context.Background()
	w, fake, _ := newWorkingFixture(t)
	cmds := w.Commands()

	res := memory.Execute(ctx, cmds, llm.ToolCall{ID: "c1", Name: "add_memory",
		Arguments: `{"kind":"semantic","question":"q","answer":"a"}`})
	require.False(t, res.IsError, res.Content)
	res = memory.Execute(ctx, cmds, llm.ToolCall{ID: "c2", Name: "add_memory",
		Arguments: `{"kind":"long-term","question":"q2","answer":"a2"}`})
	require.False(t, res.IsError, res.Content)

	require.NoError(t, w.Clear(ctx))

	for _, prefix := range []string{"memory:semantic:", "memory:episodic:alice:", "memory:long-term:"} {
		keys, err := fake.Keys(ctx, prefix)
		require.NoError(t, err)
		assert.Empty(t, keys, prefix)
	}
}
