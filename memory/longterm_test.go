package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/embedding/mock"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/llm/llmtest"
	"github.com/mnemo-ai/mnemo/memory"
	"github.com/mnemo-ai/mnemo/store/storetest"
)

func newLongTermFixture(t *testing.T, llmClient llm.Client) (*memory.LongTermStore, *storetest.Fake, *mock.Embedder) {
	t.Helper()
	fake := storetest.New()
	emb := mock.New(4)
	s := memory.NewLongTermStore(fake, emb, llmClient, memory.LongTermConfig{Dim: 4})
	return s, fake, emb
}

func TestLongTermAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, _, emb := newLongTermFixture(t, nil)

	emb.SetFixed("Where does the user live?", []float32{1, 0, 0, 0})

	id, err := s.Add(ctx, memory.AddParams{
		Type:     memory.LongTermSemantic,
		Question: "Where does the user live?",
		Text:     "The user lives in Lisbon.",
		UserID:   "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	hits, err := s.Search(ctx, memory.SearchParams{
		Query:          "Where does the user live?",
		Type:           memory.LongTermSemantic,
		RequiresUserID: true,
		UserID:         "alice",
		TopK:           3,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, memory.KindLongTerm, hits[0].Kind)
	assert.Equal(t, "The user lives in Lisbon.", hits[0].Answer())
	assert.Equal(t, id, hits[0].ID())
}

func TestLongTermUserFilter(t *testing.T) {
	ctx := context.Background()
	s, _, emb := newLongTermFixture(t, nil)

	emb.SetFixed("favorite food?", []float32{1, 0, 0, 0})

	_, err := s.Add(ctx, memory.AddParams{
		Type: memory.LongTermSemantic, Question: "favorite food?",
		Text: "Alice loves ramen.", UserID: "alice",
	})
	require.NoError(t, err)
	_, err = s.Add(ctx, memory.AddParams{
		Type: memory.LongTermSemantic, Question: "favorite food?",
		Text: "Bob loves tacos.", UserID: "bob",
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, memory.SearchParams{
		Query: "favorite food?", Type: memory.LongTermSemantic,
		RequiresUserID: true, UserID: "alice", TopK: 5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Alice loves ramen.", hits[0].Answer())
}

func TestLongTermGlobalEntriesVisibleToEveryUser(t *testing.T) {
	ctx := context.Background()
	s, _, emb := newLongTermFixture(t, nil)

	emb.SetFixed("how do tides work?", []float32{1, 0, 0, 0})

	// Stored without a user id: the memory applies to anyone.
	_, err := s.Add(ctx, memory.AddParams{
		Type: memory.LongTermSemantic, Question: "how do tides work?",
		Text: "Tides follow the moon.",
	})
	require.NoError(t, err)
	_, err = s.Add(ctx, memory.AddParams{
		Type: memory.LongTermSemantic, Question: "how do tides work?",
		Text: "Alice prefers the spring tide chart.", UserID: "alice",
	})
	require.NoError(t, err)

	search := func(user string) []memory.Hit {
		t.Helper()
		hits, err := s.Search(ctx, memory.SearchParams{
			Query: "how do tides work?", Type: memory.LongTermSemantic,
			RequiresUserID: true, UserID: user, TopK: 5,
		})
		require.NoError(t, err)
		return hits
	}

	// Alice sees her own entry plus the global one.
	hits := search("alice")
	require.Len(t, hits, 2)

	// Bob sees only the global entry; Alice's stays private.
	hits = search("bob")
	require.Len(t, hits, 1)
	assert.Equal(t, "Tides follow the moon.", hits[0].Answer())
	assert.Equal(t, memory.ScopeGlobal, hits[0].LongTerm.Scope)
}

func TestLongTermHashDedup(t *testing.T) {
	ctx := context.Background()
	s, fake, _ := newLongTermFixture(t, nil)

	p := memory.AddParams{
		Type: memory.LongTermSemantic, Question: "pet?",
		Text: "The user has a cat named Miso.", UserID: "alice",
	}
	first, err := s.Add(ctx, p)
	require.NoError(t, err)
	second, err := s.Add(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, first, second, "the same fact collapses to one entry")

	keys, err := fake.Keys(ctx, "memory:long-term:")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestLongTermTextFallback(t *testing.T) {
	ctx := context.Background()
	s, _, emb := newLongTermFixture(t, nil)

	// The stored question is nowhere near the query, but the stored text is
	// an exact match: the second KNN pass has to find it.
	emb.SetFixed("unrelated question", []float32{0, 1, 0, 0})
	emb.SetFixed("the actual answer", []float32{1, 0, 0, 0})
	emb.SetFixed("find it", []float32{1, 0, 0, 0})

	_, err := s.Add(ctx, memory.AddParams{
		Type: memory.LongTermEpisodic, Question: "unrelated question",
		Text: "the actual answer",
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, memory.SearchParams{Query: "find it", TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "the actual answer", hits[0].Answer())
}

func TestLongTermAccessCount(t *testing.T) {
	ctx := context.Background()
	s, fake, emb := newLongTermFixture(t, nil)

	emb.SetFixed("birthday?", []float32{1, 0, 0, 0})

	id, err := s.Add(ctx, memory.AddParams{
		Type: memory.LongTermSemantic, Question: "birthday?",
		Text: "March 3rd.",
	})
	require.NoError(t, err)

	for range 2 {
		hits, err := s.Search(ctx, memory.SearchParams{Query: "birthday?", TopK: 1})
		require.NoError(t, err)
		require.Len(t, hits, 1)
	}

	var entry memory.LongTermEntry
	require.NoError(t, fake.GetJSON(ctx, "memory:long-term:"+id, "$", &entry))
	assert.Equal(t, 2, entry.AccessCount)
}

func TestLongTermUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLongTermFixture(t, nil)

	_, err := s.Update(ctx, "no-such-id", "q", "t", 0)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestLongTermAddRejectsInvalidType(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLongTermFixture(t, nil)

	_, err := s.Add(ctx, memory.AddParams{Type: "bogus", Question: "q", Text: "t"})
	assert.Error(t, err)
}

func TestLongTermExtract(t *testing.T) {
	ctx := context.Background()
	script := llmtest.New(&llm.CompletionResponse{
		FinishReason: "tool_calls",
		ToolCalls: []llm.ToolCall{
			{
				ID: "t1", Name: "store_memory",
				Arguments: `{"type":"semantic","question":"What does the user do?","text":"The user keeps bees.","requires_user_id":true,"topics":["work"]}`,
			},
			{
				ID: "t2", Name: "store_memory",
				Arguments: `{"type":"episodic","question":"When did the user move?","text":"The user moved to Lisbon.","requires_user_id":true,"event_date":"2024-06-01"}`,
			},
			{
				ID: "t3", Name: "store_memory",
				Arguments: `{"type":"bogus","question":"q","text":"t","requires_user_id":false}`,
			},
		},
	})
	s, fake, _ := newLongTermFixture(t, script)

	transcript := []memory.ExtractMessage{
		{ID: "m1", Role: "user", Content: "I keep bees for a living"},
		{ID: "m2", Role: "assistant", Content: "That sounds lovely"},
	}

	ids, err := s.Extract(ctx, transcript, "alice", "chat-1")
	require.NoError(t, err)
	assert.Len(t, ids, 2, "the invalid proposal is dropped")

	var entry memory.LongTermEntry
	require.NoError(t, fake.GetJSON(ctx, "memory:long-term:"+ids[0], "$", &entry))
	assert.Equal(t, "alice", entry.UserID)
	assert.Equal(t, "chat-1", entry.SessionID)
	assert.NotEmpty(t, entry.MemoryHash)

	// The extraction request carried the transcript and the store_memory tool.
	require.Equal(t, 1, script.Calls())
	req := script.Requests[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "store_memory", req.Tools[0].Name)
	assert.Contains(t, req.Messages[0].Content, "I keep bees")

	// Re-extracting the same facts refreshes in place instead of duplicating.
	script.Queue(&llm.CompletionResponse{
		FinishReason: "tool_calls",
		ToolCalls: []llm.ToolCall{
			{
				ID: "t4", Name: "store_memory",
				Arguments: `{"type":"semantic","question":"What does the user do?","text":"The user keeps bees.","requires_user_id":true}`,
			},
		},
	})
	again, err := s.Extract(ctx, transcript, "alice", "chat-1")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, ids[0], again[0])
}

func TestLongTermExtractNothing(t *testing.T) {
	ctx := context.Background()
	script := llmtest.New(&llm.CompletionResponse{Content: "no memories", FinishReason: "stop"})
	s, fake, _ := newLongTermFixture(t, script)

	ids, err := s.Extract(ctx, []memory.ExtractMessage{{ID: "m1", Role: "user", Content: "hi"}}, "alice", "chat-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	keys, err := fake.Keys(ctx, "memory:long-term:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
