package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/embedding/mock"
	"github.com/mnemo-ai/mnemo/memory"
	"github.com/mnemo-ai/mnemo/store/storetest"
)

func newEpisodicFixture(t *testing.T, userID string) (*memory.EpisodicStore, *storetest.Fake, *mock.Embedder) {
	t.Helper()
	fake := storetest.New()
	emb := mock.New(4)
	s := memory.NewEpisodicStore(fake, emb, memory.EpisodicConfig{UserID: userID, Dim: 4})
	return s, fake, emb
}

func TestEpisodicAddOverwrites(t *testing.T) {
	ctx := context.Background()
	s, fake, emb := newEpisodicFixture(t, "alice")

	emb.SetFixed("talked about cats", []float32{1, 0, 0, 0})
	emb.SetFixed("talked about dogs", []float32{1, 0, 0, 0})

	_, err := s.Add(ctx, "talked about cats", "chat-1", 0)
	require.NoError(t, err)
	_, err = s.Add(ctx, "talked about dogs", "chat-1", 0)
	require.NoError(t, err)

	keys, err := fake.Keys(ctx, "memory:episodic:alice:")
	require.NoError(t, err)
	assert.Len(t, keys, 1, "one summary per chat")

	hits, err := s.Search(ctx, "talked about dogs", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "talked about dogs", hits[0].Answer())
	assert.Equal(t, "chat-1", hits[0].ID())
}

func TestEpisodicUpdateInsertsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s, fake, _ := newEpisodicFixture(t, "alice")

	id, err := s.Update(ctx, "chat-9", "a brand new summary", 0)
	require.NoError(t, err)
	assert.Equal(t, "chat-9", id)

	exists, err := fake.Exists(ctx, "memory:episodic:alice:chat-9")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEpisodicAddRequiresChatID(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newEpisodicFixture(t, "alice")

	_, err := s.Add(ctx, "summary", "", 0)
	assert.Error(t, err)
}

func TestEpisodicUserIsolation(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	emb := mock.New(4)
	emb.SetFixed("the shared summary", []float32{1, 0, 0, 0})

	alice := memory.NewEpisodicStore(fake, emb, memory.EpisodicConfig{UserID: "alice", Dim: 4})
	bob := memory.NewEpisodicStore(fake, emb, memory.EpisodicConfig{UserID: "bob", Dim: 4})

	_, err := alice.Add(ctx, "the shared summary", "chat-1", 0)
	require.NoError(t, err)

	hits, err := bob.Search(ctx, "the shared summary", 3)
	require.NoError(t, err)
	assert.Empty(t, hits, "episodic memory never leaks across users")

	hits, err = alice.Search(ctx, "the shared summary", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
