// Package mnemo provides a demo chatbot built around a multi-tier semantic
// memory system backed by Redis (RedisJSON + RediSearch vector indexes).
//
// The memory system is organized into four tiers, each serving a different
// purpose and lifecycle:
//
//   - Semantic memory: Global question/answer facts, independent of any user,
//     searched by vector similarity and used as an answer cache.
//
//   - Episodic memory: One summary per chat session, scoped to a user,
//     updated in place as conversations progress.
//
//   - Long-term memory: Rich per-user entries with topic/entity tagging,
//     content-hash deduplication, access counting, and dual question/text
//     embeddings.
//
//   - Working memory: The query-time aggregate of the three durable tiers,
//     plus the tool surface the LLM uses to read and write them.
//
// The Assistant type wires the tiers together with a chat transcript store
// and a chat-completion provider:
//
//	pool, err := store.NewPool(store.Options{URL: "redis://localhost:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	assistant, err := mnemo.New(ctx,
//		mnemo.WithPool(pool),
//		mnemo.WithEmbedder(embedder),
//		mnemo.WithLLM(client),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	reply, err := assistant.ProcessMessage(ctx, "alice", "", "What year is it?")
//
// Incoming messages are appended to the chat transcript, answered from
// memory when a stored entry falls within the store's distance threshold,
// and otherwise routed to the LLM with memory search/add/update tools bound.
package mnemo
