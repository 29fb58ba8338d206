// Package memory implements the tiered semantic memory system.
//
// The durable tiers are:
//
//   - SemanticStore: Global question/answer facts, independent of any user.
//     Searched by L2 distance over a FLAT index and used as an answer cache;
//     adding an identical question twice updates in place instead of
//     duplicating.
//
//   - EpisodicStore: One summary per chat session, scoped to a user via its
//     key namespace. Updated in place by chat id, inserting when absent.
//
//   - LongTermStore: Rich per-user entries carrying topic/entity tags,
//     content-hash deduplication, access counts, and separate question and
//     text embeddings over an HNSW cosine index. Entries are written either
//     directly or through LLM-driven extraction from transcript messages.
//
// WorkingMemory is the query-time aggregate: it fans a query out to all
// three tiers concurrently, tags each hit with its origin, and merges the
// results ascending by distance. It also owns the tool commands
// (search_memory, add_memory, update_memory) the LLM uses to read and
// write memory mid-conversation.
//
// Every search applies the store's distance threshold as a strict
// post-filter: the KNN primitive always returns K results, and anything
// beyond the threshold is a cache miss, not a low-confidence match.
package memory
