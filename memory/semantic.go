package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnemo-ai/mnemo/embedding"
	"github.com/mnemo-ai/mnemo/store"
)

// DefaultSemanticThreshold is the cache-hit distance cutoff for the
// semantic tier's L2 metric.
const DefaultSemanticThreshold = 0.35

// SemanticConfig configures a SemanticStore.
type SemanticConfig struct {
	// Prefix is the key namespace. Defaults to "memory:semantic:".
	Prefix string

	// Dim is the embedding dimension. When <= 0 it is inferred from a
	// sentinel embed on first use.
	Dim int

	// Threshold is the maximum admissible distance for a search hit.
	// Defaults to DefaultSemanticThreshold.
	Threshold float64

	// NewID generates entry ids. Defaults to NewID (ULID).
	NewID func() string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *SemanticConfig) withDefaults() SemanticConfig {
	cfg := *c
	if cfg.Prefix == "" {
		cfg.Prefix = "memory:semantic:"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSemanticThreshold
	}
	if cfg.NewID == nil {
		cfg.NewID = NewID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// SemanticStore holds global question/answer memory keyed by content,
// searched by L2 distance over a FLAT index.
type SemanticStore struct {
	client   store.Client
	embedder embedding.Embedder
	cfg      SemanticConfig
	dim      dimension

	initOnce sync.Once
	initErr  error
}

// NewSemanticStore creates a semantic memory store over the given client
// and embedder.
func NewSemanticStore(client store.Client, embedder embedding.Embedder, cfg SemanticConfig) *SemanticStore {
	return &SemanticStore{
		client:   client,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}
}

// IndexName returns the store's deterministic index name.
func (s *SemanticStore) IndexName() string {
	return store.IndexName(s.cfg.Prefix)
}

// Init ensures the store's index exists. It is idempotent and safe to call
// concurrently; every store operation calls it lazily.
func (s *SemanticStore) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.ensureIndex(ctx)
	})
	return s.initErr
}

func (s *SemanticStore) ensureIndex(ctx context.Context) error {
	dim, err := s.dim.resolve(ctx, s.embedder, s.cfg.Dim)
	if err != nil {
		return err
	}
	return s.client.EnsureIndex(ctx, store.IndexSchema{
		Name:   s.IndexName(),
		Prefix: s.cfg.Prefix,
		Fields: []store.Field{
			{JSONPath: "$.id", Alias: "id", Type: store.FieldTag},
			{JSONPath: "$.question", Alias: "question", Type: store.FieldText},
			{JSONPath: "$.answer", Alias: "answer", Type: store.FieldText},
			{JSONPath: "$.embedding", Alias: "embedding", Type: store.FieldVector,
				Vector: &store.VectorOptions{
					Algorithm: store.VectorFlat,
					Dim:       dim,
					Metric:    store.MetricL2,
				}},
		},
	})
}

// Add stores a question/answer pair and returns its id. Adding a question
// whose embedding already exists verbatim (distance exactly 0) updates the
// existing entry instead of inserting a duplicate.
func (s *SemanticStore) Add(ctx context.Context, question, answer string, ttl time.Duration) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}

	hits, err := s.Search(ctx, question, 1)
	if err != nil {
		return "", err
	}
	if len(hits) > 0 && hits[0].Distance == 0 {
		return s.Update(ctx, hits[0].Semantic.ID, question, answer, ttl)
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	entry := SemanticEntry{
		ID:        s.cfg.NewID(),
		Question:  question,
		Answer:    answer,
		Embedding: vec,
	}
	if err := s.client.SetJSON(ctx, s.cfg.Prefix+entry.ID, entry, ttl); err != nil {
		return "", err
	}
	s.cfg.Logger.Debug("semantic memory added", "id", entry.ID)
	return entry.ID, nil
}

// Update overwrites an existing entry's question, answer, and embedding in
// place. Updating a non-existent id returns ErrNotFound.
func (s *SemanticStore) Update(ctx context.Context, id, question, answer string, ttl time.Duration) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}

	key := s.cfg.Prefix + id
	var existing SemanticEntry
	if err := s.client.GetJSON(ctx, key, "$", &existing); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: semantic entry %s", ErrNotFound, id)
		}
		return "", err
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	entry := SemanticEntry{
		ID:        id,
		Question:  question,
		Answer:    answer,
		Embedding: vec,
	}
	if err := s.client.SetJSON(ctx, key, entry, ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Search embeds the query and returns up to topK entries within the store's
// distance threshold, ascending by distance. An empty result means the
// question is not in memory.
func (s *SemanticStore) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	raw, err := s.client.Search(ctx, s.IndexName(), store.KNNQuery{
		VectorField: "embedding",
		Vector:      vec,
		K:           topK,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(raw))
	for _, r := range raw {
		if !admissible(r.Distance, s.cfg.Threshold) {
			continue
		}
		var entry SemanticEntry
		if err := json.Unmarshal(r.Document, &entry); err != nil {
			return nil, fmt.Errorf("decode semantic entry %s: %w", r.Key, err)
		}
		hits = append(hits, Hit{Kind: KindSemantic, Distance: r.Distance, Semantic: &entry})
	}
	return hits, nil
}

// Clear removes every semantic entry and recreates the index.
func (s *SemanticStore) Clear(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.client.DropIndex(ctx, s.IndexName(), true); err != nil {
		return err
	}
	keys, err := s.client.Keys(ctx, s.cfg.Prefix)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return err
	}
	return s.ensureIndex(ctx)
}
