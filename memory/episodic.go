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

// DefaultEpisodicThreshold is the cache-hit distance cutoff for the
// episodic tier's L2 metric.
const DefaultEpisodicThreshold = 0.35

// EpisodicConfig configures an EpisodicStore.
type EpisodicConfig struct {
	// UserID scopes the store; the key namespace and index are derived from
	// it. Required.
	UserID string

	// Prefix overrides the derived key namespace.
	Prefix string

	// Dim is the embedding dimension, inferred lazily when <= 0.
	Dim int

	// Threshold is the maximum admissible distance for a search hit.
	// Defaults to DefaultEpisodicThreshold.
	Threshold float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *EpisodicConfig) withDefaults() EpisodicConfig {
	cfg := *c
	if cfg.Prefix == "" {
		cfg.Prefix = "memory:episodic:" + cfg.UserID + ":"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultEpisodicThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// EpisodicStore holds one summary per chat session for a single user. The
// chat id is a scalar tag, not part of the vector search; updates look the
// entry up by chat id and overwrite it, inserting when absent.
type EpisodicStore struct {
	client   store.Client
	embedder embedding.Embedder
	cfg      EpisodicConfig
	dim      dimension

	initOnce sync.Once
	initErr  error
}

// NewEpisodicStore creates an episodic memory store scoped to cfg.UserID.
func NewEpisodicStore(client store.Client, embedder embedding.Embedder, cfg EpisodicConfig) *EpisodicStore {
	return &EpisodicStore{
		client:   client,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}
}

// IndexName returns the store's deterministic index name.
func (s *EpisodicStore) IndexName() string {
	return store.IndexName(s.cfg.Prefix)
}

// Init ensures the store's index exists.
func (s *EpisodicStore) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.ensureIndex(ctx)
	})
	return s.initErr
}

func (s *EpisodicStore) ensureIndex(ctx context.Context) error {
	dim, err := s.dim.resolve(ctx, s.embedder, s.cfg.Dim)
	if err != nil {
		return err
	}
	return s.client.EnsureIndex(ctx, store.IndexSchema{
		Name:   s.IndexName(),
		Prefix: s.cfg.Prefix,
		Fields: []store.Field{
			{JSONPath: "$.chat_id", Alias: "chat_id", Type: store.FieldTag},
			{JSONPath: "$.summary", Alias: "summary", Type: store.FieldText},
			{JSONPath: "$.embedding", Alias: "embedding", Type: store.FieldVector,
				Vector: &store.VectorOptions{
					Algorithm: store.VectorFlat,
					Dim:       dim,
					Metric:    store.MetricL2,
				}},
		},
	})
}

// Add stores the summary for a chat, overwriting any previous one.
func (s *EpisodicStore) Add(ctx context.Context, summary, chatID string, ttl time.Duration) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	if chatID == "" {
		return "", fmt.Errorf("episodic add: chat id is required")
	}

	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	entry := EpisodicEntry{
		ChatID:    chatID,
		Summary:   summary,
		Embedding: vec,
	}
	if err := s.client.SetJSON(ctx, s.cfg.Prefix+chatID, entry, ttl); err != nil {
		return "", err
	}
	s.cfg.Logger.Debug("episodic memory written", "chat_id", chatID)
	return chatID, nil
}

// Update overwrites the summary for a chat, inserting when the chat has no
// entry yet.
func (s *EpisodicStore) Update(ctx context.Context, chatID, summary string, ttl time.Duration) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}

	var existing EpisodicEntry
	err := s.client.GetJSON(ctx, s.cfg.Prefix+chatID, "$", &existing)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return "", err
	}
	// Lookup-then-overwrite either way; a missing entry becomes an insert.
	return s.Add(ctx, summary, chatID, ttl)
}

// Search embeds the query and returns up to topK summaries within the
// store's distance threshold, ascending by distance.
func (s *EpisodicStore) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
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
		var entry EpisodicEntry
		if err := json.Unmarshal(r.Document, &entry); err != nil {
			return nil, fmt.Errorf("decode episodic entry %s: %w", r.Key, err)
		}
		hits = append(hits, Hit{Kind: KindEpisodic, Distance: r.Distance, Episodic: &entry})
	}
	return hits, nil
}

// Clear removes every episodic entry for the user and recreates the index.
func (s *EpisodicStore) Clear(ctx context.Context) error {
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
