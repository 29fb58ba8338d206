package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mnemo-ai/mnemo/embedding"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/store"
)

// DefaultLongTermThreshold is the cache-hit distance cutoff for the
// long-term tier's cosine metric.
const DefaultLongTermThreshold = 0.2

// LongTermConfig configures a LongTermStore.
type LongTermConfig struct {
	// Prefix is the key namespace. Defaults to "memory:long-term:".
	Prefix string

	// Dim is the embedding dimension, inferred lazily when <= 0.
	Dim int

	// Threshold is the maximum admissible cosine distance for a search hit.
	// Defaults to DefaultLongTermThreshold.
	Threshold float64

	// NewID generates entry ids. Defaults to NewID (ULID).
	NewID func() string

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *LongTermConfig) withDefaults() LongTermConfig {
	cfg := *c
	if cfg.Prefix == "" {
		cfg.Prefix = "memory:long-term:"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLongTermThreshold
	}
	if cfg.NewID == nil {
		cfg.NewID = NewID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// LongTermStore holds rich, optionally user-scoped memory entries with
// dual question/text embeddings over an HNSW cosine index. Entries are
// deduplicated by content hash: writing the same fact twice collapses to
// one document.
type LongTermStore struct {
	client   store.Client
	embedder embedding.Embedder
	llm      llm.Client
	cfg      LongTermConfig
	dim      dimension

	initOnce sync.Once
	initErr  error
}

// NewLongTermStore creates a long-term memory store. The llm client is used
// only by Extract and may be nil when extraction is not needed.
func NewLongTermStore(client store.Client, embedder embedding.Embedder, llmClient llm.Client, cfg LongTermConfig) *LongTermStore {
	return &LongTermStore{
		client:   client,
		embedder: embedder,
		llm:      llmClient,
		cfg:      cfg.withDefaults(),
	}
}

// IndexName returns the store's deterministic index name.
func (s *LongTermStore) IndexName() string {
	return store.IndexName(s.cfg.Prefix)
}

// hashPrefix is where the hash-to-id pointers live. It is deliberately
// outside the index prefix so pointers never show up as search candidates.
func (s *LongTermStore) hashPrefix() string {
	return "memory:long-term-hash:"
}

// EntryHash computes the stable deduplication hash of a memory.
func EntryHash(memoryType LongTermType, userID, sessionID, text string) string {
	h := xxhash.New()
	h.WriteString(string(memoryType))
	h.WriteString("\x00")
	h.WriteString(userID)
	h.WriteString("\x00")
	h.WriteString(sessionID)
	h.WriteString("\x00")
	h.WriteString(text)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Init ensures the store's index exists.
func (s *LongTermStore) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.ensureIndex(ctx)
	})
	return s.initErr
}

func (s *LongTermStore) ensureIndex(ctx context.Context) error {
	dim, err := s.dim.resolve(ctx, s.embedder, s.cfg.Dim)
	if err != nil {
		return err
	}
	vector := &store.VectorOptions{
		Algorithm: store.VectorHNSW,
		Dim:       dim,
		Metric:    store.MetricCosine,
	}
	return s.client.EnsureIndex(ctx, store.IndexSchema{
		Name:   s.IndexName(),
		Prefix: s.cfg.Prefix,
		Fields: []store.Field{
			{JSONPath: "$.id", Alias: "id", Type: store.FieldTag},
			{JSONPath: "$.user_id", Alias: "user_id", Type: store.FieldTag},
			{JSONPath: "$.session_id", Alias: "session_id", Type: store.FieldTag},
			{JSONPath: "$.scope", Alias: "scope", Type: store.FieldTag},
			{JSONPath: "$.memory_type", Alias: "memory_type", Type: store.FieldTag},
			{JSONPath: "$.memory_hash", Alias: "memory_hash", Type: store.FieldTag},
			{JSONPath: "$.question", Alias: "question", Type: store.FieldText},
			{JSONPath: "$.text", Alias: "text", Type: store.FieldText},
			{JSONPath: "$.question_embedding", Alias: "question_embedding", Type: store.FieldVector, Vector: vector},
			{JSONPath: "$.text_embedding", Alias: "text_embedding", Type: store.FieldVector, Vector: vector},
		},
	})
}

// AddParams describes a long-term memory write.
type AddParams struct {
	Type     LongTermType
	Question string
	Text     string

	// UserID and SessionID scope the memory to one user/session. Leave
	// empty for memories that apply to anyone.
	UserID    string
	SessionID string

	Topics    []string
	Entities  []string
	EventDate *time.Time
	TTL       time.Duration
}

// Add stores a memory entry and returns its id. An entry whose content
// hash already exists is updated in place rather than duplicated.
func (s *LongTermStore) Add(ctx context.Context, p AddParams) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	if !p.Type.IsValid() {
		return "", fmt.Errorf("long-term add: invalid memory type %q", p.Type)
	}

	hash := EntryHash(p.Type, p.UserID, p.SessionID, p.Text)

	// Upsert by hash: if this fact is already stored, refresh it under its
	// existing id.
	if id, ok, err := s.idForHash(ctx, hash); err != nil {
		return "", err
	} else if ok {
		return s.update(ctx, id, p.Question, p.Text, p.TTL)
	}

	entry, err := s.buildEntry(ctx, s.cfg.NewID(), hash, p)
	if err != nil {
		return "", err
	}
	if err := s.client.SetJSON(ctx, s.cfg.Prefix+entry.ID, entry, p.TTL); err != nil {
		return "", err
	}
	if err := s.writeHashPointer(ctx, hash, entry.ID); err != nil {
		return "", err
	}
	s.cfg.Logger.Debug("long-term memory added", "id", entry.ID, "type", p.Type)
	return entry.ID, nil
}

// Update overwrites an existing entry's question, text, hash, and
// embeddings in place. Updating a non-existent id returns ErrNotFound.
func (s *LongTermStore) Update(ctx context.Context, id, question, text string, ttl time.Duration) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	return s.update(ctx, id, question, text, ttl)
}

func (s *LongTermStore) update(ctx context.Context, id, question, text string, ttl time.Duration) (string, error) {
	key := s.cfg.Prefix + id
	var entry LongTermEntry
	if err := s.client.GetJSON(ctx, key, "$", &entry); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: long-term entry %s", ErrNotFound, id)
		}
		return "", err
	}

	oldHash := entry.MemoryHash

	questionVec, textVec, err := s.embedPair(ctx, question, text)
	if err != nil {
		return "", err
	}

	entry.Question = question
	entry.Text = text
	entry.QuestionEmbedding = questionVec
	entry.TextEmbedding = textVec
	entry.MemoryHash = EntryHash(entry.MemoryType, entry.UserID, entry.SessionID, text)
	entry.UpdatedAt = s.cfg.Now().UTC()

	if err := s.client.SetJSON(ctx, key, entry, ttl); err != nil {
		return "", err
	}
	if entry.MemoryHash != oldHash {
		if oldHash != "" {
			_ = s.client.Del(ctx, s.hashPrefix()+oldHash)
		}
		if err := s.writeHashPointer(ctx, entry.MemoryHash, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// SearchParams describes a long-term memory query.
type SearchParams struct {
	Query string

	// Type and RequiresUserID control filtering: a semantic query that
	// requires a user id sees that user's entries plus global entries,
	// everything else searches unfiltered.
	Type           LongTermType
	RequiresUserID bool
	UserID         string

	TopK int
}

// Search runs a filtered KNN query against the question embeddings and,
// when nothing passes the threshold, retries the identical query against
// the text embeddings: a user's phrasing may match the stored answer text
// better than the stored question. A user-scoped query sees that user's
// private entries plus entries that apply to anyone; other users' private
// entries stay invisible. Returned entries get their access count bumped.
func (s *LongTermStore) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if p.TopK <= 0 {
		p.TopK = 1
	}

	vec, err := s.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	filterSets := []map[string]string{nil}
	if p.Type == LongTermSemantic && p.RequiresUserID && p.UserID != "" {
		filterSets = []map[string]string{
			{"user_id": p.UserID},
			{"scope": ScopeGlobal},
		}
	}

	hits, err := s.searchScoped(ctx, "question_embedding", vec, p.TopK, filterSets)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		hits, err = s.searchScoped(ctx, "text_embedding", vec, p.TopK, filterSets)
		if err != nil {
			return nil, err
		}
	}

	for i := range hits {
		s.recordAccess(ctx, hits[i].LongTerm)
	}
	return hits, nil
}

// searchScoped unions one KNN pass per filter set, deduplicated by entry id
// and re-sorted ascending by distance.
func (s *LongTermStore) searchScoped(ctx context.Context, field string, vec []float32, topK int, filterSets []map[string]string) ([]Hit, error) {
	seen := make(map[string]bool)
	var merged []Hit
	for _, filters := range filterSets {
		hits, err := s.searchField(ctx, field, vec, topK, filters)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if seen[h.LongTerm.ID] {
				continue
			}
			seen[h.LongTerm.ID] = true
			merged = append(merged, h)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (s *LongTermStore) searchField(ctx context.Context, field string, vec []float32, topK int, filters map[string]string) ([]Hit, error) {
	raw, err := s.client.Search(ctx, s.IndexName(), store.KNNQuery{
		VectorField: field,
		Vector:      vec,
		K:           topK,
		Filters:     filters,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(raw))
	for _, r := range raw {
		if !admissible(r.Distance, s.cfg.Threshold) {
			continue
		}
		var entry LongTermEntry
		if err := json.Unmarshal(r.Document, &entry); err != nil {
			return nil, fmt.Errorf("decode long-term entry %s: %w", r.Key, err)
		}
		hits = append(hits, Hit{Kind: KindLongTerm, Distance: r.Distance, LongTerm: &entry})
	}
	return hits, nil
}

// recordAccess bumps the entry's access count. A failed bump only costs
// statistics, so it is logged rather than failing the search.
func (s *LongTermStore) recordAccess(ctx context.Context, entry *LongTermEntry) {
	count, err := s.client.IncrJSON(ctx, s.cfg.Prefix+entry.ID, "$.access_count", 1)
	if err != nil {
		s.cfg.Logger.Warn("access count bump failed", "id", entry.ID, "error", err)
		return
	}
	entry.AccessCount = int(count)
}

// Clear removes every long-term entry and hash pointer, then recreates the
// index.
func (s *LongTermStore) Clear(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.client.DropIndex(ctx, s.IndexName(), true); err != nil {
		return err
	}
	for _, prefix := range []string{s.cfg.Prefix, s.hashPrefix()} {
		keys, err := s.client.Keys(ctx, prefix)
		if err != nil {
			return err
		}
		if err := s.client.Del(ctx, keys...); err != nil {
			return err
		}
	}
	return s.ensureIndex(ctx)
}

type hashPointer struct {
	ID string `json:"id"`
}

func (s *LongTermStore) idForHash(ctx context.Context, hash string) (string, bool, error) {
	var ptr hashPointer
	err := s.client.GetJSON(ctx, s.hashPrefix()+hash, "$", &ptr)
	if errors.Is(err, store.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ptr.ID, ptr.ID != "", nil
}

func (s *LongTermStore) writeHashPointer(ctx context.Context, hash, id string) error {
	return s.client.SetJSON(ctx, s.hashPrefix()+hash, hashPointer{ID: id}, 0)
}

func (s *LongTermStore) buildEntry(ctx context.Context, id, hash string, p AddParams) (*LongTermEntry, error) {
	questionVec, textVec, err := s.embedPair(ctx, p.Question, p.Text)
	if err != nil {
		return nil, err
	}

	scope := ScopeGlobal
	if p.UserID != "" {
		scope = ScopeUser
	}

	now := s.cfg.Now().UTC()
	return &LongTermEntry{
		ID:                id,
		UserID:            p.UserID,
		SessionID:         p.SessionID,
		Scope:             scope,
		MemoryType:        p.Type,
		Topics:            p.Topics,
		Entities:          p.Entities,
		MemoryHash:        hash,
		AccessCount:       0,
		CreatedAt:         now,
		UpdatedAt:         now,
		EventDate:         p.EventDate,
		Question:          p.Question,
		Text:              p.Text,
		QuestionEmbedding: questionVec,
		TextEmbedding:     textVec,
	}, nil
}

func (s *LongTermStore) embedPair(ctx context.Context, question, text string) ([]float32, []float32, error) {
	questionVec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	textVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return questionVec, textVec, nil
}
