package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mnemo-ai/mnemo/llm"
)

// DefaultSearchTimeout bounds one fan-out across the tiers.
const DefaultSearchTimeout = 15 * time.Second

// WorkingConfig configures a WorkingMemory.
type WorkingConfig struct {
	// UserID and SessionID scope the episodic and long-term tiers.
	UserID    string
	SessionID string

	// Timeout bounds one Search fan-out. Defaults to DefaultSearchTimeout.
	Timeout time.Duration

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *WorkingConfig) withDefaults() WorkingConfig {
	cfg := *c
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSearchTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// WorkingMemory is the session-scoped view over all three tiers. A search
// fans out to every tier concurrently and merges the hits ascending by
// distance, so the closest memory wins regardless of which tier holds it.
type WorkingMemory struct {
	semantic *SemanticStore
	episodic *EpisodicStore
	longTerm *LongTermStore
	cfg      WorkingConfig
}

// NewWorkingMemory assembles a working memory over the three tier stores.
func NewWorkingMemory(semantic *SemanticStore, episodic *EpisodicStore, longTerm *LongTermStore, cfg WorkingConfig) *WorkingMemory {
	return &WorkingMemory{
		semantic: semantic,
		episodic: episodic,
		longTerm: longTerm,
		cfg:      cfg.withDefaults(),
	}
}

// UserID returns the user the working memory is scoped to.
func (w *WorkingMemory) UserID() string { return w.cfg.UserID }

// SessionID returns the chat session the working memory is scoped to.
func (w *WorkingMemory) SessionID() string { return w.cfg.SessionID }

// Search queries all three tiers concurrently and returns up to topK hits
// merged ascending by distance. Any tier failing fails the whole search
// and cancels the in-flight siblings.
func (w *WorkingMemory) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	ctx, span := w.cfg.Tracer.Start(ctx, "memory.working.search",
		trace.WithAttributes(attribute.String("memory.query", query)))
	defer span.End()

	if topK <= 0 {
		topK = 1
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	searches := []func(context.Context) ([]Hit, error){
		func(ctx context.Context) ([]Hit, error) {
			return w.semantic.Search(ctx, query, topK)
		},
		func(ctx context.Context) ([]Hit, error) {
			return w.episodic.Search(ctx, query, topK)
		},
		func(ctx context.Context) ([]Hit, error) {
			return w.longTerm.Search(ctx, SearchParams{
				Query:          query,
				Type:           LongTermSemantic,
				RequiresUserID: true,
				UserID:         w.cfg.UserID,
				TopK:           topK,
			})
		},
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		merged   []Hit
		firstErr error
	)
	for _, search := range searches {
		wg.Add(1)
		go func(search func(context.Context) ([]Hit, error)) {
			defer wg.Done()
			hits, err := search(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			merged = append(merged, hits...)
		}(search)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	span.SetAttributes(attribute.Int("memory.hits", len(merged)))
	return merged, nil
}

// Clear wipes all three tiers.
func (w *WorkingMemory) Clear(ctx context.Context) error {
	if err := w.semantic.Clear(ctx); err != nil {
		return err
	}
	if err := w.episodic.Clear(ctx); err != nil {
		return err
	}
	return w.longTerm.Clear(ctx)
}

// Command pairs a tool definition with its handler. The handler receives
// the raw tool arguments and returns the content to hand back to the model.
type Command struct {
	Def     llm.ToolDef
	Handler func(ctx context.Context, args json.RawMessage) (string, error)
}

// Execute runs a tool call against the matching command and converts the
// outcome into a tool result. Handler failures become error results for
// the model rather than Go errors.
func Execute(ctx context.Context, commands []Command, call llm.ToolCall) llm.ToolResult {
	for _, cmd := range commands {
		if cmd.Def.Name != call.Name {
			continue
		}
		content, err := cmd.Handler(ctx, json.RawMessage(call.Arguments))
		if err != nil {
			return llm.NewToolError(call.ID, err.Error())
		}
		return llm.NewToolResult(call.ID, content)
	}
	return llm.NewToolError(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
}

// Defs extracts the tool definitions from a command set.
func Defs(commands []Command) []llm.ToolDef {
	defs := make([]llm.ToolDef, len(commands))
	for i, cmd := range commands {
		defs[i] = cmd.Def
	}
	return defs
}

type searchArgs struct {
	Query string `json:"query"`
	Kind  Kind   `json:"kind,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

type addArgs struct {
	Kind     Kind   `json:"kind"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
	ChatID   string `json:"chat_id,omitempty"`
}

type updateArgs struct {
	Kind     Kind   `json:"kind"`
	ID       string `json:"id"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
}

// Commands returns the memory tool surface exposed to the model:
// search_memory, add_memory, and update_memory, each routed to a tier by
// its kind tag.
func (w *WorkingMemory) Commands() []Command {
	kindEnum := []string{string(KindSemantic), string(KindEpisodic), string(KindLongTerm)}
	return []Command{
		{
			Def: llm.ToolDef{
				Name:        "search_memory",
				Description: "Search stored memories for information relevant to a query. Searches every tier unless kind narrows it.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "What to look for"},
						"kind":  map[string]any{"type": "string", "enum": kindEnum, "description": "Restrict to one memory tier"},
						"top_k": map[string]any{"type": "integer", "description": "Maximum results, default 3"},
					},
					"required": []string{"query"},
				},
			},
			Handler: w.handleSearch,
		},
		{
			Def: llm.ToolDef{
				Name:        "add_memory",
				Description: "Store a new memory. Use kind semantic for question/answer facts, episodic for a chat summary, long-term for user-specific knowledge.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":     map[string]any{"type": "string", "enum": kindEnum},
						"question": map[string]any{"type": "string", "description": "The question this memory answers; unused for episodic"},
						"answer":   map[string]any{"type": "string", "description": "The memory content"},
						"chat_id":  map[string]any{"type": "string", "description": "Chat id for episodic memories; defaults to the current session"},
					},
					"required": []string{"kind", "answer"},
				},
			},
			Handler: w.handleAdd,
		},
		{
			Def: llm.ToolDef{
				Name:        "update_memory",
				Description: "Overwrite an existing memory by id.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":     map[string]any{"type": "string", "enum": kindEnum},
						"id":       map[string]any{"type": "string", "description": "The id returned when the memory was stored"},
						"question": map[string]any{"type": "string"},
						"answer":   map[string]any{"type": "string", "description": "The new memory content"},
					},
					"required": []string{"kind", "id", "answer"},
				},
			},
			Handler: w.handleUpdate,
		},
	}
}

func (w *WorkingMemory) handleSearch(ctx context.Context, args json.RawMessage) (string, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("search_memory: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("search_memory: query is required")
	}
	if a.TopK <= 0 {
		a.TopK = 3
	}

	var (
		hits []Hit
		err  error
	)
	switch a.Kind {
	case "":
		hits, err = w.Search(ctx, a.Query, a.TopK)
	case KindSemantic:
		hits, err = w.semantic.Search(ctx, a.Query, a.TopK)
	case KindEpisodic:
		hits, err = w.episodic.Search(ctx, a.Query, a.TopK)
	case KindLongTerm:
		hits, err = w.longTerm.Search(ctx, SearchParams{
			Query:          a.Query,
			Type:           LongTermSemantic,
			RequiresUserID: true,
			UserID:         w.cfg.UserID,
			TopK:           a.TopK,
		})
	default:
		return "", fmt.Errorf("search_memory: unknown kind %q", a.Kind)
	}
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "no matching memories", nil
	}

	data, err := json.Marshal(wireHits(hits))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// wireHits copies hits with the embedding vectors dropped. The model only
// needs the text payloads; raw vectors bloat the tool result.
func wireHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h
		switch {
		case h.Semantic != nil:
			e := *h.Semantic
			e.Embedding = nil
			out[i].Semantic = &e
		case h.Episodic != nil:
			e := *h.Episodic
			e.Embedding = nil
			out[i].Episodic = &e
		case h.LongTerm != nil:
			e := *h.LongTerm
			e.QuestionEmbedding = nil
			e.TextEmbedding = nil
			out[i].LongTerm = &e
		}
	}
	return out
}

func (w *WorkingMemory) handleAdd(ctx context.Context, args json.RawMessage) (string, error) {
	var a addArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("add_memory: %w", err)
	}

	var (
		id  string
		err error
	)
	switch a.Kind {
	case KindSemantic:
		id, err = w.semantic.Add(ctx, a.Question, a.Answer, 0)
	case KindEpisodic:
		chatID := a.ChatID
		if chatID == "" {
			chatID = w.cfg.SessionID
		}
		id, err = w.episodic.Add(ctx, a.Answer, chatID, 0)
	case KindLongTerm:
		id, err = w.longTerm.Add(ctx, AddParams{
			Type:      LongTermSemantic,
			Question:  a.Question,
			Text:      a.Answer,
			UserID:    w.cfg.UserID,
			SessionID: w.cfg.SessionID,
		})
	default:
		return "", fmt.Errorf("add_memory: unknown kind %q", a.Kind)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stored %s memory %s", a.Kind, id), nil
}

func (w *WorkingMemory) handleUpdate(ctx context.Context, args json.RawMessage) (string, error) {
	var a updateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("update_memory: %w", err)
	}

	var (
		id  string
		err error
	)
	switch a.Kind {
	case KindSemantic:
		id, err = w.semantic.Update(ctx, a.ID, a.Question, a.Answer, 0)
	case KindEpisodic:
		id, err = w.episodic.Update(ctx, a.ID, a.Answer, 0)
	case KindLongTerm:
		id, err = w.longTerm.Update(ctx, a.ID, a.Question, a.Answer, 0)
	default:
		return "", fmt.Errorf("update_memory: unknown kind %q", a.Kind)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("updated %s memory %s", a.Kind, id), nil
}
