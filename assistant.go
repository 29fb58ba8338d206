package mnemo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mnemo-ai/mnemo/chat"
	"github.com/mnemo-ai/mnemo/config"
	"github.com/mnemo-ai/mnemo/embedding"
	"github.com/mnemo-ai/mnemo/embedding/openai"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/llm/anthropic"
	"github.com/mnemo-ai/mnemo/memory"
	"github.com/mnemo-ai/mnemo/store"
)

// Assistant is the top-level facade: per-user chat controllers over shared
// memory tiers. The semantic and long-term stores are shared across users;
// episodic memory and transcripts are scoped per user.
type Assistant struct {
	client   store.Client
	embedder embedding.Embedder
	llm      llm.Client
	semantic *memory.SemanticStore
	cfg      config.Config
	logger   *slog.Logger
	tracer   trace.Tracer

	mu          sync.Mutex
	controllers map[string]*chat.Controller
	cache       *embedding.Cache
}

// New assembles an assistant from the given options. The store, embedder,
// and LLM either come in via options or are built from the config's
// provider sections; a dependency that is neither supplied nor configurable
// fails with ErrInvalidConfig.
func New(ctx context.Context, opts ...Option) (*Assistant, error) {
	o := options{cfg: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("")
	}

	a := &Assistant{
		cfg:         o.cfg,
		logger:      o.logger,
		tracer:      o.tracer,
		controllers: make(map[string]*chat.Controller),
	}

	switch {
	case o.client != nil:
		a.client = o.client
	case o.pool != nil:
		a.client = store.NewRedisClient(o.pool.Client())
	default:
		return nil, NewValidationError("mnemo.New", fmt.Errorf("%w: no store configured", ErrInvalidConfig))
	}

	embedder, cache, err := buildEmbedder(o)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder
	a.cache = cache

	if o.llm != nil {
		a.llm = o.llm
	} else {
		client, err := anthropic.New(anthropic.Config{
			APIKey:    o.cfg.Anthropic.APIKey,
			Model:     o.cfg.Anthropic.Model,
			MaxTokens: o.cfg.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, NewValidationError("mnemo.New", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
		a.llm = client
	}

	a.semantic = memory.NewSemanticStore(a.client, a.embedder, memory.SemanticConfig{
		Threshold: o.cfg.Memory.SemanticThreshold,
		Logger:    a.logger,
	})
	return a, nil
}

func buildEmbedder(o options) (embedding.Embedder, *embedding.Cache, error) {
	inner := o.embedder
	if inner == nil {
		provider, err := openai.New(openai.Config{
			APIKey: o.cfg.OpenAI.APIKey,
			Model:  o.cfg.OpenAI.Model,
		})
		if err != nil {
			return nil, nil, NewValidationError("mnemo.New", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
		inner = provider
	}

	if o.cfg.Memory.CacheSize <= 0 {
		return inner, nil, nil
	}
	cache, err := embedding.NewCache(inner, o.cfg.Memory.CacheSize)
	if err != nil {
		return nil, nil, NewValidationError("mnemo.New", err)
	}
	return cache, cache, nil
}

// controller returns the chat controller for a user, creating it on first
// use.
func (a *Assistant) controller(userID string) *chat.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.controllers[userID]; ok {
		return c
	}

	episodic := memory.NewEpisodicStore(a.client, a.embedder, memory.EpisodicConfig{
		UserID:    userID,
		Threshold: a.cfg.Memory.EpisodicThreshold,
		Logger:    a.logger,
	})
	longTerm := memory.NewLongTermStore(a.client, a.embedder, a.llm, memory.LongTermConfig{
		Threshold: a.cfg.Memory.LongTermThreshold,
		Logger:    a.logger,
	})
	transcripts := chat.NewTranscriptStore(a.client, chat.TranscriptConfig{
		UserID: userID,
		Logger: a.logger,
	})

	c := chat.NewController(a.llm, transcripts, a.semantic, episodic, longTerm, chat.ControllerConfig{
		UserID:         userID,
		SummarizeEvery: a.cfg.Chat.SummarizeEvery,
		MaxToolTurns:   a.cfg.Chat.MaxToolTurns,
		HistoryLimit:   a.cfg.Chat.HistoryLimit,
		SemanticTTL:    a.cfg.Memory.SemanticTTL,
		Tracer:         a.tracer,
		Logger:         a.logger,
	})
	a.controllers[userID] = c
	return c
}

// ProcessMessage answers one user message. An empty chatID continues the
// user's current chat.
func (a *Assistant) ProcessMessage(ctx context.Context, userID, chatID, text string) (*chat.Reply, error) {
	if userID == "" {
		return nil, NewValidationError("Assistant.ProcessMessage", fmt.Errorf("user id is required"))
	}
	c := a.controller(userID)
	if chatID != "" && chatID != c.CurrentChat() {
		if err := c.SwitchChat(chatID); err != nil {
			return nil, err
		}
	}
	return c.ProcessMessage(ctx, text)
}

// NewChat starts a fresh chat for a user and returns its id.
func (a *Assistant) NewChat(userID string) string {
	return a.controller(userID).NewChat()
}

// CurrentChat returns a user's active chat id.
func (a *Assistant) CurrentChat(userID string) string {
	return a.controller(userID).CurrentChat()
}

// ListChats lists a user's chats with previews.
func (a *Assistant) ListChats(ctx context.Context, userID string) ([]chat.ChatInfo, error) {
	return a.controller(userID).ListChats(ctx)
}

// ClearChat empties a user's active chat transcript.
func (a *Assistant) ClearChat(ctx context.Context, userID string) error {
	return a.controller(userID).ClearChat(ctx)
}

// ClearAllMemory wipes every memory tier for a user's scope, including the
// shared semantic store.
func (a *Assistant) ClearAllMemory(ctx context.Context, userID string) error {
	return a.controller(userID).ClearAllMemory(ctx)
}

// Close releases resources held by the assistant.
func (a *Assistant) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}
