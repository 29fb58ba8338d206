package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/memory"
)

const (
	// DefaultSummarizeEvery is how many unsummarized messages accumulate
	// before the controller rolls them into the session summary.
	DefaultSummarizeEvery = 6

	// DefaultMaxToolTurns bounds the model's tool-call loop per message.
	DefaultMaxToolTurns = 5

	// DefaultHistoryLimit is how many transcript messages are replayed to
	// the model.
	DefaultHistoryLimit = 20
)

// errorReply is what the user sees when the model or embedder fails.
// The failure itself goes to the log, not the chat.
const errorReply = "I could not produce a response right now. Please try again."

const defaultSystemPrompt = `You are a helpful assistant with persistent memory.
Use search_memory before answering questions about the user or past
conversations. Use add_memory when the user tells you something worth
remembering, and update_memory to correct a stored memory. Answer
concisely.`

const summaryPrompt = `Summarize the conversation below in at most three
sentences, written in the third person, keeping every concrete fact.
Reply with the summary only.`

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// UserID scopes transcripts and memory. Required.
	UserID string

	// ChatID selects the initial chat session. Defaults to a fresh id.
	ChatID string

	// SummarizeEvery, MaxToolTurns, and HistoryLimit default to the
	// package constants.
	SummarizeEvery int
	MaxToolTurns   int
	HistoryLimit   int

	// SystemPrompt overrides the built-in assistant prompt.
	SystemPrompt string

	// SemanticTTL expires cached answers. Zero keeps them forever.
	SemanticTTL time.Duration

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *ControllerConfig) withDefaults() ControllerConfig {
	cfg := *c
	if cfg.ChatID == "" {
		cfg.ChatID = NewChatID()
	}
	if cfg.SummarizeEvery <= 0 {
		cfg.SummarizeEvery = DefaultSummarizeEvery
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Reply is the controller's answer to one user message.
type Reply struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`

	// Source names where the answer came from: a memory tier for cache
	// hits, "llm" for generated answers, "error" for failures.
	Source string `json:"source"`

	// CacheHit is true when memory answered without a model round-trip.
	CacheHit bool `json:"cache_hit"`

	// Distance is the memory distance for cache hits.
	Distance float64 `json:"distance,omitempty"`
}

// Controller drives one user's conversation: it consults working memory
// before the model, runs the model's memory tools, keeps the transcript,
// rolls summaries into episodic memory, and mines long-term memories after
// each exchange.
type Controller struct {
	llm         llm.Client
	transcripts *TranscriptStore
	semantic    *memory.SemanticStore
	episodic    *memory.EpisodicStore
	longTerm    *memory.LongTermStore
	cfg         ControllerConfig

	mu      sync.Mutex
	chatID  string
	working *memory.WorkingMemory
}

// NewController assembles a controller for cfg.UserID.
func NewController(llmClient llm.Client, transcripts *TranscriptStore, semantic *memory.SemanticStore, episodic *memory.EpisodicStore, longTerm *memory.LongTermStore, cfg ControllerConfig) *Controller {
	c := &Controller{
		llm:         llmClient,
		transcripts: transcripts,
		semantic:    semantic,
		episodic:    episodic,
		longTerm:    longTerm,
		cfg:         cfg.withDefaults(),
	}
	c.chatID = c.cfg.ChatID
	c.working = c.newWorking(c.chatID)
	return c
}

func (c *Controller) newWorking(chatID string) *memory.WorkingMemory {
	return memory.NewWorkingMemory(c.semantic, c.episodic, c.longTerm, memory.WorkingConfig{
		UserID:    c.cfg.UserID,
		SessionID: chatID,
		Tracer:    c.cfg.Tracer,
		Logger:    c.cfg.Logger,
	})
}

// CurrentChat returns the active chat id.
func (c *Controller) CurrentChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// NewChat switches to a fresh chat session and returns its id.
func (c *Controller) NewChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = NewChatID()
	c.working = c.newWorking(c.chatID)
	return c.chatID
}

// SwitchChat makes chatID the active session.
func (c *Controller) SwitchChat(chatID string) error {
	if chatID == "" {
		return fmt.Errorf("switch chat: chat id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = chatID
	c.working = c.newWorking(chatID)
	return nil
}

// ListChats lists the user's chats.
func (c *Controller) ListChats(ctx context.Context) ([]ChatInfo, error) {
	return c.transcripts.AllChats(ctx)
}

// ClearChat empties the active chat's transcript, keeping its summary.
func (c *Controller) ClearChat(ctx context.Context) error {
	return c.transcripts.Clear(ctx, c.CurrentChat())
}

// ClearAllMemory wipes every memory tier and recreates their indexes.
// Transcripts are left alone.
func (c *Controller) ClearAllMemory(ctx context.Context) error {
	c.mu.Lock()
	wm := c.working
	c.mu.Unlock()
	return wm.Clear(ctx)
}

// ProcessMessage handles one user message end to end: persist it, try the
// memory tiers, fall back to the model with memory tools, persist the
// reply, then run summarization and extraction. Model and embedding
// failures become an apologetic reply rather than an error; only a broken
// store fails the call.
func (c *Controller) ProcessMessage(ctx context.Context, text string) (*Reply, error) {
	ctx, span := c.cfg.Tracer.Start(ctx, "chat.process_message")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("process message: empty message")
	}

	c.mu.Lock()
	chatID := c.chatID
	wm := c.working
	c.mu.Unlock()
	span.SetAttributes(attribute.String("chat.id", chatID))

	if _, err := c.transcripts.Append(ctx, chatID, "user", text); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	reply := c.answer(ctx, chatID, wm, text)
	span.SetAttributes(
		attribute.String("chat.source", reply.Source),
		attribute.Bool("chat.cache_hit", reply.CacheHit),
	)

	if _, err := c.transcripts.Append(ctx, chatID, "assistant", reply.Text); err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}

	c.maybeSummarize(ctx, chatID)
	c.maybeExtract(ctx, chatID)
	return reply, nil
}

func (c *Controller) answer(ctx context.Context, chatID string, wm *memory.WorkingMemory, text string) *Reply {
	// Memory first. A lookup failure downgrades to a cache miss; the
	// model can still answer.
	hits, err := wm.Search(ctx, text, 1)
	if err != nil {
		c.cfg.Logger.Warn("memory lookup failed", "chat_id", chatID, "error", err)
	}
	if len(hits) > 0 {
		hit := hits[0]
		c.cfg.Logger.Debug("cache hit", "chat_id", chatID, "kind", hit.Kind, "distance", hit.Distance)
		return &Reply{
			ChatID:   chatID,
			Text:     hit.Answer(),
			Source:   string(hit.Kind),
			CacheHit: true,
			Distance: hit.Distance,
		}
	}

	answer, err := c.complete(ctx, chatID, wm)
	if err != nil {
		c.cfg.Logger.Error("completion failed", "chat_id", chatID, "error", err)
		return &Reply{ChatID: chatID, Text: errorReply, Source: "error"}
	}

	// Remember the exchange so the next identical question skips the model.
	if _, err := c.semantic.Add(ctx, text, answer, c.cfg.SemanticTTL); err != nil {
		c.cfg.Logger.Warn("caching answer failed", "chat_id", chatID, "error", err)
	}
	return &Reply{ChatID: chatID, Text: answer, Source: "llm"}
}

// complete runs the model with the memory tools attached, executing tool
// calls until the model produces text or the turn budget runs out.
func (c *Controller) complete(ctx context.Context, chatID string, wm *memory.WorkingMemory) (string, error) {
	transcript, err := c.transcripts.Get(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}

	msgs := c.historyMessages(transcript)
	system := c.cfg.SystemPrompt
	if transcript.Summary != "" {
		system += "\n\nConversation so far: " + transcript.Summary
	}

	cmds := wm.Commands()
	for turn := 0; turn < c.cfg.MaxToolTurns; turn++ {
		resp, err := c.llm.Complete(ctx, llm.NewCompletionRequest(msgs,
			llm.WithSystem(system),
			llm.WithTools(memory.Defs(cmds)...),
		))
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			return resp.Content, nil
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, memory.Execute(ctx, cmds, call))
		}
		msgs = append(msgs, llm.NewToolMessage(results...))
	}
	return "", fmt.Errorf("tool loop exceeded %d turns", c.cfg.MaxToolTurns)
}

func (c *Controller) historyMessages(transcript *Transcript) []llm.Message {
	msgs := transcript.Messages
	if len(msgs) > c.cfg.HistoryLimit {
		msgs = msgs[len(msgs)-c.cfg.HistoryLimit:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, llm.NewUserMessage(m.Content))
		case "assistant":
			out = append(out, llm.NewAssistantMessage(m.Content))
		}
	}
	return out
}

// maybeSummarize rolls the transcript into the session summary once enough
// unsummarized messages accumulate, and mirrors the summary into episodic
// memory. Failures are logged; summarization never breaks the chat.
func (c *Controller) maybeSummarize(ctx context.Context, chatID string) {
	transcript, err := c.transcripts.Get(ctx, chatID)
	if err != nil {
		c.cfg.Logger.Warn("summarize: load transcript failed", "chat_id", chatID, "error", err)
		return
	}
	unsummarized := len(transcript.Messages) - transcript.SummarizedLen
	if unsummarized < c.cfg.SummarizeEvery {
		return
	}

	var sb strings.Builder
	if transcript.Summary != "" {
		sb.WriteString("Previous summary: ")
		sb.WriteString(transcript.Summary)
		sb.WriteString("\n\n")
	}
	for _, m := range transcript.Messages[transcript.SummarizedLen:] {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}

	resp, err := c.llm.Complete(ctx, llm.NewCompletionRequest(
		[]llm.Message{llm.NewUserMessage(sb.String())},
		llm.WithSystem(summaryPrompt),
	))
	if err != nil || resp.Content == "" {
		c.cfg.Logger.Warn("summarize failed", "chat_id", chatID, "error", err)
		return
	}

	if _, err := c.episodic.Update(ctx, chatID, resp.Content, 0); err != nil {
		c.cfg.Logger.Warn("summarize: episodic write failed", "chat_id", chatID, "error", err)
		return
	}
	if err := c.transcripts.UpdateSummary(ctx, chatID, resp.Content, int64(len(transcript.Messages))); err != nil {
		c.cfg.Logger.Warn("summarize: transcript update failed", "chat_id", chatID, "error", err)
		return
	}
	c.cfg.Logger.Debug("session summarized", "chat_id", chatID, "covered", len(transcript.Messages))
}

// maybeExtract mines messages not yet reviewed for long-term memories and
// marks them reviewed either way. Failures are logged, not returned.
func (c *Controller) maybeExtract(ctx context.Context, chatID string) {
	pending, err := c.transcripts.Unextracted(ctx, chatID)
	if err != nil {
		c.cfg.Logger.Warn("extract: load messages failed", "chat_id", chatID, "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	batch := make([]memory.ExtractMessage, len(pending))
	ids := make([]string, len(pending))
	for i, m := range pending {
		batch[i] = memory.ExtractMessage{ID: m.ID, Role: m.Role, Content: m.Content}
		ids[i] = m.ID
	}

	stored, err := c.longTerm.Extract(ctx, batch, c.cfg.UserID, chatID)
	if err != nil {
		c.cfg.Logger.Warn("extraction failed", "chat_id", chatID, "error", err)
		return
	}
	if err := c.transcripts.MarkExtracted(ctx, chatID, ids); err != nil {
		c.cfg.Logger.Warn("extract: marking messages failed", "chat_id", chatID, "error", err)
		return
	}
	if len(stored) > 0 {
		c.cfg.Logger.Debug("long-term memories extracted", "chat_id", chatID, "count", len(stored))
	}
}
