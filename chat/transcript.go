package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-ai/mnemo/store"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Extracted marks messages already mined for long-term memories.
	Extracted bool `json:"extracted,omitempty"`
}

// Transcript is the stored document: one per (user, chat).
type Transcript struct {
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`

	// Summary is the rolling session summary; it survives a Clear.
	Summary          string    `json:"summary,omitempty"`
	LastSummarizedAt time.Time `json:"last_summarized_at,omitempty"`

	// SummarizedLen is how many messages the current summary covers.
	SummarizedLen int `json:"summarized_len"`

	Messages []Message `json:"messages"`
}

// ChatInfo is one row of a chat listing: the id, the message count, and a
// preview of the latest message, fetched without loading the transcript.
type ChatInfo struct {
	ChatID   string `json:"chat_id"`
	Messages int64  `json:"messages"`
	Preview  string `json:"preview,omitempty"`
}

// TranscriptConfig configures a TranscriptStore.
type TranscriptConfig struct {
	// UserID scopes the store. Required.
	UserID string

	// Prefix is the key namespace ahead of the user id. Defaults to "chat:".
	Prefix string

	// PreviewLen truncates listing previews. Defaults to 60 runes.
	PreviewLen int

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *TranscriptConfig) withDefaults() TranscriptConfig {
	cfg := *c
	if cfg.Prefix == "" {
		cfg.Prefix = "chat:"
	}
	if cfg.PreviewLen <= 0 {
		cfg.PreviewLen = 60
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// TranscriptStore reads and writes one user's chat transcripts. Appends are
// atomic JSON array pushes; length and latest-message reads never load the
// whole document.
type TranscriptStore struct {
	client store.Client
	cfg    TranscriptConfig
}

// NewTranscriptStore creates a transcript store scoped to cfg.UserID.
func NewTranscriptStore(client store.Client, cfg TranscriptConfig) *TranscriptStore {
	return &TranscriptStore{client: client, cfg: cfg.withDefaults()}
}

// NewChatID generates a chat id.
func NewChatID() string {
	return uuid.NewString()
}

func (s *TranscriptStore) key(chatID string) string {
	return s.cfg.Prefix + s.cfg.UserID + ":" + chatID
}

// ensure lazily creates the transcript document for a chat. SetJSONNX keeps
// concurrent first-appends from clobbering each other.
func (s *TranscriptStore) ensure(ctx context.Context, chatID string) error {
	doc := Transcript{
		UserID:    s.cfg.UserID,
		ChatID:    chatID,
		CreatedAt: s.cfg.Now().UTC(),
		Messages:  []Message{},
	}
	_, err := s.client.SetJSONNX(ctx, s.key(chatID), doc)
	return err
}

// Append pushes a message onto a chat's transcript, creating the transcript
// on first use, and returns the stored message.
func (s *TranscriptStore) Append(ctx context.Context, chatID, role, content string) (Message, error) {
	if chatID == "" {
		return Message{}, fmt.Errorf("transcript append: chat id is required")
	}
	if err := s.ensure(ctx, chatID); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: s.cfg.Now().UTC(),
	}
	if _, err := s.client.AppendJSON(ctx, s.key(chatID), "$.messages", msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Len returns the number of messages in a chat without loading them.
// A chat with no transcript yet has length zero.
func (s *TranscriptStore) Len(ctx context.Context, chatID string) (int64, error) {
	n, err := s.client.ArrLenJSON(ctx, s.key(chatID), "$.messages")
	if errors.Is(err, store.ErrKeyNotFound) {
		return 0, nil
	}
	return n, err
}

// Top returns the most recent message without loading the transcript.
func (s *TranscriptStore) Top(ctx context.Context, chatID string) (Message, error) {
	var msg Message
	err := s.client.GetJSON(ctx, s.key(chatID), "$.messages[-1]", &msg)
	return msg, err
}

// Get loads a whole transcript document.
func (s *TranscriptStore) Get(ctx context.Context, chatID string) (*Transcript, error) {
	var t Transcript
	if err := s.client.GetJSON(ctx, s.key(chatID), "$", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Messages loads a chat's message array.
func (s *TranscriptStore) Messages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	err := s.client.GetJSON(ctx, s.key(chatID), "$.messages", &msgs)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	return msgs, err
}

// Unextracted returns the messages not yet mined for long-term memories.
func (s *TranscriptStore) Unextracted(ctx context.Context, chatID string) ([]Message, error) {
	msgs, err := s.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, m := range msgs {
		if !m.Extracted {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkExtracted flags the given message ids as mined. Unknown ids are
// ignored. Each flag is a per-element merge rather than an array rewrite:
// appends only ever grow the tail, so the indexes of the messages read here
// stay valid and a concurrent append can never be lost.
func (s *TranscriptStore) MarkExtracted(ctx context.Context, chatID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	msgs, err := s.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	for i := range msgs {
		if !wanted[msgs[i].ID] || msgs[i].Extracted {
			continue
		}
		path := fmt.Sprintf("$.messages[%d]", i)
		if err := s.client.MergeJSON(ctx, s.key(chatID), path, map[string]any{"extracted": true}); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSummary replaces the rolling summary and records how much of the
// transcript it covers.
func (s *TranscriptStore) UpdateSummary(ctx context.Context, chatID, summary string, coveredLen int64) error {
	return s.client.MergeJSON(ctx, s.key(chatID), "$", map[string]any{
		"summary":            summary,
		"last_summarized_at": s.cfg.Now().UTC(),
		"summarized_len":     coveredLen,
	})
}

// Clear empties a chat's message array but keeps the summary metadata: a
// cleared chat still remembers what it was about.
func (s *TranscriptStore) Clear(ctx context.Context, chatID string) error {
	err := s.client.MergeJSON(ctx, s.key(chatID), "$", map[string]any{
		"messages":       []Message{},
		"summarized_len": 0,
	})
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Delete removes a chat's transcript entirely.
func (s *TranscriptStore) Delete(ctx context.Context, chatID string) error {
	return s.client.Del(ctx, s.key(chatID))
}

// AllChats lists the user's chats with message counts and a preview of the
// latest message, newest-id-last. Only key scans and tail reads, never a
// full transcript fetch.
func (s *TranscriptStore) AllChats(ctx context.Context) ([]ChatInfo, error) {
	prefix := s.cfg.Prefix + s.cfg.UserID + ":"
	keys, err := s.client.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	infos := make([]ChatInfo, 0, len(keys))
	for _, key := range keys {
		chatID := strings.TrimPrefix(key, prefix)
		info := ChatInfo{ChatID: chatID}
		if n, err := s.Len(ctx, chatID); err == nil {
			info.Messages = n
		}
		if info.Messages > 0 {
			if top, err := s.Top(ctx, chatID); err == nil {
				info.Preview = truncate(top.Content, s.cfg.PreviewLen)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
