package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemo-ai/mnemo/llm"
)

// extractionPrompt instructs the model to mine a transcript for durable
// facts and events worth keeping beyond the session.
const extractionPrompt = `You review chat transcripts and extract memories worth keeping long term.

Call store_memory once per distinct memory you find:
  - "semantic" for durable facts (preferences, biography, relationships).
  - "episodic" for events tied to a point in time; include event_date when stated.
Set requires_user_id to true when the memory only makes sense for this
specific user, false for general knowledge. Write the question as the
natural question the memory answers. Skip small talk and anything already
implied by another memory you stored. If nothing is worth keeping, call no
tools and reply "no memories".`

// ExtractMessage is one transcript message handed to Extract.
type ExtractMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// extractedMemory is the store_memory tool payload the model fills in.
type extractedMemory struct {
	Type           string   `json:"type"`
	Question       string   `json:"question"`
	Text           string   `json:"text"`
	RequiresUserID bool     `json:"requires_user_id"`
	Topics         []string `json:"topics,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	EventDate      string   `json:"event_date,omitempty"`
}

func extractionToolDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        "store_memory",
		Description: "Store one extracted memory. Call once per distinct memory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{
					"type":        "string",
					"enum":        []string{string(LongTermSemantic), string(LongTermEpisodic)},
					"description": "semantic for facts, episodic for dated events",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "The natural question this memory answers",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "The memory itself, as a standalone statement",
				},
				"requires_user_id": map[string]any{
					"type":        "boolean",
					"description": "True when the memory is specific to this user",
				},
				"topics": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"entities": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"event_date": map[string]any{
					"type":        "string",
					"description": "ISO date (YYYY-MM-DD) for episodic memories",
				},
			},
			"required": []string{"type", "question", "text", "requires_user_id"},
		},
	}
}

// Extract mines a transcript for memories worth keeping and bulk-writes
// them, deduplicated by content hash both within the batch and against
// entries already stored. It returns the ids of the written entries.
func (s *LongTermStore) Extract(ctx context.Context, messages []ExtractMessage, userID, sessionID string) ([]string, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("long-term extract: no llm client configured")
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	transcript := formatTranscript(messages)
	resp, err := s.llm.Complete(ctx, llm.NewCompletionRequest(
		[]llm.Message{llm.NewUserMessage(transcript)},
		llm.WithSystem(extractionPrompt),
		llm.WithTools(extractionToolDef()),
	))
	if err != nil {
		return nil, fmt.Errorf("long-term extract: %w", err)
	}

	var proposals []extractedMemory
	for _, call := range resp.ToolCalls {
		if call.Name != "store_memory" {
			continue
		}
		var m extractedMemory
		if err := call.ParseArguments(&m); err != nil {
			s.cfg.Logger.Warn("extraction tool call rejected", "error", err)
			continue
		}
		proposals = append(proposals, m)
	}
	if len(proposals) == 0 {
		s.cfg.Logger.Debug("extraction found no memories", "session_id", sessionID)
		return nil, nil
	}

	return s.writeExtracted(ctx, proposals, userID, sessionID)
}

func (s *LongTermStore) writeExtracted(ctx context.Context, proposals []extractedMemory, userID, sessionID string) ([]string, error) {
	seen := make(map[string]bool, len(proposals))
	docs := make(map[string]any)
	var ids []string
	for _, m := range proposals {
		memoryType := LongTermType(m.Type)
		if !memoryType.IsValid() {
			s.cfg.Logger.Warn("extraction proposed invalid type", "type", m.Type)
			continue
		}

		p := AddParams{
			Type:     memoryType,
			Question: m.Question,
			Text:     m.Text,
			Topics:   m.Topics,
			Entities: m.Entities,
		}
		if m.RequiresUserID {
			p.UserID = userID
			p.SessionID = sessionID
		}
		if d, ok := parseEventDate(m.EventDate); ok {
			p.EventDate = &d
		}

		hash := EntryHash(p.Type, p.UserID, p.SessionID, p.Text)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		// Already stored from an earlier session: refresh in place instead of
		// inserting a duplicate under a new id.
		if id, ok, err := s.idForHash(ctx, hash); err != nil {
			return nil, err
		} else if ok {
			if _, err := s.update(ctx, id, p.Question, p.Text, 0); err != nil {
				return nil, err
			}
			ids = append(ids, id)
			continue
		}

		entry, err := s.buildEntry(ctx, s.cfg.NewID(), hash, p)
		if err != nil {
			return nil, err
		}
		docs[s.cfg.Prefix+entry.ID] = entry
		docs[s.hashPrefix()+hash] = hashPointer{ID: entry.ID}
		ids = append(ids, entry.ID)
	}

	if len(docs) > 0 {
		if err := s.client.MSetJSON(ctx, docs); err != nil {
			return nil, err
		}
	}
	s.cfg.Logger.Info("extraction stored memories", "count", len(ids), "session_id", sessionID)
	return ids, nil
}

func formatTranscript(messages []ExtractMessage) string {
	out := "Transcript:\n"
	for _, m := range messages {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}

func parseEventDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
