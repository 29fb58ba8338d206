package memory

import (
	"errors"
	"time"
)

// Errors returned by memory stores.
var (
	// ErrNotFound is returned when an update targets an entry that does not
	// exist. Episodic updates fall back to an insert instead.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrEmbedding is returned when the embedding provider fails.
	ErrEmbedding = errors.New("memory: embedding failed")
)

// Kind identifies the origin tier of a memory hit.
type Kind string

const (
	// KindSemantic is the global question/answer tier.
	KindSemantic Kind = "semantic"

	// KindEpisodic is the per-chat summary tier.
	KindEpisodic Kind = "episodic"

	// KindLongTerm is the rich per-user tier.
	KindLongTerm Kind = "long-term"
)

// IsValid checks if the kind is one of the defined constants.
func (k Kind) IsValid() bool {
	switch k {
	case KindSemantic, KindEpisodic, KindLongTerm:
		return true
	default:
		return false
	}
}

// SemanticEntry is a global question/answer fact.
type SemanticEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// EpisodicEntry is one summary per chat session.
type EpisodicEntry struct {
	ChatID    string    `json:"chat_id"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// LongTermType is the subtype of a long-term entry.
type LongTermType string

const (
	// LongTermSemantic marks a fact ("the user's favorite color is green").
	LongTermSemantic LongTermType = "semantic"

	// LongTermEpisodic marks an event tied to a point in time.
	LongTermEpisodic LongTermType = "episodic"
)

// IsValid checks if the type is one of the defined constants.
func (t LongTermType) IsValid() bool {
	return t == LongTermSemantic || t == LongTermEpisodic
}

// Scope values for long-term entries. User-scoped entries are private to
// their user; global entries apply to anyone.
const (
	ScopeUser   = "user"
	ScopeGlobal = "global"
)

// LongTermEntry is a rich memory entry, optionally scoped to a user and
// session. UserID and SessionID are populated only when the memory is
// user-specific; absence means the entry applies to anyone.
type LongTermEntry struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	Scope      string       `json:"scope"`
	MemoryType LongTermType `json:"memory_type"`
	Topics     []string     `json:"topics,omitempty"`
	Entities   []string     `json:"entities,omitempty"`

	// MemoryHash is the stable hash of {memory_type, user_id, session_id,
	// text}. Two entries with the same hash represent the same fact and
	// collapse to one document.
	MemoryHash string `json:"memory_hash"`

	// AccessCount is bumped every time the entry is returned from a search.
	AccessCount int       `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// EventDate is set for episodic entries tied to a date.
	EventDate *time.Time `json:"event_date,omitempty"`

	Question          string    `json:"question"`
	Text              string    `json:"text"`
	QuestionEmbedding []float32 `json:"question_embedding,omitempty"`
	TextEmbedding     []float32 `json:"text_embedding,omitempty"`
}

// Hit is one search result tagged with its origin tier. Exactly one of
// Semantic, Episodic, or LongTerm is set, matching Kind.
type Hit struct {
	Kind     Kind    `json:"kind"`
	Distance float64 `json:"distance"`

	Semantic *SemanticEntry `json:"semantic,omitempty"`
	Episodic *EpisodicEntry `json:"episodic,omitempty"`
	LongTerm *LongTermEntry `json:"long_term,omitempty"`
}

// ID returns the identifier of the underlying entry.
func (h Hit) ID() string {
	switch h.Kind {
	case KindSemantic:
		return h.Semantic.ID
	case KindEpisodic:
		return h.Episodic.ChatID
	case KindLongTerm:
		return h.LongTerm.ID
	default:
		return ""
	}
}

// Answer returns the renderable payload of the hit: the stored answer for
// semantic entries, the summary for episodic entries, and the text for
// long-term entries.
func (h Hit) Answer() string {
	switch h.Kind {
	case KindSemantic:
		return h.Semantic.Answer
	case KindEpisodic:
		return h.Episodic.Summary
	case KindLongTerm:
		return h.LongTerm.Text
	default:
		return ""
	}
}

// Question returns the query-side text of the hit.
func (h Hit) Question() string {
	switch h.Kind {
	case KindSemantic:
		return h.Semantic.Question
	case KindLongTerm:
		return h.LongTerm.Question
	default:
		return ""
	}
}
