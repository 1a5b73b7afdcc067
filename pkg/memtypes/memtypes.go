// Package memtypes defines the entity model shared by every pipeline
// component: Project, Conversation, Message, MemoryUnit, Embedding, and
// cost ledger records (spec §3).
package memtypes

import "time"

// UnitType is the closed set of MemoryUnit kinds.
type UnitType string

const (
	UnitConversation  UnitType = "conversation"
	UnitGlobalMU      UnitType = "global_mu"
	UnitErrorLog      UnitType = "error_log"
	UnitDecision      UnitType = "decision"
	UnitCodeSnippet   UnitType = "code_snippet"
	UnitDocumentation UnitType = "documentation"
	UnitArchive       UnitType = "archive"
)

// MessageType is the closed set of Message roles.
type MessageType string

const (
	MessageHuman     MessageType = "human"
	MessageAssistant MessageType = "assistant"
	MessageSystem    MessageType = "system"
)

// MatchType records which retrieval path produced a SearchResult.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchHybrid   MatchType = "hybrid"
)

// DefaultProjectID is the always-present project (spec §3 invariant).
const DefaultProjectID = "default"

// Project is a scope identifier; the "default" project always exists and
// cannot be deleted.
type Project struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Settings    map[string]any `json:"settings"`
}

// Conversation is one dialogue session.
type Conversation struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	SessionID    string         `json:"session_id"`
	Title        string         `json:"title"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	MessageCount int            `json:"message_count"`
	TokenCount   int            `json:"token_count"`
	Metadata     map[string]any `json:"metadata"`
}

// Message is an ordered element of a Conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SequenceNumber int            `json:"sequence_number"`
	MessageType    MessageType    `json:"message_type"`
	Content        string         `json:"content"`
	TokenCount     int            `json:"token_count"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata"`
}

// MemoryUnit is the compressed, searchable artifact derived from a
// Conversation (or a synthesized global review).
type MemoryUnit struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	UnitType       UnitType       `json:"unit_type"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	Content        string         `json:"content"`
	Keywords       []string       `json:"keywords"`
	TokenCount     int            `json:"token_count"`
	RelevanceScore float64        `json:"relevance_score"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	IsActive       bool           `json:"is_active"`
	Metadata       map[string]any `json:"metadata"`
}

// Expired reports whether the unit is past its expiry at instant now.
func (m *MemoryUnit) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Embedding is the relational record of a MemoryUnit's vector; the vector
// itself is authoritative in VectorStore, this is informational.
type Embedding struct {
	ID           string    `json:"id"`
	MemoryUnitID string    `json:"memory_unit_id"`
	ModelName    string    `json:"model_name"`
	Dimension    int       `json:"dimension"`
	Vector       []float32 `json:"vector"`
}

// CostRecord is one append-only ledger entry.
type CostRecord struct {
	Provider      string         `json:"provider"`
	ModelName     string         `json:"model_name"`
	OperationType string         `json:"operation_type"`
	InputTokens   int64          `json:"input_tokens"`
	OutputTokens  int64          `json:"output_tokens"`
	CostUSD       float64        `json:"cost_usd"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
}

// SearchResult pairs a hydrated MemoryUnit with its retrieval score.
type SearchResult struct {
	Unit            *MemoryUnit `json:"memory_unit"`
	Score           float64     `json:"score"`
	MatchType       MatchType   `json:"match_type"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
}

// VectorPayload is the metadata carried alongside each vector point
// (spec §4.7).
type VectorPayload struct {
	MemoryUnitID    string   `json:"memory_unit_id"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	ProjectID       string   `json:"project_id"`
	UnitType        UnitType `json:"unit_type"`
	Title           string   `json:"title"`
	Keywords        []string `json:"keywords"`
	TokenCount      int      `json:"token_count"`
	CreatedAt       int64    `json:"created_at"`
	ExpiresAt       *int64   `json:"expires_at,omitempty"`
	ImportanceScore float64  `json:"importance_score"`
	QualityScore    float64  `json:"quality_score"`
}
