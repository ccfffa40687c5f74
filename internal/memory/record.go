package memory

import "time"

// Table names a record partition. Tables separate conversation turns from
// the various knowledge shapes, but all share one record schema.
type Table string

const (
	// TableConversation holds dialogue turns, user and agent alike.
	TableConversation Table = "conversation"
	// TableKnowledge holds ingested document fragments.
	TableKnowledge Table = "knowledge"
	// TableLore holds persona backstory lines.
	TableLore Table = "lore"
	// TableProfile holds accumulated facts about users.
	TableProfile Table = "profile"
)

// Tables returns every known table, in a stable order.
func Tables() []Table {
	return []Table{TableConversation, TableKnowledge, TableLore, TableProfile}
}

// Content is the structured payload of a record. Text is the canonical
// body; everything else is optional.
type Content struct {
	Text        string            `json:"text"`
	Attachments []string          `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Record is one memory entry. Records are immutable after creation.
type Record struct {
	ID      string  `json:"id"`
	Table   Table   `json:"table"`
	AgentID string  `json:"agent_id"`
	UserID  string  `json:"user_id,omitempty"`
	RoomID  string  `json:"room_id"`
	Content Content `json:"content"`
	// Embedding is the content vector. A zero vector marks a degraded
	// embedding: stored, but excluded from similarity search.
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	// Unique records were inserted with deduplication enabled.
	Unique bool `json:"unique,omitempty"`
	// Shared records surface in similarity search from any room. Lists,
	// counts and uniqueness checks stay scoped to the origin room.
	Shared bool `json:"shared,omitempty"`
}

// Match pairs a record with its similarity to a search query.
type Match struct {
	Record     *Record
	Similarity float64
}

// DuplicateError reports a unique insert that collided with an existing
// record in the same room.
type DuplicateError struct {
	RoomID     string
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return "duplicate record in room " + e.RoomID + " (existing " + e.ExistingID + ")"
}
