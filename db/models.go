package db

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single message in a conversation. Content is
// always the redacted form; the original text is never persisted.
// Timestamp is a monotonic integer within its conversation.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"` // "user", "assistant" or "system"
	Content        string `json:"content"`
	Model          string `json:"model"`
	Timestamp      int64  `json:"timestamp"`
}

// Document represents an ingested file after redaction. Re-ingesting
// the same file creates a new Document.
type Document struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename"`
	Content    string                 `json:"content"`
	PIIRemoved bool                   `json:"pii_removed"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Setting represents a configuration setting
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
