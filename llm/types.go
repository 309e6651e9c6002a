package llm

import (
	"context"
	"strings"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user" or "assistant" or "system"
	Content string `json:"content"`
}

// Backend is the opaque inference collaborator. Callers must redact
// message and document content before it passes through this boundary.
type Backend interface {
	// Chat sends messages to the named model and returns the reply
	Chat(ctx context.Context, messages []Message, model string) (string, error)

	// ProcessDocument asks the backend to extract text from a file
	ProcessDocument(ctx context.Context, filePath, fileType string) (string, error)

	// ListModels returns the model names known to the backend
	ListModels(ctx context.Context) ([]string, error)

	// PullModel downloads a model; completion is signaled by the
	// registry's state transition, not by this call alone
	PullModel(ctx context.Context, name string) error

	// Name returns the backend name
	Name() string
}

// Config represents backend configuration
type Config struct {
	BackendName string
	APIKey      string
	BaseURL     string
	Timeout     int // seconds
	MaxTokens   int
	Temperature float64
}

// cleanTitle cleans up a generated title by removing quotes and extra whitespace
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)

	if len(title) > 100 {
		title = title[:100] + "..."
	}

	if title == "" {
		title = "New Chat"
	}

	return title
}

// DefaultTitle derives a conversation title from its first user
// message, already redacted by the pipeline.
func DefaultTitle(firstMessage string) string {
	title := firstMessage
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 48 {
		title = title[:48] + "..."
	}
	return cleanTitle(title)
}
