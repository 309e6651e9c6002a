package db

import (
	"database/sql"
	"fmt"
	"time"

	"secure-llm-assistant/errs"
)

// InsertConversation stores a new conversation. The id is assigned by
// the caller (the chat store generates ULIDs).
func (db *DB) InsertConversation(conv *Conversation) error {
	_, err := db.conn.Exec(
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		conv.ID, conv.Title, conv.CreatedAt, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var conv Conversation
	err := db.conn.QueryRow(
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, errs.NotFound("conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// ConversationExists reports whether the id resolves to a stored
// conversation.
func (db *DB) ConversationExists(id string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM conversations WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return n > 0, nil
}

// ListConversations retrieves all conversations ordered by update time
func (db *DB) ListConversations() ([]*Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}

	return conversations, rows.Err()
}

// UpdateConversationTitle updates a conversation's title
func (db *DB) UpdateConversationTitle(id, title string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// DeleteConversation deletes a conversation and all its messages
func (db *DB) DeleteConversation(id string) error {
	result, err := db.conn.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("conversation", id)
	}
	return nil
}

// TouchConversation updates the conversation's updated_at timestamp
func (db *DB) TouchConversation(id string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
