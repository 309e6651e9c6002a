package db

import (
	"fmt"
)

// InsertMessage appends a message to a conversation and returns its
// row id. Messages are never updated or reordered afterwards.
func (db *DB) InsertMessage(msg *Message) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO messages (conversation_id, role, content, model, timestamp) VALUES (?, ?, ?, ?, ?)",
		msg.ConversationID, msg.Role, msg.Content, msg.Model, msg.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message ID: %w", err)
	}

	// Update conversation's updated_at timestamp
	if err := db.TouchConversation(msg.ConversationID); err != nil {
		return 0, err
	}

	return id, nil
}

// ListMessages retrieves all messages in a conversation in append order
func (db *DB) ListMessages(conversationID string) ([]*Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, conversation_id, role, content, model, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Model, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// LastMessageTimestamp returns the highest timestamp in a conversation,
// or 0 when it has no messages.
func (db *DB) LastMessageTimestamp(conversationID string) (int64, error) {
	var ts int64
	err := db.conn.QueryRow(
		"SELECT COALESCE(MAX(timestamp), 0) FROM messages WHERE conversation_id = ?",
		conversationID,
	).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("failed to get last timestamp: %w", err)
	}
	return ts, nil
}
