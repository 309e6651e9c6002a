package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"secure-llm-assistant/errs"
)

// InsertDocument stores an ingested document and indexes its content
// for knowledge search. Content must already be redacted.
func (db *DB) InsertDocument(doc *Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = db.conn.Exec(
		"INSERT INTO documents (id, filename, content, pii_removed, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Filename, doc.Content, doc.PIIRemoved, string(metadata), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	if db.fts {
		_, err = db.conn.Exec(
			"INSERT INTO documents_fts (content, filename, document_id) VALUES (?, ?, ?)",
			doc.Content, doc.Filename, doc.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to index document: %w", err)
		}
	}

	return nil
}

// GetDocument retrieves a document by ID
func (db *DB) GetDocument(id string) (*Document, error) {
	var doc Document
	var metadata string
	err := db.conn.QueryRow(
		"SELECT id, filename, content, pii_removed, metadata, created_at FROM documents WHERE id = ?",
		id,
	).Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.PIIRemoved, &metadata, &doc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, errs.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &doc, nil
}

// ListDocuments retrieves all documents, newest first
func (db *DB) ListDocuments() ([]*Document, error) {
	rows, err := db.conn.Query(
		"SELECT id, filename, content, pii_removed, metadata, created_at FROM documents ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		var doc Document
		var metadata string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.PIIRemoved, &metadata, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}
