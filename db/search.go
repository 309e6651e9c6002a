package db

import (
	"fmt"
	"strings"
)

// SearchResult represents one knowledge base hit. Source is either
// "message" or "document". Content is redacted at ingestion time, so
// hits never expose sensitive values.
type SearchResult struct {
	Source         string
	ConversationID string
	DocumentID     string
	Filename       string
	Snippet        string
}

// SearchKnowledge performs full-text search across ingested documents
// and conversation messages, best matches first. Without FTS5 support
// in the driver it degrades to LIKE scans.
func (db *DB) SearchKnowledge(query string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	if !db.fts {
		return db.searchLike(query, limit)
	}

	query = ftsQuery(query)
	if query == "" {
		return nil, nil
	}

	var results []*SearchResult

	docRows, err := db.conn.Query(`
		SELECT document_id, filename,
		       snippet(documents_fts, 0, '<mark>', '</mark>', '...', 32) as snippet
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		res := &SearchResult{Source: "document"}
		if err := docRows.Scan(&res.DocumentID, &res.Filename, &res.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan document result: %w", err)
		}
		results = append(results, res)
	}
	if err := docRows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := db.conn.Query(`
		SELECT m.conversation_id,
		       snippet(messages_fts, 0, '<mark>', '</mark>', '...', 32) as snippet
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		res := &SearchResult{Source: "message"}
		if err := msgRows.Scan(&res.ConversationID, &res.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan message result: %w", err)
		}
		results = append(results, res)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// ftsQuery quotes each term so punctuation in user input, including
// redaction placeholders, cannot be parsed as FTS5 operators.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// searchLike is the fallback when the driver lacks the FTS5 module.
// Each term must appear in the content; snippets are built in Go.
func (db *DB) searchLike(query string, limit int) ([]*SearchResult, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var results []*SearchResult

	docSQL := "SELECT id, filename, content FROM documents WHERE 1=1"
	docArgs := make([]interface{}, 0, len(terms))
	for _, t := range terms {
		docSQL += ` AND content LIKE ? ESCAPE '\'`
		docArgs = append(docArgs, "%"+escapeLike(t)+"%")
	}
	docSQL += " ORDER BY created_at DESC LIMIT ?"
	docArgs = append(docArgs, limit)

	docRows, err := db.conn.Query(docSQL, docArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		res := &SearchResult{Source: "document"}
		var content string
		if err := docRows.Scan(&res.DocumentID, &res.Filename, &content); err != nil {
			return nil, fmt.Errorf("failed to scan document result: %w", err)
		}
		res.Snippet = likeSnippet(content, terms[0])
		results = append(results, res)
	}
	if err := docRows.Err(); err != nil {
		return nil, err
	}

	msgSQL := "SELECT conversation_id, content FROM messages WHERE 1=1"
	msgArgs := make([]interface{}, 0, len(terms))
	for _, t := range terms {
		msgSQL += ` AND content LIKE ? ESCAPE '\'`
		msgArgs = append(msgArgs, "%"+escapeLike(t)+"%")
	}
	msgSQL += " ORDER BY timestamp DESC LIMIT ?"
	msgArgs = append(msgArgs, limit)

	msgRows, err := db.conn.Query(msgSQL, msgArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		res := &SearchResult{Source: "message"}
		var content string
		if err := msgRows.Scan(&res.ConversationID, &content); err != nil {
			return nil, fmt.Errorf("failed to scan message result: %w", err)
		}
		res.Snippet = likeSnippet(content, terms[0])
		results = append(results, res)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// escapeLike guards LIKE wildcards in user input.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return term
}

// likeSnippet builds a snippet around the first occurrence of term,
// mirroring the FTS snippet() markup.
func likeSnippet(content, term string) string {
	const window = 32

	idx := strings.Index(strings.ToLower(content), strings.ToLower(term))
	if idx < 0 {
		if len(content) > 2*window {
			return content[:2*window] + "..."
		}
		return content
	}

	start := idx - window
	prefix := ""
	if start > 0 {
		prefix = "..."
	} else {
		start = 0
	}

	end := idx + len(term) + window
	suffix := ""
	if end < len(content) {
		suffix = "..."
	} else {
		end = len(content)
	}

	matched := content[idx : idx+len(term)]
	return prefix + content[start:idx] + "<mark>" + matched + "</mark>" + content[idx+len(term):end] + suffix
}
