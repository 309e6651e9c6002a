package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"secure-llm-assistant/db"
	"secure-llm-assistant/errs"
	"secure-llm-assistant/ingest"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/monitor"
	"secure-llm-assistant/pii"
)

// Logger is the subset of the application logger the coordinator
// needs.
type Logger interface {
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// defaultHistoryLimit caps how many stored messages are replayed to
// the backend per request.
const defaultHistoryLimit = 50

// Coordinator drives every user-visible operation through the same
// pipeline: resource admission, model readiness, redaction, then
// persistence and inference. No text reaches the backend or the
// database without passing redaction first, and a redaction failure
// aborts the whole operation.
type Coordinator struct {
	store     *Store
	database  *db.DB
	pipeline  *pii.Pipeline
	backend   llm.Backend
	registry  *llm.Registry
	gate      *monitor.Gate
	processor *ingest.Processor
	log       Logger

	historyLimit int

	mu      sync.Mutex
	flights map[string]*sync.Mutex
}

// NewCoordinator wires the coordinator over its collaborators.
func NewCoordinator(store *Store, database *db.DB, pipeline *pii.Pipeline, backend llm.Backend, registry *llm.Registry, gate *monitor.Gate, processor *ingest.Processor, log Logger) *Coordinator {
	return &Coordinator{
		store:        store,
		database:     database,
		pipeline:     pipeline,
		backend:      backend,
		registry:     registry,
		gate:         gate,
		processor:    processor,
		log:          log,
		historyLimit: defaultHistoryLimit,
		flights:      make(map[string]*sync.Mutex),
	}
}

// flight returns the per-conversation lock. Sends to the same
// conversation queue behind it; sends to different conversations run
// concurrently.
func (c *Coordinator) flight(conversationID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.flights[conversationID]
	if !ok {
		m = &sync.Mutex{}
		c.flights[conversationID] = m
	}
	return m
}

// Send runs one chat turn in the named conversation and returns the
// assistant message. The user text is redacted before it is stored or
// sent anywhere; the original never leaves this call. An inference
// failure is recorded as a system message so the conversation stays
// usable.
func (c *Coordinator) Send(ctx context.Context, conversationID, text string) (*db.Message, error) {
	lock := c.flight(conversationID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := c.database.ConversationExists(conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.NotFound("conversation", conversationID)
	}

	if err := c.gate.Admit(); err != nil {
		return nil, err
	}
	model, err := c.registry.SelectedReady()
	if err != nil {
		return nil, err
	}

	res, err := c.pipeline.Redact(ctx, text)
	if err != nil {
		c.log.Error("redaction failed, dropping message for conversation %s", conversationID)
		return nil, err
	}

	history, err := c.store.Messages(conversationID)
	if err != nil {
		return nil, err
	}
	firstTurn := len(history) == 0

	userMsg, err := c.store.AppendMessage(conversationID, &db.Message{
		Role:    db.RoleUser,
		Content: res.Redacted,
		Model:   model,
	})
	if err != nil {
		return nil, err
	}

	if firstTurn {
		if err := c.store.SetTitle(conversationID, llm.DefaultTitle(res.Redacted)); err != nil {
			c.log.Error("failed to title conversation %s: %v", conversationID, err)
		}
	}

	prompt := c.buildPrompt(history, userMsg)
	reply, err := c.backend.Chat(ctx, prompt, model)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		infErr := errs.InferenceError(err)
		if _, appendErr := c.store.AppendMessage(conversationID, &db.Message{
			Role:    db.RoleSystem,
			Content: fmt.Sprintf("Inference failed: %v", infErr),
			Model:   model,
		}); appendErr != nil {
			c.log.Error("failed to record inference failure: %v", appendErr)
		}
		return nil, infErr
	}

	assistantMsg, err := c.store.AppendMessage(conversationID, &db.Message{
		Role:    db.RoleAssistant,
		Content: reply,
		Model:   model,
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug("completed turn in conversation %s with model %s", conversationID, model)
	return assistantMsg, nil
}

// buildPrompt replays the stored history plus the new user message,
// keeping only the most recent historyLimit entries.
func (c *Coordinator) buildPrompt(history []*db.Message, userMsg *db.Message) []llm.Message {
	all := append(history, userMsg)
	if len(all) > c.historyLimit {
		all = all[len(all)-c.historyLimit:]
	}
	prompt := make([]llm.Message, 0, len(all))
	for _, m := range all {
		prompt = append(prompt, llm.Message{Role: m.Role, Content: m.Content})
	}
	return prompt
}

// IngestDocument extracts text from a file, redacts it, and stores
// the redacted form in the knowledge base. Only the redacted content
// is ever written; a redaction failure drops the document entirely.
func (c *Coordinator) IngestDocument(ctx context.Context, filePath string) (*db.Document, error) {
	if err := c.gate.Admit(); err != nil {
		return nil, err
	}

	extracted, err := c.processor.Extract(ctx, filePath)
	if err != nil {
		return nil, err
	}

	res, err := c.pipeline.Redact(ctx, extracted.Text)
	if err != nil {
		c.log.Error("redaction failed, dropping document %s", filepath.Base(filePath))
		return nil, err
	}

	doc := &db.Document{
		ID:         uuid.NewString(),
		Filename:   filepath.Base(filePath),
		Content:    res.Redacted,
		PIIRemoved: true,
		Metadata: map[string]interface{}{
			"file_type": extracted.FileType,
			"findings":  len(res.Findings),
		},
		CreatedAt: time.Now(),
	}
	if err := c.database.InsertDocument(doc); err != nil {
		return nil, err
	}

	c.log.Info("ingested document %s (%s, %d findings redacted)", doc.Filename, extracted.FileType, len(res.Findings))
	return doc, nil
}

// AddKnowledge stores a free-form note in the knowledge base after
// redaction.
func (c *Coordinator) AddKnowledge(ctx context.Context, content string, metadata map[string]interface{}) (*db.Document, error) {
	res, err := c.pipeline.Redact(ctx, content)
	if err != nil {
		return nil, err
	}

	doc := &db.Document{
		ID:         uuid.NewString(),
		Filename:   "note",
		Content:    res.Redacted,
		PIIRemoved: true,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := c.database.InsertDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SearchKnowledge queries the knowledge base. The query itself is
// redacted first so sensitive search terms never reach the index.
func (c *Coordinator) SearchKnowledge(ctx context.Context, query string, limit int) ([]*db.SearchResult, error) {
	res, err := c.pipeline.Redact(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.database.SearchKnowledge(res.Redacted, limit)
}

// Status reports the latest resource snapshot. The second return is
// false before the first sample.
func (c *Coordinator) Status() (monitor.Snapshot, bool) {
	return c.gate.Latest()
}
