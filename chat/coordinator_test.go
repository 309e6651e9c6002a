package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-llm-assistant/db"
	"secure-llm-assistant/errs"
	"secure-llm-assistant/ingest"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/monitor"
	"secure-llm-assistant/pii"
)

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Debug(format string, args ...interface{}) {}
func (nopLogger) Error(format string, args ...interface{}) {}

// fakeBackend records every prompt it receives so tests can assert on
// what crossed the backend boundary.
type fakeBackend struct {
	mu      sync.Mutex
	prompts [][]llm.Message
	reply   string
	chatErr error
	docText string
	docErr  error
}

func (f *fakeBackend) Chat(ctx context.Context, messages []llm.Message, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	f.prompts = append(f.prompts, copied)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if f.reply == "" {
		return "ok", nil
	}
	return f.reply, nil
}

func (f *fakeBackend) ProcessDocument(ctx context.Context, filePath, fileType string) (string, error) {
	if f.docErr != nil {
		return "", f.docErr
	}
	return f.docText, nil
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"test-model"}, nil
}

func (f *fakeBackend) PullModel(ctx context.Context, name string) error { return nil }

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) received() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

type fixture struct {
	coordinator *Coordinator
	store       *Store
	database    *db.DB
	backend     *fakeBackend
	gate        *monitor.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := newTestDB(t)
	store, err := NewStore(database)
	require.NoError(t, err)

	backend := &fakeBackend{}
	registry := llm.NewRegistry(backend, nopLogger{})
	require.NoError(t, registry.Sync(context.Background()))
	require.NoError(t, registry.Select("test-model"))

	gate := monitor.NewGate(monitor.DefaultThresholds())
	gate.Observe(monitor.Snapshot{CPUUsage: 10, MemoryUsage: 20})

	pipeline := pii.NewPipeline(pii.NewScanner(), nopLogger{})
	processor := ingest.NewProcessor(backend)

	return &fixture{
		coordinator: NewCoordinator(store, database, pipeline, backend, registry, gate, processor, nopLogger{}),
		store:       store,
		database:    database,
		backend:     backend,
		gate:        gate,
	}
}

func TestSend_RedactsBeforeBackend(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	reply, err := f.coordinator.Send(context.Background(),
		convID, "My SSN is 123-45-6789 and my email is alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, db.RoleAssistant, reply.Role)

	prompts := f.backend.received()
	require.Len(t, prompts, 1)
	for _, m := range prompts[0] {
		assert.NotContains(t, m.Content, "123-45-6789")
		assert.NotContains(t, m.Content, "alice@example.com")
	}
	last := prompts[0][len(prompts[0])-1]
	assert.Contains(t, last.Content, "[REDACTED:SSN]")
	assert.Contains(t, last.Content, "[REDACTED:Email]")

	msgs, err := f.store.Messages(convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotContains(t, msgs[0].Content, "123-45-6789", "original text must never be persisted")
}

func TestSend_TitlesConversationFromFirstMessage(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	_, err := f.coordinator.Send(context.Background(), convID, "Reach me at 123-45-6789 please")
	require.NoError(t, err)

	conv, err := f.store.Current()
	require.NoError(t, err)
	assert.NotEqual(t, DefaultTitle, conv.Title)
	assert.NotContains(t, conv.Title, "123-45-6789", "title derives from the redacted form")
}

func TestSend_UnknownConversation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Send(context.Background(), "missing", "hello")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestSend_GateRefusesUnderLoad(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	f.gate.Observe(monitor.Snapshot{CPUUsage: 95, MemoryUsage: 20})

	_, err := f.coordinator.Send(context.Background(), convID, "hello")
	assert.Equal(t, errs.KindResourceBusy, errs.KindOf(err))

	msgs, err := f.store.Messages(convID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "refused dispatch stores nothing")
	assert.Empty(t, f.backend.received())

	// recovery: once load drops, the same send goes through
	f.gate.Observe(monitor.Snapshot{CPUUsage: 30, MemoryUsage: 20})
	_, err = f.coordinator.Send(context.Background(), convID, "hello")
	assert.NoError(t, err)
}

func TestSend_NoModelSelected(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	registry := llm.NewRegistry(f.backend, nopLogger{})
	f.coordinator.registry = registry

	_, err := f.coordinator.Send(context.Background(), convID, "hello")
	require.Error(t, err)
	assert.Empty(t, f.backend.received())
}

func TestSend_InferenceFailureKeepsConversationUsable(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	f.backend.chatErr = fmt.Errorf("model crashed")
	_, err := f.coordinator.Send(context.Background(), convID, "hello")
	assert.Equal(t, errs.KindInferenceError, errs.KindOf(err))

	msgs, err := f.store.Messages(convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, db.RoleUser, msgs[0].Role)
	assert.Equal(t, db.RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Inference failed")

	f.backend.chatErr = nil
	reply, err := f.coordinator.Send(context.Background(), convID, "try again")
	require.NoError(t, err)
	assert.Equal(t, db.RoleAssistant, reply.Role)
}

type panicScanner struct{}

func (panicScanner) Scan(text string) []pii.Finding {
	panic("scanner blew up")
}

func TestSend_RedactionFailureDropsMessage(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	f.coordinator.pipeline = pii.NewPipeline(panicScanner{}, nopLogger{})

	_, err := f.coordinator.Send(context.Background(), convID, "My SSN is 123-45-6789")
	assert.Equal(t, errs.KindRedactionFailure, errs.KindOf(err))

	msgs, err := f.store.Messages(convID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "failed redaction must not persist anything")
	assert.Empty(t, f.backend.received(), "failed redaction must not reach the backend")
}

func TestSend_SameConversationSerialized(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.coordinator.Send(context.Background(), convID, fmt.Sprintf("message %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := f.store.Messages(convID)
	require.NoError(t, err)
	require.Len(t, msgs, 16)

	// turns never interleave: user and assistant messages alternate
	for i, m := range msgs {
		if i%2 == 0 {
			assert.Equal(t, db.RoleUser, m.Role, "message %d", i)
		} else {
			assert.Equal(t, db.RoleAssistant, m.Role, "message %d", i)
		}
	}
}

func TestIngestDocument(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "contacts.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Call Bob at (555) 123-4567 or bob@example.com"), 0o644))

	doc, err := f.coordinator.IngestDocument(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "contacts.txt", doc.Filename)
	assert.True(t, doc.PIIRemoved)
	assert.NotContains(t, doc.Content, "bob@example.com")
	assert.Contains(t, doc.Content, "[REDACTED:Email]")
	assert.Contains(t, doc.Content, "[REDACTED:Phone]")

	stored, err := f.database.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, stored.Content)
	assert.False(t, stored.CreatedAt.IsZero(), "ingestion must stamp the document")
}

func TestIngestDocument_UnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "malware.exe")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := f.coordinator.IngestDocument(context.Background(), path)
	assert.Equal(t, errs.KindUnsupportedFormat, errs.KindOf(err))
}

func TestIngestDocument_RedactionFailureDropsDocument(t *testing.T) {
	f := newFixture(t)
	f.coordinator.pipeline = pii.NewPipeline(panicScanner{}, nopLogger{})

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("secret stuff"), 0o644))

	_, err := f.coordinator.IngestDocument(context.Background(), path)
	assert.Equal(t, errs.KindRedactionFailure, errs.KindOf(err))

	docs, err := f.database.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSearchKnowledge_RedactsQuery(t *testing.T) {
	f := newFixture(t)

	doc, err := f.coordinator.AddKnowledge(context.Background(),
		"The quarterly report covers revenue growth", nil)
	require.NoError(t, err)
	assert.False(t, doc.CreatedAt.IsZero(), "knowledge entries must be stamped")

	results, err := f.coordinator.SearchKnowledge(context.Background(), "quarterly report", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "document", results[0].Source)

	// a query that is pure PII redacts to placeholders and must not
	// error, even though FTS treats the placeholder as a literal
	_, err = f.coordinator.SearchKnowledge(context.Background(), "alice@example.com", 10)
	assert.NoError(t, err)
}

func TestSearchKnowledge_FindsRedactedMessages(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	_, err := f.coordinator.Send(context.Background(), convID, "Planning the zanzibar deployment today")
	require.NoError(t, err)

	results, err := f.coordinator.SearchKnowledge(context.Background(), "zanzibar", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "message", results[0].Source)
	assert.Equal(t, convID, results[0].ConversationID)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	snap, ok := f.coordinator.Status()
	require.True(t, ok)
	assert.True(t, snap.IsSafe)
}

func TestSend_BackendErrorNotRetryable(t *testing.T) {
	f := newFixture(t)
	convID := f.store.CurrentID()

	f.backend.chatErr = fmt.Errorf("boom")
	_, err := f.coordinator.Send(context.Background(), convID, "hi")

	var appErr *errs.Error
	require.True(t, errors.As(err, &appErr))
	assert.False(t, appErr.Retryable)
	assert.True(t, strings.Contains(appErr.Error(), "INFERENCE_ERROR"))
}
