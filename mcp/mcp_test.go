package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-llm-assistant/chat"
	"secure-llm-assistant/db"
	"secure-llm-assistant/ingest"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/monitor"
	"secure-llm-assistant/pii"
)

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Debug(format string, args ...interface{}) {}
func (nopLogger) Error(format string, args ...interface{}) {}

type echoBackend struct{}

func (echoBackend) Chat(ctx context.Context, messages []llm.Message, model string) (string, error) {
	return "echo: " + messages[len(messages)-1].Content, nil
}

func (echoBackend) ProcessDocument(ctx context.Context, filePath, fileType string) (string, error) {
	return "", nil
}

func (echoBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"test-model"}, nil
}

func (echoBackend) PullModel(ctx context.Context, name string) error { return nil }
func (echoBackend) Name() string                                     { return "echo" }

// testSetup wires a full handler stack over a temporary database.
func testSetup(t *testing.T) (*Handlers, *chat.Store) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := chat.NewStore(database)
	require.NoError(t, err)

	backend := echoBackend{}
	registry := llm.NewRegistry(backend, nopLogger{})
	require.NoError(t, registry.Sync(context.Background()))
	require.NoError(t, registry.Select("test-model"))

	gate := monitor.NewGate(monitor.DefaultThresholds())
	gate.Observe(monitor.Snapshot{CPUUsage: 10, MemoryUsage: 20})

	pipeline := pii.NewPipeline(pii.NewScanner(), nopLogger{})
	coordinator := chat.NewCoordinator(store, database, pipeline, backend, registry, gate,
		ingest.NewProcessor(backend), nopLogger{})

	return NewHandlers(coordinator, store, registry, pipeline), store
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultPayload decodes the JSON text content of a tool result.
func resultPayload(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestHandleChatSend(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleChatSend(context.Background(),
		makeRequest(map[string]any{"text": "My SSN is 123-45-6789"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	assert.Equal(t, "assistant", payload["role"])
	content := payload["content"].(string)
	assert.NotContains(t, content, "123-45-6789")
	assert.Contains(t, content, "[REDACTED:SSN]")
}

func TestHandleChatSend_MissingText(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleChatSend(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleChatSend_UnknownConversation(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleChatSend(context.Background(),
		makeRequest(map[string]any{"text": "hi", "conversation_id": "missing"}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	payload := resultPayload(t, res)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestHandleConversationCreateAndSwitch(t *testing.T) {
	h, store := testSetup(t)
	first := store.CurrentID()

	res, err := h.HandleConversationCreate(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	created := resultPayload(t, res)["conversation_id"].(string)
	assert.Equal(t, created, store.CurrentID())

	res, err = h.HandleConversationSwitch(context.Background(),
		makeRequest(map[string]any{"conversation_id": first}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, first, store.CurrentID())
}

func TestHandleDocumentIngestAndSearch(t *testing.T) {
	h, _ := testSetup(t)

	path := filepath.Join(t.TempDir(), "meeting.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Quarterly budget review with carol@example.com"), 0o644))

	res, err := h.HandleDocumentIngest(context.Background(),
		makeRequest(map[string]any{"path": path}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	assert.Equal(t, "meeting.txt", payload["filename"])
	assert.Equal(t, true, payload["pii_removed"])

	res, err = h.HandleKnowledgeSearch(context.Background(),
		makeRequest(map[string]any{"query": "budget review"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	results := resultPayload(t, res)["results"].([]any)
	require.NotEmpty(t, results)
	hit := results[0].(map[string]any)
	assert.Equal(t, "document", hit["source"])
	assert.NotContains(t, hit["snippet"].(string), "carol@example.com")
}

func TestHandleRedactionPreview(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleRedactionPreview(context.Background(),
		makeRequest(map[string]any{"text": "Card 4111-1111-1111-1111 expires soon"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultPayload(t, res)
	redacted := payload["redacted"].(string)
	assert.NotContains(t, redacted, "4111-1111-1111-1111")
	assert.Contains(t, redacted, "[REDACTED:CreditCard]")
	assert.Contains(t, payload["categories"], "CreditCard")
}

func TestHandleModels(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleModelsList(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	payload := resultPayload(t, res)
	assert.Equal(t, "test-model", payload["selected"])

	models := payload["models"].([]any)
	require.Len(t, models, 1)
	m := models[0].(map[string]any)
	assert.Equal(t, "test-model", m["name"])
	assert.Equal(t, "Ready", m["state"])
}

func TestHandleModelSelect_NotReady(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleModelSelect(context.Background(),
		makeRequest(map[string]any{"name": "unknown-model"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleSystemStatus(t *testing.T) {
	h, _ := testSetup(t)

	res, err := h.HandleSystemStatus(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	payload := resultPayload(t, res)
	assert.Equal(t, true, payload["sampled"])
	assert.Equal(t, true, payload["is_safe"])
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	assert.Contains(t, names, "chat_send")
	assert.Contains(t, names, "document_ingest")
	assert.Contains(t, names, "system_status")
	assert.Len(t, names, len(toolRegistry))
}
