package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"secure-llm-assistant/chat"
	"secure-llm-assistant/errs"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/pii"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	coordinator *chat.Coordinator
	store       *chat.Store
	registry    *llm.Registry
	pipeline    *pii.Pipeline
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(coordinator *chat.Coordinator, store *chat.Store, registry *llm.Registry, pipeline *pii.Pipeline) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		store:       store,
		registry:    registry,
		pipeline:    pipeline,
	}
}

// Request types for each tool

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationSwitchRequest represents the arguments for conversation_switch.
type ConversationSwitchRequest struct {
	ConversationID string `json:"conversation_id"`
}

// DocumentIngestRequest represents the arguments for document_ingest.
type DocumentIngestRequest struct {
	Path string `json:"path"`
}

// KnowledgeSearchRequest represents the arguments for knowledge_search.
type KnowledgeSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// ModelRequest names a model for model_download and model_select.
type ModelRequest struct {
	Name string `json:"name"`
}

// RedactionPreviewRequest represents the arguments for redaction_preview.
type RedactionPreviewRequest struct {
	Text string `json:"text"`
}

// Handler implementations

// HandleChatSend handles the chat_send tool call.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Text == "" {
		return errorResult(fmt.Errorf("text is required")), nil
	}

	convID := input.ConversationID
	if convID == "" {
		convID = h.store.CurrentID()
	}

	reply, err := h.coordinator.Send(ctx, convID, input.Text)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"conversation_id": convID,
		"role":            reply.Role,
		"content":         reply.Content,
		"model":           reply.Model,
	})
}

// HandleConversationCreate handles the conversation_create tool call.
func (h *Handlers) HandleConversationCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conv, err := h.store.CreateConversation()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"conversation_id": conv.ID,
		"title":           conv.Title,
	})
}

// HandleConversationList handles the conversation_list tool call.
func (h *Handlers) HandleConversationList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convs, err := h.store.Conversations()
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]map[string]any, 0, len(convs))
	for _, c := range convs {
		items = append(items, map[string]any{
			"conversation_id": c.ID,
			"title":           c.Title,
			"updated_at":      c.UpdatedAt,
		})
	}
	return successResult(map[string]any{
		"current":       h.store.CurrentID(),
		"conversations": items,
	})
}

// HandleConversationSwitch handles the conversation_switch tool call.
func (h *Handlers) HandleConversationSwitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationSwitchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.store.SwitchCurrent(input.ConversationID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"current": input.ConversationID})
}

// HandleDocumentIngest handles the document_ingest tool call.
func (h *Handlers) HandleDocumentIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentIngestRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Path == "" {
		return errorResult(fmt.Errorf("path is required")), nil
	}

	doc, err := h.coordinator.IngestDocument(ctx, input.Path)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"pii_removed": doc.PIIRemoved,
		"metadata":    doc.Metadata,
	})
}

// HandleKnowledgeSearch handles the knowledge_search tool call.
func (h *Handlers) HandleKnowledgeSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[KnowledgeSearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	results, err := h.coordinator.SearchKnowledge(ctx, input.Query, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"source":          r.Source,
			"conversation_id": r.ConversationID,
			"document_id":     r.DocumentID,
			"filename":        r.Filename,
			"snippet":         r.Snippet,
		})
	}
	return successResult(map[string]any{"results": items})
}

// HandleModelsList handles the models_list tool call.
func (h *Handlers) HandleModelsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models := h.registry.List()
	items := make([]map[string]any, 0, len(models))
	for _, m := range models {
		items = append(items, map[string]any{
			"name":  m.Name,
			"state": string(m.State),
		})
	}
	return successResult(map[string]any{
		"selected": h.registry.Selected(),
		"models":   items,
	})
}

// HandleModelDownload handles the model_download tool call.
func (h *Handlers) HandleModelDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ModelRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	// The download outlives this request, so it detaches from the
	// request context.
	if err := h.registry.RequestDownload(context.Background(), input.Name); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"name": input.Name, "state": string(llm.StateDownloading)})
}

// HandleModelSelect handles the model_select tool call.
func (h *Handlers) HandleModelSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ModelRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.registry.Select(input.Name); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"selected": input.Name})
}

// HandleRedactionPreview handles the redaction_preview tool call.
func (h *Handlers) HandleRedactionPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RedactionPreviewRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := h.pipeline.Redact(ctx, input.Text)
	if err != nil {
		return errorResult(err), nil
	}

	categories := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		categories = append(categories, string(f.Category))
	}
	return successResult(map[string]any{
		"redacted":   res.Redacted,
		"findings":   len(res.Findings),
		"categories": categories,
	})
}

// HandleSystemStatus handles the system_status tool call.
func (h *Handlers) HandleSystemStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, ok := h.coordinator.Status()
	if !ok {
		return successResult(map[string]any{"sampled": false})
	}

	return successResult(map[string]any{
		"sampled":      true,
		"cpu_usage":    snap.CPUUsage,
		"memory_usage": snap.MemoryUsage,
		"is_safe":      snap.IsSafe,
	})
}

// errorResult creates an MCP error result. Classified errors carry
// their kind; everything else is reported without detail.
func errorResult(err error) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"code":    "INTERNAL",
			"message": "an internal error occurred",
		},
	}

	var appErr *errs.Error
	if errors.As(err, &appErr) {
		payload = map[string]any{
			"error": map[string]any{
				"code":      string(appErr.Kind),
				"message":   appErr.Message,
				"retryable": appErr.Retryable,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
