package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"secure-llm-assistant/chat"
	"secure-llm-assistant/llm"
	"secure-llm-assistant/pii"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"chat_send": {
		def: mcp.NewTool("chat_send",
			mcp.WithDescription("Send a message in a conversation. The text is redacted before it reaches the model; the reply is the assistant message."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
			mcp.WithString("conversation_id", mcp.Description("Target conversation; defaults to the current one")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"conversation_create": {
		def: mcp.NewTool("conversation_create",
			mcp.WithDescription("Create a new conversation and make it current."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConversationCreate },
	},
	"conversation_list": {
		def: mcp.NewTool("conversation_list",
			mcp.WithDescription("List conversations, most recently active first."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConversationList },
	},
	"conversation_switch": {
		def: mcp.NewTool("conversation_switch",
			mcp.WithDescription("Make an existing conversation current."),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to switch to")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConversationSwitch },
	},
	"document_ingest": {
		def: mcp.NewTool("document_ingest",
			mcp.WithDescription("Extract, redact, and store a document in the knowledge base. Only the redacted text is persisted."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the file")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentIngest },
	},
	"knowledge_search": {
		def: mcp.NewTool("knowledge_search",
			mcp.WithDescription("Full-text search over ingested documents and past messages."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
			mcp.WithNumber("limit", mcp.Description("Maximum hits, default 10")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleKnowledgeSearch },
	},
	"models_list": {
		def: mcp.NewTool("models_list",
			mcp.WithDescription("List known models and their lifecycle states."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleModelsList },
	},
	"model_download": {
		def: mcp.NewTool("model_download",
			mcp.WithDescription("Start downloading a model. Completion is observed via models_list."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Model name")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleModelDownload },
	},
	"model_select": {
		def: mcp.NewTool("model_select",
			mcp.WithDescription("Select a ready model for inference."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Model name")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleModelSelect },
	},
	"redaction_preview": {
		def: mcp.NewTool("redaction_preview",
			mcp.WithDescription("Show how a text would be redacted. Returns the redacted form and the detected categories, never the matched values."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to scan")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRedactionPreview },
	},
	"system_status": {
		def: mcp.NewTool("system_status",
			mcp.WithDescription("Report the latest resource telemetry and whether new work would be admitted."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSystemStatus },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates a new MCP server with the assistant tools registered.
func NewServer(coordinator *chat.Coordinator, store *chat.Store, registry *llm.Registry, pipeline *pii.Pipeline, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"secure-llm-assistant",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(coordinator, store, registry, pipeline)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(coordinator *chat.Coordinator, store *chat.Store, registry *llm.Registry, pipeline *pii.Pipeline, version string) error {
	return server.ServeStdio(NewServer(coordinator, store, registry, pipeline, version))
}
