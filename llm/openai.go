package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend implements the Backend interface for OpenAI-compatible
// local servers (llama.cpp server, vLLM, LM Studio and the like).
type OpenAIBackend struct {
	client *openai.Client
	config Config
}

// NewOpenAIBackend creates a new OpenAI-compatible backend
func NewOpenAIBackend(config Config) (*OpenAIBackend, error) {
	// Allow empty API key - local servers usually ignore it
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.BackendName == "" {
		config.BackendName = "OpenAI Compatible"
	}

	return &OpenAIBackend{
		client: client,
		config: config,
	}, nil
}

// Chat implements non-streaming chat
func (b *OpenAIBackend) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    openaiMessages,
		MaxTokens:   b.config.MaxTokens,
		Temperature: float32(b.config.Temperature),
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from backend")
	}

	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the models the server reports
func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// PullModel is not supported on the OpenAI-compatible API; models are
// managed by the server itself.
func (b *OpenAIBackend) PullModel(ctx context.Context, name string) error {
	return fmt.Errorf("backend %s does not support model downloads", b.config.BackendName)
}

// ProcessDocument is not supported; extraction of text-bearing formats
// happens caller-side in the ingest package.
func (b *OpenAIBackend) ProcessDocument(ctx context.Context, filePath, fileType string) (string, error) {
	return "", fmt.Errorf("backend %s cannot extract %s documents", b.config.BackendName, fileType)
}

// Name returns the backend name
func (b *OpenAIBackend) Name() string {
	return b.config.BackendName
}
