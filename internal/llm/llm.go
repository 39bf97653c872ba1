package llm

import (
	"context"

	"nutriplan/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// EmbeddingGenerator is an interface for generating vector embeddings from text.
type EmbeddingGenerator interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request from the model to run a named function.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Message is one turn of a chat conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// Tool describes a function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a full conversation plus the tools offered to the model.
type ChatRequest struct {
	Messages    []Message
	Tools       []Tool
	Temperature float64
	JSONMode    bool
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Message Message
	Usage   shared.TokenUsage
}

// ChatCompleter drives multi-turn conversations with optional function calling.
type ChatCompleter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
