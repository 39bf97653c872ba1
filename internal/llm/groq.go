package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"nutriplan/internal/config"
	"nutriplan/internal/shared"
)

const (
	groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	groqTopP   = 0.95

	// ModelGenerator drives recipe generation with function calling.
	ModelGenerator = "llama-3.3-70b-versatile"
	// ModelExtractor normalizes catalog posts.
	ModelExtractor = "llama-3.1-8b-instant"
)

// GroqClient talks to the Groq OpenAI-compatible chat completions API.
type GroqClient struct {
	apiKey      string
	model       string
	temperature float64
	url         string
	httpClient  *http.Client
}

// NewGroqClient creates a new Groq API client with a bounded connect timeout
// and a longer overall request timeout.
func NewGroqClient(cfg *config.Config, model string, temperature float64) *GroqClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.LLMConnectTimeout}).DialContext,
	}
	return &GroqClient{
		apiKey:      cfg.GroqAPIKey,
		model:       model,
		temperature: temperature,
		url:         groqAPIURL,
		httpClient: &http.Client{
			Timeout:   cfg.LLMTimeout,
			Transport: transport,
		},
	}
}

// WithURL points the client at another OpenAI-compatible endpoint.
func (c *GroqClient) WithURL(url string) *GroqClient {
	c.url = url
	return c
}

type groqFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
}

type groqToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function groqFunction `json:"function"`
}

type groqMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []groqToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type groqTool struct {
	Type     string       `json:"type"`
	Function groqFunction `json:"function"`
}

type groqRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	TopP           float64           `json:"top_p"`
	Tools          []groqTool        `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string         `json:"role"`
			Content   *string        `json:"content"`
			ToolCalls []groqToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateContent sends a single prompt in JSON mode and returns the generated text.
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: c.temperature,
		JSONMode:    true,
	})
	if err != nil {
		return ContentResponse{}, err
	}
	return ContentResponse{Content: resp.Message.Content, Usage: resp.Usage}, nil
}

// Chat sends the conversation and returns either text content or tool calls.
func (c *GroqClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := groqRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		TopP:        groqTopP,
	}
	for _, m := range req.Messages {
		gm := groqMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			gm.ToolCalls = append(gm.ToolCalls, groqToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: groqFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		body.Messages = append(body.Messages, gm)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, groqTool{
			Type:     "function",
			Function: groqFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	} else if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChatResponse{}, &shared.ExternalServiceError{Service: "groq", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ChatResponse{}, shared.NewExternalServiceError("groq", resp.StatusCode, string(bodyBytes))
	}

	var groqResp groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: failed to decode groq response: %v", ErrInvalidOutput, err)
	}
	if len(groqResp.Choices) == 0 {
		return ChatResponse{}, ErrNoContent
	}

	choice := groqResp.Choices[0].Message
	out := Message{Role: RoleAssistant}
	if choice.Content != nil {
		out.Content = *choice.Content
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return ChatResponse{}, ErrNoContent
	}

	model := groqResp.Model
	if model == "" {
		model = c.model
	}
	return ChatResponse{
		Message: out,
		Usage: shared.TokenUsage{
			PromptTokens:     groqResp.Usage.PromptTokens,
			CompletionTokens: groqResp.Usage.CompletionTokens,
			TotalTokens:      groqResp.Usage.TotalTokens,
			Model:            model,
		},
	}, nil
}
