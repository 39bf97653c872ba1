package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nutriplan/internal/config"
	"nutriplan/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroq(t *testing.T, handler http.HandlerFunc) *GroqClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{GroqAPIKey: "test-key", LLMTimeout: 5 * time.Second, LLMConnectTimeout: time.Second}
	return NewGroqClient(cfg, ModelGenerator, 0.4).WithURL(srv.URL)
}

func TestGroqChat_ToolCallRoundTrip(t *testing.T) {
	var got groqRequest
	client := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "llama-3.3-70b-versatile",
			"choices": [{"message": {"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "calculateNutrition", "arguments": "{\"servings\":1}"}}
			]}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "make lunch"},
		},
		Tools:       []Tool{{Name: "calculateNutrition", Parameters: map[string]any{"type": "object"}}},
		Temperature: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Nil(t, got.ResponseFormat)

	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "calculateNutrition", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"servings":1}`, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestGroqChat_SendsToolResultMessage(t *testing.T) {
	var got groqRequest
	client := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	})

	resp, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "calculateNutrition", Arguments: "{}"}}},
		{Role: RoleTool, ToolCallID: "call_1", Name: "calculateNutrition", Content: `{"calories":1}`},
	}})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, resp.Message.Content)
	assert.Equal(t, ModelGenerator, resp.Usage.Model)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "tool", got.Messages[1].Role)
	assert.Equal(t, "call_1", got.Messages[1].ToolCallID)
	assert.Equal(t, "call_1", got.Messages[0].ToolCalls[0].ID)
}

func TestGroqGenerateContent_JSONMode(t *testing.T) {
	var got groqRequest
	client := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	resp, err := client.GenerateContent(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestGroqChat_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, shared.ErrUnauthorized},
		{http.StatusTooManyRequests, shared.ErrRateLimited},
		{http.StatusBadGateway, shared.ErrServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})
			_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ext *shared.ExternalServiceError
			require.ErrorAs(t, err, &ext)
			assert.Equal(t, tt.status, ext.StatusCode)
		})
	}
}

func TestGroqChat_EmptyChoices(t *testing.T) {
	client := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrNoContent)
}
