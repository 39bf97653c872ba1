package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"nutriplan/internal/llm"
	"nutriplan/internal/shared"
)

// RecipeChat plays the generation endpoint: the first turn requests the
// nutrition function for a fixed ingredient list, the second returns a
// uniquely titled recipe.
type RecipeChat struct {
	mu    sync.Mutex
	calls int
	// Fail makes every first turn return this error.
	Fail error
}

func (c *RecipeChat) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	usage := shared.TokenUsage{PromptTokens: 50, CompletionTokens: 25, TotalTokens: 75, Model: "test-model"}
	for _, m := range req.Messages {
		if m.Role == llm.RoleTool {
			return llm.ChatResponse{
				Message: llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf(`{
					"title": "Test Dish %d",
					"cuisine": "Test",
					"servings": 1,
					"ingredients": [{"name": "rice", "quantity": 200, "unit": "g"}, {"name": "chicken breast", "quantity": 150, "unit": "g"}],
					"preparationSteps": [{"stepNumber": 1, "instruction": "Cook."}]
				}`, n)},
				Usage: usage,
			}, nil
		}
	}
	if c.Fail != nil {
		return llm.ChatResponse{}, c.Fail
	}
	return llm.ChatResponse{
		Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID:        fmt.Sprintf("call_%d", n),
			Name:      "calculateNutrition",
			Arguments: `{"ingredients":[{"name":"rice","quantity":200,"unit":"g"},{"name":"chicken breast","quantity":150,"unit":"g"}],"servings":1}`,
		}}},
		Usage: usage,
	}, nil
}

// TextFunc adapts a function to llm.TextGenerator.
type TextFunc func(prompt string) (string, error)

func (f TextFunc) GenerateContent(_ context.Context, prompt string) (llm.ContentResponse, error) {
	out, err := f(prompt)
	if err != nil {
		return llm.ContentResponse{}, err
	}
	return llm.ContentResponse{Content: out, Usage: shared.TokenUsage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40}}, nil
}

// HashEmbedder returns a deterministic bag-of-words vector.
type HashEmbedder struct{}

func (HashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%32]++
	}
	return v, nil
}
