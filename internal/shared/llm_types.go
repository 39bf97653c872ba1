package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by one or more model requests.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Add returns the sum of two usages. The model of the receiver wins unless it is empty.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	model := u.Model
	if model == "" {
		model = other.Model
	}
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		Model:            model,
	}
}

// AgentMeta holds operational metadata for an agent execution.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}
