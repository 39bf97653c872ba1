package recipe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nutriplan/internal/llm"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
	"nutriplan/internal/toolcall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChat struct {
	responses []llm.ChatResponse
	errs      []error
	requests  []llm.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.ChatResponse{}, s.errs[i]
	}
	if i >= len(s.responses) {
		return llm.ChatResponse{}, errors.New("unexpected chat call")
	}
	return s.responses[i], nil
}

type fixedCalculator struct {
	calls int
}

func (f *fixedCalculator) Calculate(_ context.Context, in []nutrition.IngredientInput, servings int) (nutrition.Result, error) {
	f.calls++
	total := 0.0
	for _, i := range in {
		total += i.Quantity * 2
	}
	return nutrition.Result{Info: nutrition.Info{Calories: total, CaloriesPerServing: total / float64(servings)}}, nil
}

const finalRecipeJSON = `{
  "title": "Lemon Chicken Bowl",
  "cuisine": "Mediterranean",
  "meal": "lunch",
  "servings": 5,
  "ingredients": [{"name": "chicken breast", "quantity": 150, "unit": "g"}, {"name": "rice", "quantity": 100, "unit": "g"}],
  "preparationSteps": [{"stepNumber": 1, "instruction": "Cook everything."}],
  "nutrition": {"calories": 9999}
}`

func toolCallResponse(args string) llm.ChatResponse {
	return llm.ChatResponse{
		Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "calculateNutrition", Arguments: args}}},
		Usage:   shared.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, Model: "m"},
	}
}

func contentResponse(content string) llm.ChatResponse {
	return llm.ChatResponse{
		Message: llm.Message{Role: llm.RoleAssistant, Content: content},
		Usage:   shared.TokenUsage{PromptTokens: 150, CompletionTokens: 80, TotalTokens: 230, Model: "m"},
	}
}

func lunchRequest() GenerateRequest {
	return GenerateRequest{
		Strategy: strategy.Strategy{StrategyName: "Lean", TargetCalories: map[string]float64{"daily": 2000}},
		Slot:     strategy.MealSlot{MealType: shared.Lunch, CalorieTarget: 650, MacroFocus: map[string]float64{"protein": 0.4}},
		Retrieved: []RetrievedRecipe{
			{ID: "r1", Title: "Chicken Salad", Cuisine: "Greek", Score: 0.91},
		},
		Allergies: []string{"peanut"},
	}
}

func TestGenerate_TwoTurnProtocol(t *testing.T) {
	chat := &scriptedChat{responses: []llm.ChatResponse{
		toolCallResponse(`{"ingredients":[{"name":"chicken breast","quantity":150,"unit":"g"},{"name":"rice","quantity":100,"unit":"g"}],"servings":2}`),
		contentResponse(finalRecipeJSON),
	}}
	calc := &fixedCalculator{}
	gen := NewGenerator(chat, toolcall.NewGateway(calc), true)

	res, err := gen.Generate(context.Background(), lunchRequest())
	require.NoError(t, err)

	require.Len(t, chat.requests, 2)
	require.Len(t, chat.requests[0].Tools, 1)
	assert.Equal(t, "calculateNutrition", chat.requests[0].Tools[0].Name)

	second := chat.requests[1].Messages
	var toolMsg *llm.Message
	for i := range second {
		if second[i].Role == llm.RoleTool {
			toolMsg = &second[i]
		}
	}
	require.NotNil(t, toolMsg, "tool result must be injected into the second turn")
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, `"calculationMethod":"database_lookup"`)

	assert.True(t, res.FunctionCalled)
	assert.Equal(t, 1, calc.calls)
	assert.Equal(t, "Lemon Chicken Bowl", res.Recipe.Title)
	assert.Equal(t, shared.Lunch, res.Recipe.MealType)
	assert.Equal(t, SourceGenerated, res.Recipe.Source)
	assert.NotEmpty(t, res.Recipe.ID)

	// Nutrition is the gateway output, not the 9999 the model wrote.
	require.NotNil(t, res.Recipe.Nutrition)
	assert.InDelta(t, 500.0, res.Recipe.Nutrition.Calories, 1e-9)
	assert.InDelta(t, 250.0, res.Recipe.Nutrition.CaloriesPerServing, 1e-9)
	assert.Equal(t, 2, res.Recipe.Servings)

	assert.Equal(t, "RecipeGenerator", res.Meta.AgentName)
	assert.Equal(t, 350, res.Meta.Usage.TotalTokens)
}

func TestGenerate_FunctionCallRequired(t *testing.T) {
	chat := &scriptedChat{responses: []llm.ChatResponse{contentResponse(finalRecipeJSON)}}
	calc := &fixedCalculator{}
	gen := NewGenerator(chat, toolcall.NewGateway(calc), true)

	_, err := gen.Generate(context.Background(), lunchRequest())
	var gerr *shared.GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, StageFunctionCall, gerr.Stage)
	assert.ErrorIs(t, err, ErrFunctionNotCalled)
	assert.Zero(t, calc.calls)
}

func TestGenerate_RelaxedStillUsesGateway(t *testing.T) {
	chat := &scriptedChat{responses: []llm.ChatResponse{contentResponse(finalRecipeJSON)}}
	calc := &fixedCalculator{}
	gen := NewGenerator(chat, toolcall.NewGateway(calc), false)

	res, err := gen.Generate(context.Background(), lunchRequest())
	require.NoError(t, err)
	assert.False(t, res.FunctionCalled)
	assert.Equal(t, 1, calc.calls)
	assert.InDelta(t, 500.0, res.Recipe.Nutrition.Calories, 1e-9)
	assert.Equal(t, 5, res.Recipe.Servings)
	assert.InDelta(t, 100.0, res.Recipe.Nutrition.CaloriesPerServing, 1e-9)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		chat      *scriptedChat
		wantStage string
	}{
		{
			name:      "endpoint error",
			chat:      &scriptedChat{errs: []error{&shared.ExternalServiceError{Service: "groq", Err: shared.ErrRateLimited}}},
			wantStage: StageInitialRequest,
		},
		{
			name:      "unexpected function",
			chat:      &scriptedChat{responses: []llm.ChatResponse{{Message: llm.Message{ToolCalls: []llm.ToolCall{{ID: "x", Name: "guessCalories", Arguments: "{}"}}}}}},
			wantStage: StageFunctionCall,
		},
		{
			name:      "invalid arguments",
			chat:      &scriptedChat{responses: []llm.ChatResponse{toolCallResponse(`{"ingredients":[{"name":"rice","quantity":-1,"unit":"g"}],"servings":1}`)}},
			wantStage: StageFunctionCall,
		},
		{
			name: "malformed final json",
			chat: &scriptedChat{responses: []llm.ChatResponse{
				toolCallResponse(`{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":1}`),
				contentResponse(`{"title": "Oops"`),
			}},
			wantStage: StageParse,
		},
		{
			name: "missing steps",
			chat: &scriptedChat{responses: []llm.ChatResponse{
				toolCallResponse(`{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":1}`),
				contentResponse(`{"title":"Rice","ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"preparationSteps":[]}`),
			}},
			wantStage: StageParse,
		},
		{
			name: "second function call",
			chat: &scriptedChat{responses: []llm.ChatResponse{
				toolCallResponse(`{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":1}`),
				toolCallResponse(`{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":1}`),
			}},
			wantStage: StageFinalRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(tt.chat, toolcall.NewGateway(&fixedCalculator{}), true)
			_, err := gen.Generate(context.Background(), lunchRequest())
			var gerr *shared.GenerationError
			require.True(t, errors.As(err, &gerr), "got %v", err)
			assert.Equal(t, tt.wantStage, gerr.Stage)
		})
	}
}

func TestBuildGeneratorPrompt(t *testing.T) {
	req := lunchRequest()
	for i := 0; i < 7; i++ {
		req.Retrieved = append(req.Retrieved, RetrievedRecipe{Title: "Extra", Cuisine: "Any", Score: 0.1})
	}
	prompt, err := BuildGeneratorPrompt(req)
	require.NoError(t, err)

	assert.Contains(t, prompt, "1. Chicken Salad (Greek) - Relevance: 0.91")
	assert.Contains(t, prompt, "5. Extra (Any)")
	assert.NotContains(t, prompt, "6. Extra")
	assert.Contains(t, prompt, "DO NOT copy exactly")
	assert.Contains(t, prompt, "Allergies to avoid: peanut")
	assert.Contains(t, prompt, "650 kcal")
	assert.Contains(t, prompt, "protein=0.40")
	assert.Contains(t, prompt, "calculateNutrition")

	req.Retrieved = nil
	prompt, err = BuildGeneratorPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, prompt, "No retrieved recipes available")
	assert.False(t, strings.Contains(prompt, "USE THESE AS INSPIRATION"))
}
