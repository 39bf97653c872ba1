package recipe

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"text/template"
	"time"

	"nutriplan/internal/llm"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
	"nutriplan/internal/toolcall"
)

//go:embed generator_prompt.md
var generatorPrompt string

var generatorTmpl = template.Must(template.New("generator").Parse(generatorPrompt))

const (
	generatorAgent       = "RecipeGenerator"
	generatorTemperature = 0.4
	maxInspiration       = 5
	systemMessage        = "You are a nutrition assistant. Respond STRICTLY with valid JSON. " +
		"Never state nutrition numbers yourself: call calculateNutrition and use its output."
)

// Generation stages reported in shared.GenerationError.
const (
	StageInitialRequest = "initial_request"
	StageFunctionCall   = "function_call"
	StageFinalRequest   = "final_request"
	StageParse          = "parse"
)

// ErrFunctionNotCalled is reported when the model answers without calling
// calculateNutrition and function calls are required.
var ErrFunctionNotCalled = errors.New("model did not call " + string(toolcall.CalculateNutrition))

// GenerateRequest is everything the generator needs for one slot.
type GenerateRequest struct {
	Strategy            strategy.Strategy
	Slot                strategy.MealSlot
	Retrieved           []RetrievedRecipe
	DietaryRestrictions []string
	Allergies           []string
	DislikedIngredients []string
	AvoidTitles         []string
	Servings            int
}

// GenerateResult is a generated recipe whose nutrition came from the gateway.
type GenerateResult struct {
	Recipe         Recipe
	Nutrition      toolcall.Output
	FunctionCalled bool
	Meta           shared.AgentMeta
}

// generatedPayload is the JSON the model returns in its final turn.
type generatedPayload struct {
	Title           string          `json:"title"`
	Cuisine         string          `json:"cuisine"`
	Meal            string          `json:"meal"`
	Servings        int             `json:"servings"`
	Summary         string          `json:"summary"`
	TimeMinutes     int             `json:"timeMinutes"`
	DifficultyLevel string          `json:"difficultyLevel"`
	DietaryTags     []string        `json:"dietaryTags"`
	Ingredients     []Ingredient    `json:"ingredients"`
	Steps           []Step          `json:"preparationSteps"`
	Nutrition       *nutrition.Info `json:"nutrition"`
}

func (p generatedPayload) validate() error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return errors.New("recipe title is missing")
	case len(p.Ingredients) == 0:
		return errors.New("recipe has no ingredients")
	case len(p.Steps) == 0:
		return errors.New("recipe has no preparation steps")
	}
	return nil
}

// Generator drives the two-turn generation protocol.
type Generator struct {
	chat                llm.ChatCompleter
	gateway             *toolcall.Gateway
	requireFunctionCall bool
}

func NewGenerator(chat llm.ChatCompleter, gateway *toolcall.Gateway, requireFunctionCall bool) *Generator {
	return &Generator{chat: chat, gateway: gateway, requireFunctionCall: requireFunctionCall}
}

// Generate produces one recipe for a slot. Every failure is a *shared.GenerationError.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	start := time.Now()
	meta := shared.AgentMeta{AgentName: generatorAgent}

	prompt, err := BuildGeneratorPrompt(req)
	if err != nil {
		return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageInitialRequest, Err: err}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemMessage},
		{Role: llm.RoleUser, Content: prompt},
	}
	tools := []llm.Tool{g.gateway.Tool()}

	first, err := g.chat.Chat(ctx, llm.ChatRequest{Messages: messages, Tools: tools, Temperature: generatorTemperature})
	if err != nil {
		return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageInitialRequest, Err: err}
	}
	meta.Usage = first.Usage

	var (
		final          string
		fnOut          toolcall.Output
		functionCalled bool
	)

	if len(first.Message.ToolCalls) > 0 {
		functionCalled = true
		messages = append(messages, first.Message)
		for _, call := range first.Message.ToolCalls {
			log.Printf("[FC] Function call received: %s", call.Name)
			out, err := g.gateway.Dispatch(ctx, call)
			if err != nil {
				meta.Latency = time.Since(start)
				return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFunctionCall, Err: err}
			}
			payload, err := json.Marshal(out)
			if err != nil {
				return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFunctionCall, Err: err}
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    string(payload),
			})
			fnOut = out
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Now return the final recipe JSON with the nutrition object copied exactly from the function output.",
		})

		second, err := g.chat.Chat(ctx, llm.ChatRequest{Messages: messages, Temperature: generatorTemperature, JSONMode: true})
		if err != nil {
			meta.Latency = time.Since(start)
			return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFinalRequest, Err: err}
		}
		meta.Usage = meta.Usage.Add(second.Usage)
		if len(second.Message.ToolCalls) > 0 {
			meta.Latency = time.Since(start)
			return GenerateResult{Meta: meta}, &shared.GenerationError{
				Stage: StageFinalRequest,
				Err:   errors.New("model requested another function call instead of the final recipe"),
			}
		}
		final = second.Message.Content
	} else {
		if g.requireFunctionCall {
			meta.Latency = time.Since(start)
			return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFunctionCall, Err: ErrFunctionNotCalled}
		}
		log.Printf("[FC] Warning: model answered without calling %s, computing nutrition from its ingredients", toolcall.CalculateNutrition)
		final = first.Message.Content
	}

	payload, err := llm.ExtractJSON(final, func(p generatedPayload) error { return p.validate() })
	if err != nil {
		meta.Latency = time.Since(start)
		return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageParse, Err: err}
	}

	rec := Recipe{
		ID:              NewID(),
		Title:           strings.TrimSpace(payload.Title),
		Cuisine:         payload.Cuisine,
		MealType:        req.Slot.MealType,
		Servings:        payload.Servings,
		Summary:         payload.Summary,
		TimeMinutes:     payload.TimeMinutes,
		DifficultyLevel: payload.DifficultyLevel,
		DietaryTags:     payload.DietaryTags,
		Ingredients:     payload.Ingredients,
		Steps:           payload.Steps,
		Source:          SourceGenerated,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	if !functionCalled {
		servings := rec.Servings
		if servings <= 0 {
			servings = defaultServings(req)
		}
		args := toolcall.ArgumentsFrom(rec.IngredientInputs(), servings)
		if err := g.gateway.Validate(args); err != nil {
			meta.Latency = time.Since(start)
			return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFunctionCall, Err: err}
		}
		fnOut, err = g.gateway.Execute(ctx, args)
		if err != nil {
			meta.Latency = time.Since(start)
			return GenerateResult{Meta: meta}, &shared.GenerationError{Stage: StageFunctionCall, Err: err}
		}
	}

	if payload.Nutrition != nil {
		toolcall.Verify(*payload.Nutrition, fnOut)
	}
	info := fnOut.Info
	rec.Nutrition = &info
	rec.Servings = fnOut.Servings

	meta.Latency = time.Since(start)
	return GenerateResult{Recipe: rec, Nutrition: fnOut, FunctionCalled: functionCalled, Meta: meta}, nil
}

func defaultServings(req GenerateRequest) int {
	if req.Servings > 0 {
		return req.Servings
	}
	return 1
}

type promptData struct {
	StrategyName        string
	DailyCalories       string
	MacroSplit          string
	MealType            string
	Index               int
	CalorieTarget       int
	MacroFocus          string
	TimingNote          string
	Inspiration         []string
	DietaryRestrictions string
	Allergies           string
	Disliked            string
	AvoidTitles         string
	Servings            int
}

// BuildGeneratorPrompt renders the augmented prompt for one slot.
func BuildGeneratorPrompt(req GenerateRequest) (string, error) {
	data := promptData{
		StrategyName:        req.Strategy.StrategyName,
		DailyCalories:       formatWeights(req.Strategy.TargetCalories, "%.0f"),
		MacroSplit:          formatWeights(req.Strategy.MacroSplit, "%.2f"),
		MealType:            req.Slot.MealType.Lower(),
		Index:               req.Slot.Index,
		CalorieTarget:       req.Slot.CalorieTarget,
		MacroFocus:          formatWeights(req.Slot.MacroFocus, "%.2f"),
		TimingNote:          req.Slot.TimingNote,
		DietaryRestrictions: strings.Join(req.DietaryRestrictions, ", "),
		Allergies:           strings.Join(req.Allergies, ", "),
		Disliked:            strings.Join(req.DislikedIngredients, ", "),
		AvoidTitles:         strings.Join(req.AvoidTitles, "; "),
		Servings:            defaultServings(req),
	}
	for i, r := range req.Retrieved {
		if i == maxInspiration {
			break
		}
		data.Inspiration = append(data.Inspiration, fmt.Sprintf("%d. %s (%s) - Relevance: %.2f", i+1, r.Title, r.Cuisine, r.Score))
	}

	var buf bytes.Buffer
	if err := generatorTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatWeights(m map[string]float64, verb string) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fmt.Sprintf(verb, m[k])
	}
	return strings.Join(parts, ", ")
}
