package recipe

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"nutriplan/internal/llm"
	"nutriplan/internal/shared"
)

//go:embed extractor_prompt.md
var extractorPrompt string

var extractorTmpl = template.Must(template.New("extractor").Parse(extractorPrompt))

type ExtractorResult struct {
	Recipe Recipe
	Meta   shared.AgentMeta
}

// extractedRecipe mirrors the extractor output; meal is free text from the model.
type extractedRecipe struct {
	Title           string       `json:"title"`
	Cuisine         string       `json:"cuisine"`
	Meal            string       `json:"meal"`
	Servings        int          `json:"servings"`
	Summary         string       `json:"summary"`
	TimeMinutes     int          `json:"timeMinutes"`
	DifficultyLevel string       `json:"difficultyLevel"`
	DietaryTags     []string     `json:"dietaryTags"`
	Ingredients     []Ingredient `json:"ingredients"`
	Steps           []Step       `json:"preparationSteps"`
}

// NormalizeHTML extracts structured recipe information from a blog post and
// generates the vector embedding used for retrieval.
func NormalizeHTML(
	ctx context.Context,
	textGen llm.TextGenerator,
	embGen llm.EmbeddingGenerator,
	data PostData,
) (RecipeWithEmbedding, shared.AgentMeta, error) {
	result, err := runExtractor(ctx, textGen, data)
	if err != nil {
		return RecipeWithEmbedding{}, result.Meta, err
	}

	embedding, err := embGen.GenerateEmbedding(ctx, result.Recipe.ToEmbeddingText())
	if err != nil {
		return RecipeWithEmbedding{}, result.Meta, fmt.Errorf("failed to generate embedding: %w", err)
	}

	return RecipeWithEmbedding{
		Recipe:    result.Recipe,
		Embedding: embedding,
	}, result.Meta, nil
}

func runExtractor(ctx context.Context, textGen llm.TextGenerator, data PostData) (ExtractorResult, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := extractorTmpl.Execute(&buf, data); err != nil {
		return ExtractorResult{}, err
	}

	resp, err := textGen.GenerateContent(ctx, buf.String())
	if err != nil {
		return ExtractorResult{}, fmt.Errorf("failed to get LLM response: %w", err)
	}
	meta := shared.AgentMeta{AgentName: "Extractor", Usage: resp.Usage, Latency: time.Since(start)}

	out, err := llm.ExtractJSON(resp.Content, func(e extractedRecipe) error {
		if strings.TrimSpace(e.Title) == "" {
			return errors.New("missing title")
		}
		if len(e.Ingredients) == 0 {
			return errors.New("no ingredients")
		}
		return nil
	})
	if err != nil {
		return ExtractorResult{Meta: meta}, fmt.Errorf("failed to parse extractor output for post %s: %w", data.ID, err)
	}

	rec := Recipe{
		ID:              data.ID,
		Title:           out.Title,
		Cuisine:         out.Cuisine,
		Servings:        out.Servings,
		Summary:         out.Summary,
		TimeMinutes:     out.TimeMinutes,
		DifficultyLevel: out.DifficultyLevel,
		DietaryTags:     out.DietaryTags,
		Ingredients:     out.Ingredients,
		Steps:           out.Steps,
		Source:          SourceCatalog,
		UpdatedAt:       data.UpdatedAt,
	}
	if mt, err := shared.ParseMealType(out.Meal); err == nil {
		rec.MealType = mt
	}
	if rec.Servings <= 0 {
		rec.Servings = 1
	}

	meta.Latency = time.Since(start)
	return ExtractorResult{Recipe: rec, Meta: meta}, nil
}
