package recipe

import (
	"fmt"
	"strings"

	"nutriplan/internal/nutrition"
	"nutriplan/internal/shared"
)

// Source records where a catalog recipe came from.
type Source string

const (
	SourceCatalog   Source = "catalog"
	SourceGenerated Source = "generated"
)

// Ingredient is one line of a recipe.
type Ingredient struct {
	IngredientID string  `json:"ingredientId,omitempty"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// Step is one preparation step.
type Step struct {
	StepNumber  int    `json:"stepNumber"`
	StepTitle   string `json:"stepTitle,omitempty"`
	Instruction string `json:"instruction"`
}

// Recipe is a catalog entry, either ingested from the blog or generated.
type Recipe struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Cuisine         string          `json:"cuisine,omitempty"`
	MealType        shared.MealType `json:"mealType,omitempty"`
	Servings        int             `json:"servings"`
	Summary         string          `json:"summary,omitempty"`
	TimeMinutes     int             `json:"timeMinutes,omitempty"`
	DifficultyLevel string          `json:"difficultyLevel,omitempty"`
	DietaryTags     []string        `json:"dietaryTags,omitempty"`
	Ingredients     []Ingredient    `json:"ingredients"`
	Steps           []Step          `json:"preparationSteps"`
	Nutrition       *nutrition.Info `json:"nutrition,omitempty"`
	Source          Source          `json:"source"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
}

// RecipeWithEmbedding pairs a recipe with its vector.
type RecipeWithEmbedding struct {
	Recipe    Recipe
	Embedding []float32
}

// PostData is the raw blog post handed to the extractor.
type PostData struct {
	ID        string
	Title     string
	HTML      string
	UpdatedAt string
}

// ToEmbeddingText is the semantic representation indexed for retrieval.
func (r Recipe) ToEmbeddingText() string {
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		names = append(names, ing.Name)
	}
	return fmt.Sprintf("Title: %s\nCuisine: %s\nMeal: %s\nTags: %s\nIngredients: %s\nSummary: %s",
		r.Title, r.Cuisine, r.MealType.Lower(), strings.Join(r.DietaryTags, ", "), strings.Join(names, ", "), r.Summary)
}

// IngredientInputs converts the ingredient list for the nutrition calculator.
func (r Recipe) IngredientInputs() []nutrition.IngredientInput {
	out := make([]nutrition.IngredientInput, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		out = append(out, nutrition.IngredientInput{
			IngredientID: ing.IngredientID,
			Name:         ing.Name,
			Quantity:     ing.Quantity,
			Unit:         ing.Unit,
		})
	}
	return out
}

// IngredientText joins ingredient names for keyword filtering.
func (r Recipe) IngredientText() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(r.Title))
	for _, ing := range r.Ingredients {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(ing.Name))
	}
	return b.String()
}

// CaloriesPerServing returns the stored per-serving calories, or zero.
func (r Recipe) CaloriesPerServing() float64 {
	if r.Nutrition == nil {
		return 0
	}
	return r.Nutrition.CaloriesPerServing
}
