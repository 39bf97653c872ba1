package nutrition

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"nutriplan/internal/shared"
)

// Store is the lookup surface the calculator needs from the ingredient database.
type Store interface {
	ByStableID(ctx context.Context, id string) (*Ingredient, error)
	ByLabel(ctx context.Context, label string) (*Ingredient, error)
	All(ctx context.Context) ([]Ingredient, error)
}

// IngredientInput is one line of a recipe as requested by the generator.
type IngredientInput struct {
	IngredientID string
	Name         string
	Quantity     float64
	Unit         string
}

// Info holds total and per-serving nutrition.
type Info struct {
	Calories                float64 `json:"calories"`
	Protein                 float64 `json:"protein"`
	Carbohydrates           float64 `json:"carbohydrates"`
	Fat                     float64 `json:"fat"`
	CaloriesPerServing      float64 `json:"caloriesPerServing"`
	ProteinPerServing       float64 `json:"proteinPerServing"`
	CarbohydratesPerServing float64 `json:"carbohydratesPerServing"`
	FatPerServing           float64 `json:"fatPerServing"`
}

// Result is the calculation outcome. Unresolved lists ingredient names that
// matched nothing and contributed zero.
type Result struct {
	Info       Info
	Unresolved []string
}

// Calculator resolves ingredients against the database and aggregates nutrition.
type Calculator struct {
	store    Store
	minMatch int
}

// NewCalculator returns a calculator whose substring fallback requires the
// shorter side of a match to be at least minMatch runes long.
func NewCalculator(store Store, minMatch int) *Calculator {
	return &Calculator{store: store, minMatch: minMatch}
}

// Calculate is deterministic for identical input and database contents.
func (c *Calculator) Calculate(ctx context.Context, ingredients []IngredientInput, servings int) (Result, error) {
	if servings <= 0 {
		return Result{}, &shared.ValidationError{Field: "servings", Message: "must be positive"}
	}
	if len(ingredients) == 0 {
		return Result{}, &shared.ValidationError{Field: "ingredients", Message: "must not be empty"}
	}

	var all []Ingredient
	var res Result
	for _, in := range ingredients {
		ing, err := c.resolve(ctx, in, &all)
		if err != nil {
			return Result{}, err
		}
		if ing == nil {
			log.Printf("[FC] Warning: ingredient not found in database: %s", in.Name)
			res.Unresolved = append(res.Unresolved, in.Name)
			continue
		}

		scale := ToBaseUnits(in.Quantity, in.Unit) / 100.0
		res.Info.Calories += ing.Calories * scale
		res.Info.Protein += ing.Protein * scale
		res.Info.Carbohydrates += ing.Carbohydrates * scale
		res.Info.Fat += ing.Fat * scale
	}

	s := float64(servings)
	res.Info.CaloriesPerServing = res.Info.Calories / s
	res.Info.ProteinPerServing = res.Info.Protein / s
	res.Info.CarbohydratesPerServing = res.Info.Carbohydrates / s
	res.Info.FatPerServing = res.Info.Fat / s
	return res, nil
}

// resolve tries stable id, then exact label, then substring containment.
// The full scan is loaded lazily once per calculation.
func (c *Calculator) resolve(ctx context.Context, in IngredientInput, all *[]Ingredient) (*Ingredient, error) {
	if in.IngredientID != "" {
		ing, err := c.store.ByStableID(ctx, in.IngredientID)
		if err != nil {
			return nil, fmt.Errorf("lookup by id %s: %w", in.IngredientID, err)
		}
		if ing != nil {
			return ing, nil
		}
	}

	name := NormalizeLabel(in.Name)
	if name == "" {
		return nil, nil
	}
	ing, err := c.store.ByLabel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup by label %q: %w", name, err)
	}
	if ing != nil {
		return ing, nil
	}

	if *all == nil {
		loaded, err := c.store.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("list ingredients: %w", err)
		}
		if loaded == nil {
			loaded = []Ingredient{}
		}
		*all = loaded
	}
	return bestSubstringMatch(name, *all, c.minMatch), nil
}

// bestSubstringMatch returns the candidate with the longest overlap.
// candidates must be sorted by stable id so ties resolve to the lowest id.
func bestSubstringMatch(name string, candidates []Ingredient, minMatch int) *Ingredient {
	var best *Ingredient
	bestLen := 0
	for i := range candidates {
		label := NormalizeLabel(candidates[i].Label)
		var overlap string
		switch {
		case strings.Contains(label, name):
			overlap = name
		case strings.Contains(name, label):
			overlap = label
		default:
			continue
		}
		n := utf8.RuneCountInString(overlap)
		if n < minMatch || n == 0 {
			continue
		}
		if n > bestLen {
			best = &candidates[i]
			bestLen = n
		}
	}
	return best
}
