package mealplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nutriplan/internal/nutrition"
	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
	"nutriplan/internal/testutil"

	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

type fakeRetriever struct {
	mu      sync.Mutex
	err     error
	queries []recipe.Query
}

func (f *fakeRetriever) Retrieve(_ context.Context, q recipe.Query, _ int) ([]recipe.RetrievedRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return []recipe.RetrievedRecipe{{ID: "seed", Title: "Seed Recipe", Cuisine: "Any", Score: 0.8}}, nil
}

// fakeGenerator returns uniquely titled recipes. fail decides per request
// whether to return a generation error; ingredients overrides the default list.
// onNext runs once, inside the next call, before the recipe is returned.
type fakeGenerator struct {
	mu          sync.Mutex
	calls       int
	fail        func(recipe.GenerateRequest) bool
	onNext      func()
	ingredients []recipe.Ingredient
	calories    float64
}

func (f *fakeGenerator) Generate(_ context.Context, req recipe.GenerateRequest) (recipe.GenerateResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	hook := f.onNext
	f.onNext = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	meta := shared.AgentMeta{AgentName: "RecipeGenerator", Usage: shared.TokenUsage{TotalTokens: 10}}
	if f.fail != nil && f.fail(req) {
		return recipe.GenerateResult{Meta: meta}, &shared.GenerationError{Stage: recipe.StageParse, Err: errors.New("malformed JSON")}
	}

	ingredients := f.ingredients
	if ingredients == nil {
		ingredients = []recipe.Ingredient{{Name: "rice", Quantity: 100, Unit: "g"}}
	}
	cal := f.calories
	if cal == 0 {
		cal = float64(req.Slot.CalorieTarget)
	}
	rec := recipe.Recipe{
		ID:          recipe.NewID(),
		Title:       fmt.Sprintf("%s bowl %d", req.Slot.MealType.Lower(), n),
		MealType:    req.Slot.MealType,
		Servings:    1,
		Ingredients: ingredients,
		Steps:       []recipe.Step{{StepNumber: 1, Instruction: "Cook."}},
		Nutrition: &nutrition.Info{
			Calories: cal, CaloriesPerServing: cal,
			Protein: 30, ProteinPerServing: 30,
			Carbohydrates: 50, CarbohydratesPerServing: 50,
			Fat: 10, FatPerServing: 10,
		},
		Source: recipe.SourceGenerated,
	}
	return recipe.GenerateResult{Recipe: rec, FunctionCalled: true, Meta: meta}, nil
}

type metaSink struct {
	mu    sync.Mutex
	metas []shared.AgentMeta
}

func (m *metaSink) RecordMeta(_ context.Context, meta shared.AgentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas = append(m.metas, meta)
	return nil
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	strategies *strategy.MemoryStore
	profiles   *profile.Repository
	recipes    *recipe.Repository
	retriever  *fakeRetriever
	generator  *fakeGenerator
	metrics    *metaSink
	days       *DayAssembler
	manager    *Manager
	repo       *Repository
}

func defaultStructure() strategy.MealStructure {
	return strategy.MealStructure{
		Meals: []strategy.MealSlot{
			{MealType: shared.Dinner, Index: 0, CalorieTarget: 700},
			{MealType: shared.Breakfast, Index: 0, CalorieTarget: 450, MacroFocus: map[string]float64{"protein": 0.4}},
			{MealType: shared.Snack, Index: 1, CalorieTarget: 200},
			{MealType: shared.Lunch, Index: 0, CalorieTarget: 650},
		},
		TotalCaloriesDistributed: 2000,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	h := &harness{
		t:          t,
		ctx:        context.Background(),
		strategies: strategy.NewMemoryStore(time.Hour),
		profiles:   profile.NewRepository(db),
		recipes:    recipe.NewRepository(db),
		retriever:  &fakeRetriever{},
		generator:  &fakeGenerator{},
		metrics:    &metaSink{},
		repo:       NewRepository(db),
	}
	h.days = NewDayAssembler(h.strategies, h.profiles, h.retriever, h.generator, h.recipes, h.metrics)
	h.manager = NewManager(db, testutil.NewTestUoW(db), h.days)

	require.NoError(t, h.strategies.PutStrategy(h.ctx, testUser, strategy.Strategy{
		StrategyName:   "Balanced",
		TargetCalories: map[string]float64{"daily": 2000},
		MacroSplit:     map[string]float64{"protein": 0.3, "carbs": 0.4, "fat": 0.3},
	}))
	require.NoError(t, h.strategies.PutStructure(h.ctx, testUser, defaultStructure()))
	h.saveProfile(profile.Profile{
		UserID:        testUser,
		Timezone:      "UTC",
		CalorieTarget: 2000, ProteinTarget: 150, CarbsTarget: 200, FatTarget: 70,
	})
	return h
}

func (h *harness) saveProfile(p profile.Profile) {
	h.t.Helper()
	require.NoError(h.t, h.profiles.Save(h.ctx, p))
}

func (h *harness) saveCatalog(recs ...recipe.Recipe) {
	h.t.Helper()
	for i := range recs {
		require.NoError(h.t, h.recipes.Save(h.ctx, &recs[i]))
	}
}

func (h *harness) version(planID int64, number int) *Version {
	h.t.Helper()
	v, err := h.repo.GetVersionByNumber(h.ctx, planID, number)
	require.NoError(h.t, err)
	require.NotNil(h.t, v)
	return v
}

// snapshot reduces a version to the fields cloning must preserve.
func snapshot(v *Version) []string {
	var out []string
	for _, d := range v.Days {
		for _, m := range d.Meals {
			out = append(out, fmt.Sprintf("%s|%s|%d|%s|%s|%s|%t|%t|%d|%d",
				d.Date, m.MealType, m.Index, m.PlannedTime.UTC().Format(time.RFC3339),
				m.RecipeID, m.CustomName, m.IsCustom, m.IsPlaceholder, m.CalorieTarget, m.PlannedCalories))
		}
		if len(d.Meals) == 0 {
			out = append(out, d.Date+"|empty")
		}
	}
	return out
}
