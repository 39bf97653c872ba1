package mealplan

import (
	"errors"
	"testing"
	"time"

	"nutriplan/internal/nutrition"
	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mealOfType(t *testing.T, d DayPlan, mt shared.MealType) Meal {
	t.Helper()
	for _, m := range d.Meals {
		if m.MealType == mt {
			return m
		}
	}
	t.Fatalf("no %s meal on %s", mt, d.Date)
	return Meal{}
}

func TestReplaceMeal_CatalogClosestCaloriesUnusedTitle(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	day := view.Version.Days[0]
	breakfast := mealOfType(t, day, shared.Breakfast)
	lunch := mealOfType(t, day, shared.Lunch)

	h.saveCatalog(
		recipe.Recipe{ID: "cat-a", Title: breakfast.RecipeTitle, MealType: shared.Lunch},
		recipe.Recipe{ID: "cat-b", Title: "Tuna Wrap", MealType: shared.Lunch, Nutrition: &nutrition.Info{CaloriesPerServing: 640}},
		recipe.Recipe{ID: "cat-c", Title: "Pasta", MealType: shared.Lunch, Nutrition: &nutrition.Info{CaloriesPerServing: 300}},
	)

	got, err := h.manager.ReplaceMeal(h.ctx, testUser, lunch.ID, ReplaceCatalog)
	require.NoError(t, err)
	assert.Equal(t, lunch.ID, got.ID, "replacement mutates the meal in place")
	assert.Equal(t, "cat-b", got.RecipeID)
	assert.Equal(t, "Tuna Wrap", got.RecipeTitle)
	assert.Equal(t, 640, got.PlannedCalories)
	assert.Equal(t, lunch.PlannedTime.UTC(), got.PlannedTime.UTC())

	history, err := h.manager.History(h.ctx, testUser, view.Plan.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "meal replacement never creates a version")
}

func TestReplaceMeal_Generated(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	dinner := mealOfType(t, view.Version.Days[0], shared.Dinner)

	before, err := h.recipes.Count(h.ctx)
	require.NoError(t, err)

	got, err := h.manager.ReplaceMeal(h.ctx, testUser, dinner.ID, ReplaceGenerated)
	require.NoError(t, err)
	assert.NotEqual(t, dinner.RecipeID, got.RecipeID)
	assert.Contains(t, got.RecipeTitle, "dinner bowl")

	after, err := h.recipes.Count(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	h.generator.fail = func(recipe.GenerateRequest) bool { return true }
	_, err = h.manager.ReplaceMeal(h.ctx, testUser, dinner.ID, ReplaceGenerated)
	var gerr *shared.GenerationError
	assert.True(t, errors.As(err, &gerr))
}

func TestReplaceMeal_Rejections(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	lunch := mealOfType(t, view.Version.Days[0], shared.Lunch)

	_, err = h.manager.ReplaceMeal(h.ctx, testUser, lunch.ID, "random")
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "source", verr.Field)

	_, err = h.manager.ReplaceMeal(h.ctx, testUser, 12345, ReplaceCatalog)
	var nf *shared.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = h.manager.ReplaceMeal(h.ctx, testUser, lunch.ID, ReplaceCatalog)
	assert.True(t, errors.As(err, &nf), "no catalog alternative besides the current recipe")

	custom, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: shared.Lunch, Name: "Leftovers"})
	require.NoError(t, err)
	_, err = h.manager.ReplaceMeal(h.ctx, testUser, custom.ID, ReplaceCatalog)
	assert.True(t, errors.As(err, &verr))

	_, err = h.manager.Regenerate(h.ctx, testUser, view.Plan.ID)
	require.NoError(t, err)
	_, err = h.manager.ReplaceMeal(h.ctx, testUser, lunch.ID, ReplaceGenerated)
	assert.ErrorIs(t, err, shared.ErrConflict, "meals of superseded versions are frozen")
}

func TestMoveMeal(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	meals := view.Version.Days[0].Meals
	breakfast, lunch := meals[0], meals[1]

	day, err := h.manager.MoveMeal(h.ctx, testUser, lunch.ID, "UP")
	require.NoError(t, err)
	require.Len(t, day.Meals, 4)
	assert.Equal(t, lunch.ID, day.Meals[0].ID)
	assert.Equal(t, breakfast.ID, day.Meals[1].ID)
	assert.Equal(t, breakfast.PlannedTime.UTC(), day.Meals[0].PlannedTime.UTC())
	assert.Equal(t, lunch.PlannedTime.UTC(), day.Meals[1].PlannedTime.UTC())

	unchanged, err := h.manager.MoveMeal(h.ctx, testUser, lunch.ID, "up")
	require.NoError(t, err)
	assert.Equal(t, lunch.ID, unchanged.Meals[0].ID, "moving the first meal up is a no-op")

	last := meals[3]
	unchanged, err = h.manager.MoveMeal(h.ctx, testUser, last.ID, "down")
	require.NoError(t, err)
	assert.Equal(t, last.ID, unchanged.Meals[3].ID)

	_, err = h.manager.MoveMeal(h.ctx, testUser, lunch.ID, "sideways")
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "direction must be 'up' or 'down'", verr.Message)
}

func TestCustomMeals(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: shared.Snack, Name: "Apple"})
	var nf *shared.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "2025-03-10", nf.ID)

	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)

	var verr *shared.ValidationError
	_, err = h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: "BRUNCH", Name: "Eggs"})
	assert.True(t, errors.As(err, &verr))
	_, err = h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: shared.Snack, Name: "  "})
	assert.True(t, errors.As(err, &verr))

	apple, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: shared.Breakfast, Name: "Apple", Calories: 95})
	require.NoError(t, err)
	assert.True(t, apple.IsCustom)
	assert.Equal(t, 1, apple.Index)

	day, err := h.manager.Day(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, day.Day.Meals, 5)

	err = h.manager.DeleteCustomMeal(h.ctx, testUser, view.Version.Days[0].Meals[0].ID)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Cannot delete non-custom meal", verr.Message)

	require.NoError(t, h.manager.DeleteCustomMeal(h.ctx, testUser, apple.ID))
	day, err = h.manager.Day(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, day.Day.Meals, 4)
}

func TestAddCustomMeal_PlannedTimeMustFallOnDate(t *testing.T) {
	h := newHarness(t)
	h.saveProfile(profile.Profile{UserID: testUser, Timezone: "America/New_York", CalorieTarget: 2000})
	_, err := h.manager.GenerateDay(h.ctx, testUser, "2025-07-01")
	require.NoError(t, err)

	nextDay := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	_, err = h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{
		Date: "2025-07-01", MealType: shared.Snack, Name: "Late snack", PlannedTime: &nextDay,
	})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "plannedTime", verr.Field)

	// 02:00 UTC on July 2nd is still July 1st in New York.
	lateEvening := time.Date(2025, 7, 2, 2, 0, 0, 0, time.UTC)
	meal, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{
		Date: "2025-07-01", MealType: shared.Snack, Name: "Late snack", PlannedTime: &lateEvening,
	})
	require.NoError(t, err)
	assert.Equal(t, lateEvening, meal.PlannedTime)
}
