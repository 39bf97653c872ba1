package mealplan

import (
	"errors"
	"sync"
	"testing"
	"time"

	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWeek_CreatesVersionOne(t *testing.T) {
	h := newHarness(t)
	h.generator.fail = func(req recipe.GenerateRequest) bool { return req.Slot.MealType == shared.Snack }

	view, err := h.manager.GenerateWeek(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, Weekly, view.Plan.Duration)
	assert.Equal(t, "UTC", view.Plan.Timezone)
	assert.Equal(t, 1, view.Version.Number)
	assert.Equal(t, ReasonInitial, view.Version.Reason)
	assert.Equal(t, view.Version.ID, view.Plan.CurrentVersionID)
	require.Len(t, view.Version.Days, 7)
	assert.Equal(t, 7, view.FailedMeals)
	assert.Len(t, view.Warnings, 7)
	assert.False(t, view.Stale)

	first := view.Version.Days[0]
	assert.Equal(t, "2025-03-10", first.Date)
	require.Len(t, first.Meals, 4)
	assert.Contains(t, first.Meals[0].RecipeTitle, "breakfast bowl", "titles are joined from the saved recipes")
	assert.True(t, first.Meals[2].IsPlaceholder)

	count, err := h.recipes.Count(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 21, count, "three generated recipes per day are persisted")
}

func TestGenerateWeek_PreconditionAbortsWithoutPlan(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.GenerateWeek(h.ctx, "stranger", "2025-03-10")
	var perr *shared.PreconditionError
	require.True(t, errors.As(err, &perr))

	plans, err := h.repo.ListPlans(h.ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestGenerateDay(t *testing.T) {
	h := newHarness(t)

	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, Daily, view.Plan.Duration)
	require.Len(t, view.Version.Days, 1)

	day, err := h.manager.Day(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, view.Plan.ID, day.PlanID)
	assert.Len(t, day.Day.Meals, 4)

	_, err = h.manager.Day(h.ctx, testUser, "2025-03-11")
	var nf *shared.NotFoundError
	assert.True(t, errors.As(err, &nf))

	latest, err := h.manager.Latest(h.ctx, testUser, Daily)
	require.NoError(t, err)
	assert.Equal(t, view.Plan.ID, latest.Plan.ID)
	_, err = h.manager.Latest(h.ctx, testUser, Weekly)
	assert.True(t, errors.As(err, &nf))
}

func TestVersionHistory_RegenerateAndRestore(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateWeek(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID
	v1 := snapshot(h.version(planID, 1))

	regen, err := h.manager.Regenerate(h.ctx, testUser, planID)
	require.NoError(t, err)
	assert.Equal(t, 2, regen.Version.Number)
	assert.Equal(t, ReasonRegenerated, regen.Version.Reason)
	assert.Equal(t, "2025-03-10", regen.Version.Days[0].Date)
	assert.NotEqual(t, v1, snapshot(&regen.Version), "regeneration produces new recipes")

	_, err = h.manager.Regenerate(h.ctx, testUser, planID)
	require.NoError(t, err)

	restored, err := h.manager.Restore(h.ctx, testUser, planID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, restored.Version.Number)
	assert.Equal(t, ReasonRestored, restored.Version.Reason)
	assert.Equal(t, v1, snapshot(&restored.Version), "restore clones verbatim")

	assert.Equal(t, v1, snapshot(h.version(planID, 1)), "version 1 is never mutated")

	history, err := h.manager.History(h.ctx, testUser, planID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, s := range history {
		assert.Equal(t, i+1, s.Number)
		assert.Equal(t, 7, s.DayCount)
		assert.Equal(t, 28, s.MealCount)
		assert.Equal(t, i == 3, s.Current)
	}
	assert.Equal(t, []VersionReason{ReasonInitial, ReasonRegenerated, ReasonRegenerated, ReasonRestored},
		[]VersionReason{history[0].Reason, history[1].Reason, history[2].Reason, history[3].Reason})

	_, err = h.manager.Restore(h.ctx, testUser, planID, 42)
	var nf *shared.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "MealPlanVersion", nf.Kind)

	v2, err := h.manager.Version(h.ctx, testUser, planID, 2)
	require.NoError(t, err)
	assert.Equal(t, ReasonRegenerated, v2.Reason)
}

func TestVersionHistory_CustomMealsSurvive(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateWeek(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID

	custom, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{
		Date: "2025-03-11", MealType: shared.Snack, Name: "Protein shake", Calories: 180,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, custom.Index, "index follows the highest snack index of the day")
	assert.Equal(t, 19, custom.PlannedTime.Hour())

	regen, err := h.manager.Regenerate(h.ctx, testUser, planID)
	require.NoError(t, err)
	assert.True(t, hasCustom(regen.Version.Days[1], "Protein shake"), "regeneration carries custom meals")
	assert.Len(t, regen.Version.Days[1].Meals, 5)

	restored, err := h.manager.Restore(h.ctx, testUser, planID, 1)
	require.NoError(t, err)
	assert.True(t, hasCustom(restored.Version.Days[1], "Protein shake"), "custom meal was added to version 1 in place")

	v2 := h.version(planID, 2)
	for _, m := range v2.Days[1].Meals {
		if m.IsCustom {
			assert.Equal(t, 180, m.PlannedCalories)
			assert.Equal(t, "Protein shake", m.Title())
		}
	}
}

func hasCustom(d DayPlan, name string) bool {
	for _, m := range d.Meals {
		if m.IsCustom && m.CustomName == name {
			return true
		}
	}
	return false
}

func TestRegenerateDay_ClonesOtherDays(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateWeek(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID
	before := h.version(planID, 1)

	after, err := h.manager.RegenerateDay(h.ctx, testUser, planID, "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, ReasonMealRegenerated, after.Version.Reason)
	assert.Equal(t, 2, after.Version.Number)
	require.Len(t, after.Version.Days, 7)

	for i := range before.Days {
		same := snapshot(&Version{Days: before.Days[i : i+1]})
		got := snapshot(&Version{Days: after.Version.Days[i : i+1]})
		if before.Days[i].Date == "2025-03-12" {
			assert.NotEqual(t, same, got)
		} else {
			assert.Equal(t, same, got)
		}
	}

	_, err = h.manager.RegenerateDay(h.ctx, testUser, planID, "2025-04-01")
	var nf *shared.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestManager_Ownership(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)

	_, err = h.manager.Regenerate(h.ctx, "intruder", view.Plan.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, err.Error(), "User intruder does not own MealPlan")

	_, err = h.manager.Get(h.ctx, testUser, 999)
	var nf *shared.NotFoundError
	assert.True(t, errors.As(err, &nf))

	err = h.manager.DeleteCustomMeal(h.ctx, "intruder", view.Version.Days[0].Meals[0].ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegenerate_ConcurrentCallsGetDistinctVersions(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.manager.Regenerate(h.ctx, testUser, view.Plan.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	history, err := h.manager.History(h.ctx, testUser, view.Plan.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, s := range history {
		assert.Equal(t, i+1, s.Number)
	}
}

func TestGet_StaleAfterProfileChange(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, view.Stale)

	h.saveProfile(profile.Profile{UserID: testUser, Allergies: []string{"shellfish"}, CalorieTarget: 2000})
	got, err := h.manager.Get(h.ctx, testUser, view.Plan.ID)
	require.NoError(t, err)
	assert.True(t, got.Stale)
}

func TestReplaceMeal_VersionCommittedDuringGenerationConflicts(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID
	dinner := mealOfType(t, view.Version.Days[0], shared.Dinner)
	v1 := snapshot(h.version(planID, 1))
	recipesBefore, err := h.recipes.Count(h.ctx)
	require.NoError(t, err)

	h.generator.onNext = func() {
		_, err := h.manager.Restore(h.ctx, testUser, planID, 1)
		require.NoError(t, err)
	}
	_, err = h.manager.ReplaceMeal(h.ctx, testUser, dinner.ID, ReplaceGenerated)
	require.ErrorIs(t, err, shared.ErrConflict)

	assert.Equal(t, v1, snapshot(h.version(planID, 1)), "superseded version is unchanged")
	history, err := h.manager.History(h.ctx, testUser, planID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[1].Current)

	recipesAfter, err := h.recipes.Count(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, recipesBefore, recipesAfter, "the rejected replacement is rolled back")
}

func TestMealWrites_RejectSupersededVersions(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID
	custom, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-10", MealType: shared.Snack, Name: "Apple"})
	require.NoError(t, err)
	breakfast := mealOfType(t, view.Version.Days[0], shared.Breakfast)

	_, err = h.manager.Regenerate(h.ctx, testUser, planID)
	require.NoError(t, err)
	v1 := snapshot(h.version(planID, 1))

	assert.ErrorIs(t, h.repo.UpdateMealRecipe(h.ctx, breakfast.ID, "other", 100), shared.ErrConflict)
	assert.ErrorIs(t, h.repo.UpdateMealTime(h.ctx, breakfast.ID, breakfast.PlannedTime.Add(time.Hour)), shared.ErrConflict)
	assert.ErrorIs(t, h.repo.DeleteMeal(h.ctx, custom.ID), shared.ErrConflict)

	_, err = h.manager.MoveMeal(h.ctx, testUser, breakfast.ID, "down")
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.ErrorIs(t, h.manager.DeleteCustomMeal(h.ctx, testUser, custom.ID), shared.ErrConflict)

	assert.Equal(t, v1, snapshot(h.version(planID, 1)))
}

func TestRegenerate_KeepsCustomMealAddedDuringAssembly(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateDay(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)

	h.generator.onNext = func() {
		_, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{
			Date: "2025-03-10", MealType: shared.Snack, Name: "Protein shake", Calories: 180,
		})
		require.NoError(t, err)
	}
	regen, err := h.manager.Regenerate(h.ctx, testUser, view.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, regen.Version.Number)
	assert.True(t, hasCustom(regen.Version.Days[0], "Protein shake"))
	assert.Len(t, regen.Version.Days[0].Meals, 5)
}

func TestRegenerateDay_ClonesEditsMadeDuringAssembly(t *testing.T) {
	h := newHarness(t)
	view, err := h.manager.GenerateWeek(h.ctx, testUser, "2025-03-10")
	require.NoError(t, err)
	planID := view.Plan.ID
	custom, err := h.manager.AddCustomMeal(h.ctx, testUser, CustomMealInput{Date: "2025-03-11", MealType: shared.Snack, Name: "Apple"})
	require.NoError(t, err)

	h.generator.onNext = func() {
		require.NoError(t, h.manager.DeleteCustomMeal(h.ctx, testUser, custom.ID))
	}
	after, err := h.manager.RegenerateDay(h.ctx, testUser, planID, "2025-03-12")
	require.NoError(t, err)
	assert.False(t, hasCustom(after.Version.Days[1], "Apple"), "other days are cloned at commit time")
	assert.Len(t, after.Version.Days[1].Meals, 4)
}
