package mealplan

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"nutriplan/internal/database"
	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
)

// ReplaceSource selects where a replacement recipe comes from.
type ReplaceSource string

const (
	ReplaceGenerated ReplaceSource = "generated"
	ReplaceCatalog   ReplaceSource = "catalog"
)

// Direction moves a meal within its day.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" or "down" in any case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", &shared.ValidationError{Field: "direction", Message: "direction must be 'up' or 'down'"}
}

// CustomMealInput describes a user-entered meal.
type CustomMealInput struct {
	Date        string          `json:"date"`
	MealType    shared.MealType `json:"mealType"`
	Name        string          `json:"name"`
	PlannedTime *time.Time      `json:"plannedTime,omitempty"`
	Calories    int             `json:"calories"`
}

// estimatedCalories is used for catalog recipes that carry no nutrition.
func estimatedCalories(t shared.MealType) int {
	switch t {
	case shared.Breakfast:
		return 450
	case shared.Lunch, shared.Dinner:
		return 650
	case shared.Snack:
		return 225
	}
	return 500
}

// ReplaceMeal swaps the recipe of one meal of the current version in place.
func (m *Manager) ReplaceMeal(ctx context.Context, userID string, mealID int64, source ReplaceSource) (*Meal, error) {
	if source != ReplaceGenerated && source != ReplaceCatalog {
		return nil, &shared.ValidationError{Field: "source", Message: "source must be 'generated' or 'catalog'"}
	}
	repo := NewRepository(m.db)
	ref, err := m.mutableMeal(ctx, repo, userID, mealID)
	if err != nil {
		return nil, err
	}
	if ref.Meal.IsCustom {
		return nil, &shared.ValidationError{Field: "mealId", Message: "custom meals cannot be replaced"}
	}
	log.Printf("[MEAL_REPLACE] Requested meal %d (%s) source=%s", mealID, ref.Meal.Title(), source)

	day, err := repo.GetDayByID(ctx, ref.Meal.DayPlanID)
	if err != nil {
		return nil, err
	}
	used := titleSet(day.Meals, mealID)
	var dayIDs []string
	for _, meal := range day.Meals {
		if meal.RecipeID != "" {
			dayIDs = append(dayIDs, meal.RecipeID)
		}
	}

	in, err := m.days.LoadInputs(ctx, userID)
	if err != nil {
		return nil, err
	}
	slot := slotFor(in.Structure, ref.Meal)

	var (
		chosen    *recipe.Recipe
		persisted []recipe.Recipe
	)
	switch source {
	case ReplaceGenerated:
		o := m.days.FillSlot(ctx, in, ref.Date, slot, used, dayIDs)
		if o.Status == SlotPlaceholder {
			return nil, fmt.Errorf("failed to generate replacement for meal %d: %w", mealID, o.Err)
		}
		chosen = o.Recipe
		if o.Status == SlotGenerated {
			persisted = []recipe.Recipe{*o.Recipe}
		}
	case ReplaceCatalog:
		chosen, err = m.pickCatalog(ctx, in.Profile, slot, used, ref.Meal.RecipeID)
		if err != nil {
			return nil, err
		}
	}

	planned := recipeMeal(slot, ref.Meal.PlannedTime, *chosen).PlannedCalories
	unlock := m.locks.lock(ref.PlanID)
	defer unlock()
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		if err := saveRecipes(ctx, tx, persisted); err != nil {
			return err
		}
		return NewRepository(tx).UpdateMealRecipe(ctx, mealID, chosen.ID, planned)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[MEAL_REPLACE] Meal %d: %s -> %s", mealID, ref.Meal.Title(), chosen.Title)

	updated, err := repo.GetMeal(ctx, mealID)
	if err != nil {
		return nil, err
	}
	return &updated.Meal, nil
}

// pickCatalog chooses the filtered catalog recipe closest to the slot's calories.
func (m *Manager) pickCatalog(ctx context.Context, p profile.Profile, slot strategy.MealSlot, used map[string]bool, currentID string) (*recipe.Recipe, error) {
	candidates, err := m.days.catalog.ListByMealType(ctx, slot.MealType)
	if err != nil {
		return nil, err
	}

	target := slot.CalorieTarget
	var ok []recipe.Recipe
	for _, c := range candidates {
		if c.ID == currentID || Violation(c, p, used) != "" {
			continue
		}
		ok = append(ok, c)
	}
	if len(ok) == 0 {
		return nil, &shared.NotFoundError{Kind: "Recipe", ID: "catalog alternative for " + string(slot.MealType)}
	}

	if target > 0 {
		distance := func(r recipe.Recipe) float64 {
			cal := r.CaloriesPerServing()
			if cal == 0 {
				cal = float64(estimatedCalories(slot.MealType))
			}
			return math.Abs(cal - float64(target))
		}
		sort.SliceStable(ok, func(i, j int) bool { return distance(ok[i]) < distance(ok[j]) })
	}
	return &ok[0], nil
}

// MoveMeal swaps a meal's planned time with its neighbour. Moving past either
// end of the day is a no-op. The day is returned in its new order.
func (m *Manager) MoveMeal(ctx context.Context, userID string, mealID int64, direction string) (*DayPlan, error) {
	dir, err := ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	repo := NewRepository(m.db)
	ref, err := m.mutableMeal(ctx, repo, userID, mealID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(ref.PlanID)
	defer unlock()
	var day *DayPlan
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		r := NewRepository(tx)
		if _, err := m.mutableMeal(ctx, r, userID, mealID); err != nil {
			return err
		}
		var err error
		if day, err = r.GetDayByID(ctx, ref.Meal.DayPlanID); err != nil {
			return err
		}

		pos := -1
		for i, meal := range day.Meals {
			if meal.ID == mealID {
				pos = i
				break
			}
		}
		other := pos - 1
		if dir == Down {
			other = pos + 1
		}
		if pos < 0 || other < 0 || other >= len(day.Meals) {
			return nil
		}

		a, b := day.Meals[pos], day.Meals[other]
		if err := r.UpdateMealTime(ctx, a.ID, b.PlannedTime); err != nil {
			return err
		}
		return r.UpdateMealTime(ctx, b.ID, a.PlannedTime)
	})
	if err != nil {
		return nil, err
	}
	return repo.GetDayByID(ctx, day.ID)
}

// AddCustomMeal adds a user-entered meal to the current plan day for in.Date.
func (m *Manager) AddCustomMeal(ctx context.Context, userID string, in CustomMealInput) (*Meal, error) {
	if _, err := ParseDate(in.Date); err != nil {
		return nil, err
	}
	if _, err := shared.ParseMealType(string(in.MealType)); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &shared.ValidationError{Field: "name", Message: "custom meal name must not be blank"}
	}
	if in.Calories < 0 {
		return nil, &shared.ValidationError{Field: "calories", Message: "must not be negative"}
	}

	plan, day, err := NewRepository(m.db).FindCurrentDay(ctx, userID, in.Date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &shared.NotFoundError{Kind: "DayPlan", ID: in.Date}
	}
	loc := time.UTC
	if l, err := time.LoadLocation(plan.Timezone); err == nil {
		loc = l
	}
	if in.PlannedTime != nil && in.PlannedTime.In(loc).Format(DateLayout) != in.Date {
		return nil, &shared.ValidationError{Field: "plannedTime", Message: "planned time must fall on " + in.Date}
	}

	unlock := m.locks.lock(plan.ID)
	defer unlock()
	var meal Meal
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		// The day is looked up again under the lock; a version committed
		// since the first lookup has a different day row.
		p, d, err := NewRepository(tx).FindCurrentDay(ctx, userID, in.Date)
		if err != nil {
			return err
		}
		if d == nil || p.ID != plan.ID {
			return fmt.Errorf("%w: plan %d changed while adding a meal to %s", shared.ErrConflict, plan.ID, in.Date)
		}

		index := 0
		for _, existing := range d.Meals {
			if existing.MealType == in.MealType && existing.Index >= index {
				index = existing.Index + 1
			}
		}
		var planned time.Time
		if in.PlannedTime != nil {
			planned = *in.PlannedTime
		} else if planned, err = DefaultMealTime(in.Date, loc, in.MealType, index); err != nil {
			return err
		}

		meal = Meal{
			DayPlanID:       d.ID,
			MealType:        in.MealType,
			Index:           index,
			PlannedTime:     planned,
			CustomName:      name,
			IsCustom:        true,
			PlannedCalories: in.Calories,
		}
		return NewRepository(tx).InsertMeal(ctx, &meal)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[CUSTOM_MEAL] Added %q to %s for user %s", name, in.Date, userID)
	return &meal, nil
}

// DeleteCustomMeal removes a custom meal from the current version.
func (m *Manager) DeleteCustomMeal(ctx context.Context, userID string, mealID int64) error {
	repo := NewRepository(m.db)
	ref, err := m.mutableMeal(ctx, repo, userID, mealID)
	if err != nil {
		return err
	}
	if !ref.Meal.IsCustom {
		return &shared.ValidationError{Field: "mealId", Message: "Cannot delete non-custom meal"}
	}
	unlock := m.locks.lock(ref.PlanID)
	defer unlock()
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		return NewRepository(tx).DeleteMeal(ctx, mealID)
	})
	if err != nil {
		return err
	}
	log.Printf("[CUSTOM_MEAL] Deleted meal %d (%s) for user %s", mealID, ref.Meal.CustomName, userID)
	return nil
}

// mutableMeal loads a meal the user owns in the current version of its plan.
func (m *Manager) mutableMeal(ctx context.Context, repo *Repository, userID string, mealID int64) (*MealRef, error) {
	ref, err := repo.GetMeal(ctx, mealID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, &shared.NotFoundError{Kind: "Meal", ID: formatID(mealID)}
	}
	if ref.UserID != userID {
		return nil, fmt.Errorf("%w: User %s does not own MealPlan %d", shared.ErrForbidden, userID, ref.PlanID)
	}
	if !ref.Current {
		return nil, fmt.Errorf("%w: meal %d belongs to a superseded version", shared.ErrConflict, mealID)
	}
	return ref, nil
}

// slotFor finds the structure slot a meal was planned for. The meal's own
// calorie target wins when set.
func slotFor(ms strategy.MealStructure, meal Meal) strategy.MealSlot {
	slot := strategy.MealSlot{MealType: meal.MealType, Index: meal.Index}
	for _, s := range ms.Meals {
		if s.MealType == meal.MealType && s.Index == meal.Index {
			slot = s
			break
		}
	}
	if meal.CalorieTarget > 0 {
		slot.CalorieTarget = meal.CalorieTarget
	}
	return slot
}
