package mealplan

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
)

// retrievalTopN is how many similar recipes each slot is grounded on.
const retrievalTopN = 5

// Generator produces a recipe for one slot.
type Generator interface {
	Generate(ctx context.Context, req recipe.GenerateRequest) (recipe.GenerateResult, error)
}

// Retriever finds similar catalog recipes.
type Retriever interface {
	Retrieve(ctx context.Context, q recipe.Query, topN int) ([]recipe.RetrievedRecipe, error)
}

// Catalog lists stored recipes of one meal type.
type Catalog interface {
	ListByMealType(ctx context.Context, mealType shared.MealType) ([]recipe.Recipe, error)
}

// MetaRecorder stores per-agent usage. Failures are logged, never fatal.
type MetaRecorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

// SlotStatus is how a slot was filled.
type SlotStatus string

const (
	SlotGenerated   SlotStatus = "generated"
	SlotFallback    SlotStatus = "fallback"
	SlotPlaceholder SlotStatus = "placeholder"
)

// SlotOutcome is the result of filling one slot. Err is set for placeholders
// and for fallbacks, where it explains why the generated recipe was rejected.
type SlotOutcome struct {
	Slot   strategy.MealSlot
	Status SlotStatus
	Meal   Meal
	Recipe *recipe.Recipe
	Err    error
}

// AssembledDay is an unsaved day plus the newly generated recipes it references.
type AssembledDay struct {
	Day      DayPlan
	Recipes  []recipe.Recipe
	Outcomes []SlotOutcome
	Timezone string
}

// Failures counts placeholder slots.
func (a AssembledDay) Failures() int {
	n := 0
	for _, o := range a.Outcomes {
		if o.Status == SlotPlaceholder {
			n++
		}
	}
	return n
}

// Inputs are the cached and profile data an assembly needs.
type Inputs struct {
	Profile   profile.Profile
	Strategy  strategy.Strategy
	Structure strategy.MealStructure
}

// Hash returns the context fingerprint of the inputs.
func (in Inputs) Hash() string {
	return ContextHash(in.Profile, in.Strategy, in.Structure)
}

// DayAssembler turns a user's meal structure into one day of meals.
type DayAssembler struct {
	strategies strategy.Store
	profiles   profile.Provider
	retriever  Retriever
	generator  Generator
	catalog    Catalog
	metrics    MetaRecorder
}

func NewDayAssembler(
	strategies strategy.Store,
	profiles profile.Provider,
	retriever Retriever,
	generator Generator,
	catalog Catalog,
	metrics MetaRecorder,
) *DayAssembler {
	return &DayAssembler{
		strategies: strategies,
		profiles:   profiles,
		retriever:  retriever,
		generator:  generator,
		catalog:    catalog,
		metrics:    metrics,
	}
}

// LoadInputs checks the assembly preconditions. Any missing piece is a
// *shared.PreconditionError.
func (a *DayAssembler) LoadInputs(ctx context.Context, userID string) (Inputs, error) {
	s, err := a.strategies.GetStrategy(ctx, userID)
	if err != nil {
		return Inputs{}, err
	}
	if s == nil {
		return Inputs{}, &shared.PreconditionError{Message: "AI strategy not found for user " + userID}
	}
	ms, err := a.strategies.GetStructure(ctx, userID)
	if err != nil {
		return Inputs{}, err
	}
	if ms == nil {
		return Inputs{}, &shared.PreconditionError{Message: "Meal structure not found for user " + userID}
	}
	p, err := a.profiles.Get(ctx, userID)
	if err != nil {
		return Inputs{}, err
	}
	if p == nil {
		return Inputs{}, &shared.PreconditionError{Message: "User profile not configured for user " + userID}
	}
	return Inputs{Profile: *p, Strategy: *s, Structure: *ms}, nil
}

// Assemble builds the meals for date. Only precondition and date errors are
// returned; every slot failure becomes a placeholder meal.
func (a *DayAssembler) Assemble(ctx context.Context, userID, date string) (*AssembledDay, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	in, err := a.LoadInputs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.assembleWith(ctx, in, date)
}

func (a *DayAssembler) assembleWith(ctx context.Context, in Inputs, date string) (*AssembledDay, error) {
	loc := in.Profile.Location()
	out := &AssembledDay{
		Day:      DayPlan{Date: date, UserID: in.Profile.UserID, ContextHash: in.Hash()},
		Timezone: loc.String(),
	}

	used := make(map[string]bool)
	var usedIDs []string
	for _, slot := range in.Structure.Meals {
		o := a.FillSlot(ctx, in, date, slot, used, usedIDs)
		if o.Recipe != nil {
			used[titleKey(o.Recipe.Title)] = true
			usedIDs = append(usedIDs, o.Recipe.ID)
			if o.Status == SlotGenerated {
				out.Recipes = append(out.Recipes, *o.Recipe)
			}
		}
		out.Outcomes = append(out.Outcomes, o)
		out.Day.Meals = append(out.Day.Meals, o.Meal)
	}

	sort.SliceStable(out.Day.Meals, func(i, j int) bool {
		return out.Day.Meals[i].PlannedTime.Before(out.Day.Meals[j].PlannedTime)
	})

	log.Printf("[DAY_PLAN] %s for user %s: %d meals, %d placeholders",
		date, in.Profile.UserID, len(out.Day.Meals), out.Failures())
	return out, nil
}

// FillSlot retrieves, generates and filters a recipe for one slot. It never
// fails: problems are reported in the outcome. Recipes in usedIDs are not
// offered to the generator as grounding.
func (a *DayAssembler) FillSlot(ctx context.Context, in Inputs, date string, slot strategy.MealSlot, usedTitles map[string]bool, usedIDs []string) SlotOutcome {
	plannedAt, err := DefaultMealTime(date, in.Profile.Location(), slot.MealType, slot.Index)
	if err != nil {
		return placeholder(slot, plannedAt, err)
	}

	retrieved, err := a.retriever.Retrieve(ctx, recipe.Query{
		MealType:            slot.MealType,
		CuisinePreferences:  in.Profile.CuisinePreferences,
		DietaryRestrictions: in.Profile.DietaryRestrictions,
		MacroFocus:          slot.MacroFocus,
		ExcludeIDs:          usedIDs,
	}, retrievalTopN)
	if err != nil {
		log.Printf("[DAY_PLAN] Warning: retrieval failed for %s/%d on %s: %v", slot.MealType, slot.Index, date, err)
		return placeholder(slot, plannedAt, err)
	}

	res, err := a.generator.Generate(ctx, recipe.GenerateRequest{
		Strategy:            in.Strategy,
		Slot:                slot,
		Retrieved:           retrieved,
		DietaryRestrictions: in.Profile.DietaryRestrictions,
		Allergies:           in.Profile.Allergies,
		DislikedIngredients: in.Profile.DislikedIngredients,
		AvoidTitles:         sortedKeys(usedTitles),
	})
	a.record(ctx, res.Meta)
	if err != nil {
		log.Printf("[DAY_PLAN] Warning: generation failed for %s/%d on %s: %v", slot.MealType, slot.Index, date, err)
		return placeholder(slot, plannedAt, err)
	}

	rec := res.Recipe
	if reason := Violation(rec, in.Profile, usedTitles); reason != "" {
		log.Printf("[DAY_PLAN] Warning: rejected %q for %s/%d: %s", rec.Title, slot.MealType, slot.Index, reason)
		rejected := fmt.Errorf("generated recipe rejected: %s", reason)
		fallback, err := a.fallback(ctx, in.Profile, slot, usedTitles)
		if err != nil || fallback == nil {
			if err != nil {
				log.Printf("[DAY_PLAN] Warning: catalog fallback failed: %v", err)
			}
			return placeholder(slot, plannedAt, rejected)
		}
		return SlotOutcome{
			Slot:   slot,
			Status: SlotFallback,
			Meal:   recipeMeal(slot, plannedAt, *fallback),
			Recipe: fallback,
			Err:    rejected,
		}
	}

	return SlotOutcome{Slot: slot, Status: SlotGenerated, Meal: recipeMeal(slot, plannedAt, rec), Recipe: &rec}
}

// fallback picks the first catalog recipe of the slot's type that passes the filters.
func (a *DayAssembler) fallback(ctx context.Context, p profile.Profile, slot strategy.MealSlot, usedTitles map[string]bool) (*recipe.Recipe, error) {
	candidates, err := a.catalog.ListByMealType(ctx, slot.MealType)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if Violation(c, p, usedTitles) == "" {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (a *DayAssembler) record(ctx context.Context, meta shared.AgentMeta) {
	if a.metrics == nil || meta.AgentName == "" {
		return
	}
	if err := a.metrics.RecordMeta(ctx, meta); err != nil {
		log.Printf("Warning: failed to record metrics for %s: %v", meta.AgentName, err)
	}
}

func placeholder(slot strategy.MealSlot, plannedAt time.Time, cause error) SlotOutcome {
	return SlotOutcome{
		Slot:   slot,
		Status: SlotPlaceholder,
		Meal: Meal{
			MealType:      slot.MealType,
			Index:         slot.Index,
			PlannedTime:   plannedAt,
			IsPlaceholder: true,
			FailureReason: cause.Error(),
			CalorieTarget: slot.CalorieTarget,
		},
		Err: cause,
	}
}

// recipeMeal plans a recipe into a slot. Recipes without stored nutrition
// are planned at the slot's calorie target.
func recipeMeal(slot strategy.MealSlot, plannedAt time.Time, r recipe.Recipe) Meal {
	planned := int(math.Round(r.CaloriesPerServing()))
	if planned == 0 {
		planned = slot.CalorieTarget
	}
	return Meal{
		MealType:        slot.MealType,
		Index:           slot.Index,
		PlannedTime:     plannedAt,
		RecipeID:        r.ID,
		RecipeTitle:     r.Title,
		CalorieTarget:   slot.CalorieTarget,
		PlannedCalories: planned,
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
