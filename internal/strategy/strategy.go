// Package strategy holds the per-user nutrition strategy and meal structure
// computed upstream, and the keyed TTL store they are cached in.
package strategy

import (
	"fmt"

	"nutriplan/internal/shared"
)

// Strategy is the precomputed daily plan for a user.
type Strategy struct {
	StrategyName    string             `json:"strategyName"`
	Rationale       string             `json:"rationale,omitempty"`
	TargetCalories  map[string]float64 `json:"targetCalories"`
	MacroSplit      map[string]float64 `json:"macroSplit"`
	Constraints     []string           `json:"constraints,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// DailyCalories returns the "daily" calorie target, or zero.
func (s Strategy) DailyCalories() float64 {
	return s.TargetCalories["daily"]
}

// MealSlot is one position in the day's meal skeleton.
type MealSlot struct {
	MealType      shared.MealType    `json:"mealType"`
	Index         int                `json:"index"`
	CalorieTarget int                `json:"calorieTarget"`
	MacroFocus    map[string]float64 `json:"macroFocus,omitempty"`
	TimingNote    string             `json:"timingNote,omitempty"`
}

// MealStructure is the ordered list of slots for one day.
type MealStructure struct {
	Meals                    []MealSlot `json:"meals"`
	TotalCaloriesDistributed int        `json:"totalCaloriesDistributed"`
}

// MealTypes returns the meal type of every slot in order.
func (m MealStructure) MealTypes() []shared.MealType {
	out := make([]shared.MealType, 0, len(m.Meals))
	for _, s := range m.Meals {
		out = append(out, s.MealType)
	}
	return out
}

// Validate checks that every slot has a known type, a unique (type, index)
// pair and a non-negative calorie target.
func (m MealStructure) Validate() error {
	if len(m.Meals) == 0 {
		return &shared.ValidationError{Field: "meals", Message: "meal structure has no slots"}
	}
	seen := make(map[string]bool, len(m.Meals))
	for i, s := range m.Meals {
		if _, err := shared.ParseMealType(string(s.MealType)); err != nil {
			return &shared.ValidationError{Field: fmt.Sprintf("meals[%d].mealType", i), Message: err.Error()}
		}
		if s.Index < 0 {
			return &shared.ValidationError{Field: fmt.Sprintf("meals[%d].index", i), Message: "must not be negative"}
		}
		if s.CalorieTarget < 0 {
			return &shared.ValidationError{Field: fmt.Sprintf("meals[%d].calorieTarget", i), Message: "must not be negative"}
		}
		key := fmt.Sprintf("%s/%d", s.MealType, s.Index)
		if seen[key] {
			return &shared.ValidationError{Field: fmt.Sprintf("meals[%d]", i), Message: "duplicate slot " + key}
		}
		seen[key] = true
	}
	return nil
}
