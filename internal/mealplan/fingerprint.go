package mealplan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"nutriplan/internal/profile"
	"nutriplan/internal/strategy"
)

// ContextHash fingerprints the inputs a day was generated from. A plan whose
// stored hash differs from the current one is stale.
func ContextHash(p profile.Profile, s strategy.Strategy, ms strategy.MealStructure) string {
	calories := "none"
	if c := s.DailyCalories(); c > 0 {
		calories = fmt.Sprintf("%.0f", c)
	} else if p.CalorieTarget > 0 {
		calories = fmt.Sprintf("%d", p.CalorieTarget)
	}

	types := make([]string, 0, len(ms.Meals))
	for _, t := range ms.MealTypes() {
		types = append(types, string(t))
	}

	parts := []string{
		"userId=" + p.UserID,
		"dietary=" + sortedList(p.DietaryRestrictions),
		"allergies=" + sortedList(p.Allergies),
		"disliked=" + sortedList(p.DislikedIngredients),
		"cuisines=" + sortedList(p.CuisinePreferences),
		"calories=" + calories,
		"meals=" + sortedList(types),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func sortedList(in []string) string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return "[" + strings.Join(out, ",") + "]"
}
