package mealplan

import (
	"strings"

	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
)

var meatKeywords = []string{
	"chicken", "beef", "pork", "lamb", "turkey", "duck", "fish",
	"salmon", "tuna", "shrimp", "bacon", "sausage",
}

var plantBasedRestrictions = map[string]bool{
	"vegetarian": true,
	"vegan":      true,
}

// Violation returns why a recipe may not be planned for the profile, or ""
// when it passes. usedTitles holds lowercased titles already on the day.
func Violation(r recipe.Recipe, p profile.Profile, usedTitles map[string]bool) string {
	if usedTitles[titleKey(r.Title)] {
		return "duplicate title " + r.Title
	}

	text := r.IngredientText()
	for _, restriction := range p.DietaryRestrictions {
		if !plantBasedRestrictions[strings.ToLower(strings.TrimSpace(restriction))] {
			continue
		}
		for _, kw := range meatKeywords {
			if strings.Contains(text, kw) {
				return restriction + " restriction violated by " + kw
			}
		}
	}
	for _, a := range p.Allergies {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(text, a) {
			return "contains allergen " + a
		}
	}
	for _, d := range p.DislikedIngredients {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" && strings.Contains(text, d) {
			return "contains disliked ingredient " + d
		}
	}
	return ""
}

func titleSet(meals []Meal, skipID int64) map[string]bool {
	out := make(map[string]bool, len(meals))
	for _, m := range meals {
		if m.ID == skipID && skipID != 0 {
			continue
		}
		if t := titleKey(m.Title()); t != "" && !m.IsPlaceholder {
			out[t] = true
		}
	}
	return out
}

// titleKey normalizes a recipe title for duplicate detection.
func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
