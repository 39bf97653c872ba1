package shopping

import (
	"math"
	"sort"
	"strings"
	"time"

	"nutriplan/internal/mealplan"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/recipe"
)

// Item is one aggregated line of a shopping list.
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Recipes  int     `json:"recipes"`
}

// ShoppingList is the list for one plan version.
type ShoppingList struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	VersionID int64     `json:"versionId"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
}

// BuildItems sums the ingredients of every recipe-backed meal, grouped by
// normalized name and unit. Custom meals and placeholders contribute nothing.
func BuildItems(days []mealplan.DayPlan, recipes map[string]recipe.Recipe) []Item {
	type key struct{ name, unit string }
	agg := make(map[key]*Item)

	for _, d := range days {
		for _, m := range d.Meals {
			if m.IsCustom || m.IsPlaceholder || m.RecipeID == "" {
				continue
			}
			r, ok := recipes[m.RecipeID]
			if !ok {
				continue
			}
			for _, ing := range r.Ingredients {
				k := key{nutrition.NormalizeLabel(ing.Name), strings.ToLower(strings.TrimSpace(ing.Unit))}
				if k.name == "" {
					continue
				}
				it, ok := agg[k]
				if !ok {
					it = &Item{Name: k.name, Unit: k.unit}
					agg[k] = it
				}
				it.Quantity += ing.Quantity
				it.Recipes++
			}
		}
	}

	items := make([]Item, 0, len(agg))
	for _, it := range agg {
		it.Quantity = math.Round(it.Quantity*100) / 100
		items = append(items, *it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Unit < items[j].Unit
	})
	return items
}
