package nutrition

import "strings"

var unitFactors = map[string]float64{
	"g":           1,
	"gram":        1,
	"grams":       1,
	"ml":          1,
	"milliliter":  1,
	"milliliters": 1,
	"kg":          1000,
	"kilogram":    1000,
	"l":           1000,
	"liter":       1000,
	"cup":         240,
	"tbsp":        15,
	"tablespoon":  15,
	"tsp":         5,
	"teaspoon":    5,
	"oz":          28.35,
	"ounce":       28.35,
}

// ToBaseUnits converts quantity in unit to grams or millilitres.
// Unrecognized units pass through unchanged.
func ToBaseUnits(quantity float64, unit string) float64 {
	if f, ok := unitFactors[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return quantity * f
	}
	return quantity
}
