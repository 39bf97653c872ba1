package nutrition

import "strings"

// Ingredient is a catalog record. Nutrition values are per 100 base units.
type Ingredient struct {
	StableID      string  `yaml:"id"`
	Label         string  `yaml:"label"`
	BaseUnit      string  `yaml:"unit"`
	Calories      float64 `yaml:"calories"`
	Protein       float64 `yaml:"protein"`
	Carbohydrates float64 `yaml:"carbohydrates"`
	Fat           float64 `yaml:"fat"`
}

// NormalizeLabel is the lookup key used for exact label matches.
func NormalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
