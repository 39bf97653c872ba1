package shared

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MealType is the kind of meal occupying a slot.
type MealType string

const (
	Breakfast MealType = "BREAKFAST"
	Lunch     MealType = "LUNCH"
	Dinner    MealType = "DINNER"
	Snack     MealType = "SNACK"
)

// MealTypes lists every meal type in day order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner, Snack}

// ParseMealType accepts any casing and rejects unknown values.
func ParseMealType(s string) (MealType, error) {
	switch MealType(strings.ToUpper(strings.TrimSpace(s))) {
	case Breakfast:
		return Breakfast, nil
	case Lunch:
		return Lunch, nil
	case Dinner:
		return Dinner, nil
	case Snack:
		return Snack, nil
	}
	return "", &ValidationError{Field: "mealType", Message: fmt.Sprintf("invalid meal type: %q", s)}
}

// Lower returns the lowercase form used in prompts and query text.
func (m MealType) Lower() string {
	return strings.ToLower(string(m))
}

// UnmarshalJSON parses case-insensitively so model and API payloads may use "lunch".
func (m *MealType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMealType(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
