// Package mealplan assembles days and weeks of meals and keeps the
// snapshot history of every plan.
package mealplan

import (
	"fmt"
	"time"

	"nutriplan/internal/shared"
)

// DateLayout is the calendar date format used for DayPlan dates.
const DateLayout = "2006-01-02"

// PlaceholderName is shown for slots whose generation failed.
const PlaceholderName = "[Placeholder - Generation Failed]"

// Duration is the span a plan covers.
type Duration string

const (
	Daily  Duration = "DAILY"
	Weekly Duration = "WEEKLY"
)

// VersionReason records why a version was created.
type VersionReason string

const (
	ReasonInitial         VersionReason = "INITIAL_GENERATION"
	ReasonRegenerated     VersionReason = "REGENERATED"
	ReasonRestored        VersionReason = "RESTORED"
	ReasonMealRegenerated VersionReason = "MEAL_REGENERATION"
)

// MealPlan is the root aggregate. Versions is only populated by history reads.
type MealPlan struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"userId"`
	Duration         Duration  `json:"duration"`
	Timezone         string    `json:"timezone"`
	CurrentVersionID int64     `json:"currentVersionId"`
	CreatedAt        time.Time `json:"createdAt"`
	Versions         []Version `json:"versions,omitempty"`
}

// Version is an immutable-once-superseded snapshot of a plan's days.
type Version struct {
	ID        int64         `json:"id"`
	PlanID    int64         `json:"planId"`
	Number    int           `json:"versionNumber"`
	Reason    VersionReason `json:"reason"`
	CreatedAt time.Time     `json:"createdAt"`
	Days      []DayPlan     `json:"days"`
}

// DayPlan is one calendar date inside a version.
type DayPlan struct {
	ID          int64  `json:"id"`
	VersionID   int64  `json:"versionId"`
	Date        string `json:"date"`
	UserID      string `json:"userId"`
	ContextHash string `json:"contextHash,omitempty"`
	Meals       []Meal `json:"meals"`
}

// Meal is one slot of a day. RecipeTitle is read from the catalog and never stored.
type Meal struct {
	ID              int64           `json:"id"`
	DayPlanID       int64           `json:"dayPlanId"`
	MealType        shared.MealType `json:"mealType"`
	Index           int             `json:"index"`
	PlannedTime     time.Time       `json:"plannedTime"`
	RecipeID        string          `json:"recipeId,omitempty"`
	RecipeTitle     string          `json:"recipeTitle,omitempty"`
	CustomName      string          `json:"customName,omitempty"`
	IsCustom        bool            `json:"isCustom"`
	IsPlaceholder   bool            `json:"isPlaceholder"`
	FailureReason   string          `json:"failureReason,omitempty"`
	CalorieTarget   int             `json:"calorieTarget"`
	PlannedCalories int             `json:"plannedCalories"`
}

// Title is what the meal is called in listings.
func (m Meal) Title() string {
	switch {
	case m.IsCustom:
		return m.CustomName
	case m.IsPlaceholder:
		return PlaceholderName
	case m.RecipeTitle != "":
		return m.RecipeTitle
	default:
		return m.RecipeID
	}
}

func (m Meal) slotKey() string {
	return fmt.Sprintf("%s/%d", m.MealType, m.Index)
}

// ParseDate validates a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &shared.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s)}
	}
	return t, nil
}

// AddDays shifts a calendar date.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DefaultMealTime is the planned time for a slot on date in loc.
func DefaultMealTime(date string, loc *time.Location, mealType shared.MealType, index int) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute := 12, 0
	switch mealType {
	case shared.Breakfast:
		hour, minute = 8, 0
	case shared.Lunch:
		hour, minute = 12, 30
	case shared.Dinner:
		hour, minute = 18, 30
	case shared.Snack:
		hour, minute = 15, 0
	}
	t := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	if mealType == shared.Snack {
		t = t.Add(time.Duration(index) * 2 * time.Hour)
	}
	return t, nil
}

// cloneDay copies a day and its meals into a new, unsaved day. Custom and
// placeholder fields are carried over unchanged.
func cloneDay(d DayPlan) DayPlan {
	out := DayPlan{Date: d.Date, UserID: d.UserID, ContextHash: d.ContextHash}
	out.Meals = make([]Meal, len(d.Meals))
	for i, m := range d.Meals {
		m.ID = 0
		m.DayPlanID = 0
		out.Meals[i] = m
	}
	return out
}
