package mealplan

import (
	"context"
	"log"

	"nutriplan/internal/recipe"
)

// WeekDays is the number of days in a weekly plan.
const WeekDays = 7

// DayBuilder assembles one day. *DayAssembler implements it.
type DayBuilder interface {
	Assemble(ctx context.Context, userID, date string) (*AssembledDay, error)
}

// AssembledWeek holds exactly WeekDays days. Days that failed as a whole are empty.
type AssembledWeek struct {
	Days        []AssembledDay
	FailedDays  int
	FailedSlots int
}

// Recipes returns every newly generated recipe of the week.
func (w AssembledWeek) Recipes() []recipe.Recipe {
	var out []recipe.Recipe
	for _, d := range w.Days {
		out = append(out, d.Recipes...)
	}
	return out
}

// WeekAssembler runs a DayBuilder over seven consecutive dates.
type WeekAssembler struct {
	days DayBuilder
}

func NewWeekAssembler(days DayBuilder) *WeekAssembler {
	return &WeekAssembler{days: days}
}

// Assemble builds seven days starting at start. A failing day is replaced by
// an empty day for the same date; only an invalid start date is an error.
func (w *WeekAssembler) Assemble(ctx context.Context, userID, start string) (*AssembledWeek, error) {
	if _, err := ParseDate(start); err != nil {
		return nil, err
	}

	week := &AssembledWeek{}
	for offset := 0; offset < WeekDays; offset++ {
		date, _ := AddDays(start, offset)
		day, err := w.days.Assemble(ctx, userID, date)
		if err != nil {
			log.Printf("[WEEK_PLAN] Warning: day %s failed for user %s: %v", date, userID, err)
			week.FailedDays++
			week.Days = append(week.Days, AssembledDay{Day: DayPlan{Date: date, UserID: userID}})
			continue
		}
		week.FailedSlots += day.Failures()
		week.Days = append(week.Days, *day)
	}

	log.Printf("[WEEK_PLAN] Week of %s for user %s: %d/%d days assembled, %d placeholder meals",
		start, userID, WeekDays-week.FailedDays, WeekDays, week.FailedSlots)
	return week, nil
}
