package mealplan

import (
	"context"
	"math"

	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
)

// NoTargetsReason is reported when the profile has no nutrition targets.
const NoTargetsReason = "No nutrition targets configured"

// Macros is an amount of energy and macronutrients.
type Macros struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbohydrates float64 `json:"carbohydrates"`
	Fat           float64 `json:"fat"`
}

func (m Macros) add(o Macros) Macros {
	return Macros{
		Calories:      m.Calories + o.Calories,
		Protein:       m.Protein + o.Protein,
		Carbohydrates: m.Carbohydrates + o.Carbohydrates,
		Fat:           m.Fat + o.Fat,
	}
}

func (m Macros) scale(f float64) Macros {
	return Macros{Calories: m.Calories * f, Protein: m.Protein * f, Carbohydrates: m.Carbohydrates * f, Fat: m.Fat * f}
}

func (m Macros) round() Macros {
	r := func(v float64) float64 { return math.Round(v*10) / 10 }
	return Macros{Calories: r(m.Calories), Protein: r(m.Protein), Carbohydrates: r(m.Carbohydrates), Fat: r(m.Fat)}
}

// percentOf returns m as a percentage of target, field by field. Fields with
// no target are zero.
func (m Macros) percentOf(target Macros) Macros {
	pct := func(v, t float64) float64 {
		if t <= 0 {
			return 0
		}
		return math.Round(v/t*1000) / 10
	}
	return Macros{
		Calories:      pct(m.Calories, target.Calories),
		Protein:       pct(m.Protein, target.Protein),
		Carbohydrates: pct(m.Carbohydrates, target.Carbohydrates),
		Fat:           pct(m.Fat, target.Fat),
	}
}

// EstimateMacros splits calories 25/45/30 across protein, carbohydrates and fat.
func EstimateMacros(calories float64) Macros {
	return Macros{
		Calories:      calories,
		Protein:       calories * 0.25 / 4,
		Carbohydrates: calories * 0.45 / 4,
		Fat:           calories * 0.30 / 9,
	}
}

// DaySummary aggregates the nutrition of one day.
type DaySummary struct {
	Date        string  `json:"date"`
	MealCount   int     `json:"mealCount"`
	Totals      Macros  `json:"totals"`
	Targets     *Macros `json:"targets,omitempty"`
	Percentages *Macros `json:"percentages,omitempty"`
	Estimated   bool    `json:"estimated"`
	Reason      string  `json:"reason,omitempty"`
}

// WeekSummary aggregates the nutrition of every day of a plan's current version.
type WeekSummary struct {
	PlanID       int64        `json:"planId"`
	Days         []DaySummary `json:"days"`
	Totals       Macros       `json:"totals"`
	DailyAverage Macros       `json:"dailyAverage"`
	Targets      *Macros      `json:"targets,omitempty"`
	Percentages  *Macros      `json:"percentages,omitempty"`
	Estimated    bool         `json:"estimated"`
	Reason       string       `json:"reason,omitempty"`
}

// DaySummary summarizes the user's current plan day for date. A date with
// no planned day is not found even when targets are missing.
func (m *Manager) DaySummary(ctx context.Context, userID, date string) (*DaySummary, error) {
	view, err := m.Day(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	targets, err := m.targets(ctx, userID)
	if err != nil {
		return nil, err
	}
	if targets == nil {
		return &DaySummary{Date: date, Reason: NoTargetsReason}, nil
	}
	recipes, err := m.recipesFor(ctx, []DayPlan{view.Day})
	if err != nil {
		return nil, err
	}
	s := summarizeDay(view.Day, recipes, *targets)
	return &s, nil
}

// WeekSummary summarizes every day of the plan's current version.
func (m *Manager) WeekSummary(ctx context.Context, userID string, planID int64) (*WeekSummary, error) {
	view, err := m.Get(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	targets, err := m.targets(ctx, userID)
	if err != nil {
		return nil, err
	}
	if targets == nil {
		return &WeekSummary{PlanID: planID, Reason: NoTargetsReason}, nil
	}
	recipes, err := m.recipesFor(ctx, view.Version.Days)
	if err != nil {
		return nil, err
	}

	out := &WeekSummary{PlanID: planID}
	for _, d := range view.Version.Days {
		ds := summarizeDay(d, recipes, *targets)
		out.Days = append(out.Days, ds)
		out.Totals = out.Totals.add(ds.Totals)
		out.Estimated = out.Estimated || ds.Estimated
	}
	if n := len(out.Days); n > 0 {
		weekTargets := targets.scale(float64(n))
		pct := out.Totals.percentOf(weekTargets)
		out.DailyAverage = out.Totals.scale(1 / float64(n)).round()
		out.Targets = &weekTargets
		out.Percentages = &pct
	}
	out.Totals = out.Totals.round()
	return out, nil
}

func (m *Manager) targets(ctx context.Context, userID string) (*Macros, error) {
	p, err := m.days.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.HasTargets() {
		return nil, nil
	}
	t := profileTargets(*p)
	return &t, nil
}

func profileTargets(p profile.Profile) Macros {
	return Macros{
		Calories:      float64(p.CalorieTarget),
		Protein:       float64(p.ProteinTarget),
		Carbohydrates: float64(p.CarbsTarget),
		Fat:           float64(p.FatTarget),
	}
}

func (m *Manager) recipesFor(ctx context.Context, days []DayPlan) (map[string]recipe.Recipe, error) {
	var ids []string
	for _, d := range days {
		for _, meal := range d.Meals {
			if meal.RecipeID != "" && !meal.IsCustom {
				ids = append(ids, meal.RecipeID)
			}
		}
	}
	return recipe.NewRepository(m.db).GetByIDs(ctx, ids)
}

// summarizeDay uses stored recipe nutrition when present and estimates from
// planned calories otherwise. Placeholders contribute nothing.
func summarizeDay(d DayPlan, recipes map[string]recipe.Recipe, targets Macros) DaySummary {
	s := DaySummary{Date: d.Date}
	for _, meal := range d.Meals {
		if meal.IsPlaceholder {
			continue
		}
		s.MealCount++
		if r, ok := recipes[meal.RecipeID]; ok && !meal.IsCustom && r.Nutrition != nil {
			n := r.Nutrition
			s.Totals = s.Totals.add(Macros{
				Calories:      n.CaloriesPerServing,
				Protein:       n.ProteinPerServing,
				Carbohydrates: n.CarbohydratesPerServing,
				Fat:           n.FatPerServing,
			})
			continue
		}
		if meal.PlannedCalories > 0 {
			s.Totals = s.Totals.add(EstimateMacros(float64(meal.PlannedCalories)))
			s.Estimated = true
		}
	}
	pct := s.Totals.percentOf(targets)
	s.Totals = s.Totals.round()
	s.Targets = &targets
	s.Percentages = &pct
	return s
}
