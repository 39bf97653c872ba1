package mealplan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"nutriplan/internal/database"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"
)

// PlanView is a plan with its current version loaded.
type PlanView struct {
	Plan        MealPlan `json:"plan"`
	Version     Version  `json:"version"`
	Stale       bool     `json:"stale"`
	FailedDays  int      `json:"failedDays,omitempty"`
	FailedMeals int      `json:"failedMeals,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// DayView is one day of a user's current plan.
type DayView struct {
	PlanID int64   `json:"planId"`
	Day    DayPlan `json:"day"`
	Stale  bool    `json:"stale"`
}

// Manager owns plan creation and the version history.
type Manager struct {
	db    database.DBTX
	uow   database.UnitOfWork
	days  *DayAssembler
	week  *WeekAssembler
	locks planLocks
	now   func() time.Time
}

func NewManager(db database.DBTX, uow database.UnitOfWork, days *DayAssembler) *Manager {
	return &Manager{
		db:   db,
		uow:  uow,
		days: days,
		week: NewWeekAssembler(days),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// planLocks serializes writes to one plan within the process. Locks are held
// only around commits, never across recipe generation.
type planLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (l *planLocks) lock(planID int64) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[int64]*sync.Mutex)
	}
	mu, ok := l.m[planID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[planID] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// GenerateWeek creates a WEEKLY plan at version 1 starting at start.
func (m *Manager) GenerateWeek(ctx context.Context, userID, start string) (*PlanView, error) {
	if _, err := ParseDate(start); err != nil {
		return nil, err
	}
	in, err := m.days.LoadInputs(ctx, userID)
	if err != nil {
		return nil, err
	}

	week, err := m.week.Assemble(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	days := make([]DayPlan, len(week.Days))
	for i, d := range week.Days {
		days[i] = d.Day
	}
	view, err := m.createPlan(ctx, userID, Weekly, in.Profile.Location().String(), days, week.Recipes())
	if err != nil {
		return nil, err
	}
	view.FailedDays = week.FailedDays
	view.FailedMeals = week.FailedSlots
	view.Warnings = weekWarnings(week.Days)
	return view, nil
}

// GenerateDay creates a DAILY plan at version 1 for date.
func (m *Manager) GenerateDay(ctx context.Context, userID, date string) (*PlanView, error) {
	day, err := m.days.Assemble(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	view, err := m.createPlan(ctx, userID, Daily, day.Timezone, []DayPlan{day.Day}, day.Recipes)
	if err != nil {
		return nil, err
	}
	view.FailedMeals = day.Failures()
	view.Warnings = weekWarnings([]AssembledDay{*day})
	return view, nil
}

func (m *Manager) createPlan(ctx context.Context, userID string, d Duration, tz string, days []DayPlan, recipes []recipe.Recipe) (*PlanView, error) {
	plan := MealPlan{UserID: userID, Duration: d, Timezone: tz, CreatedAt: m.now()}
	version := Version{Number: 1, Reason: ReasonInitial, CreatedAt: m.now(), Days: days}

	err := m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		if err := saveRecipes(ctx, tx, recipes); err != nil {
			return err
		}
		repo := NewRepository(tx)
		if err := repo.CreatePlan(ctx, &plan); err != nil {
			return err
		}
		version.PlanID = plan.ID
		if err := repo.InsertVersion(ctx, &version); err != nil {
			return err
		}
		plan.CurrentVersionID = version.ID
		return repo.SetCurrentVersion(ctx, plan.ID, version.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save meal plan: %w", err)
	}

	log.Printf("[VERSION] Created %s plan %d for user %s with %d days", d, plan.ID, userID, len(days))
	return m.view(ctx, plan)
}

// Get returns a plan with its current version.
func (m *Manager) Get(ctx context.Context, userID string, planID int64) (*PlanView, error) {
	plan, err := m.ownedPlan(ctx, NewRepository(m.db), userID, planID)
	if err != nil {
		return nil, err
	}
	return m.view(ctx, *plan)
}

// Latest returns the user's newest plan of the given duration.
func (m *Manager) Latest(ctx context.Context, userID string, d Duration) (*PlanView, error) {
	plans, err := NewRepository(m.db).ListPlans(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Duration == d {
			return m.view(ctx, p)
		}
	}
	return nil, &shared.NotFoundError{Kind: "MealPlan", ID: fmt.Sprintf("%s plan for user %s", d, userID)}
}

// Day returns the user's current plan entry for date.
func (m *Manager) Day(ctx context.Context, userID, date string) (*DayView, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	plan, day, err := NewRepository(m.db).FindCurrentDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &shared.NotFoundError{Kind: "DayPlan", ID: date}
	}
	return &DayView{PlanID: plan.ID, Day: *day, Stale: m.stale(ctx, userID, []DayPlan{*day})}, nil
}

// History lists every version of a plan, oldest first.
func (m *Manager) History(ctx context.Context, userID string, planID int64) ([]VersionSummary, error) {
	repo := NewRepository(m.db)
	if _, err := m.ownedPlan(ctx, repo, userID, planID); err != nil {
		return nil, err
	}
	return repo.ListVersions(ctx, planID)
}

// Version returns one historical version with its days.
func (m *Manager) Version(ctx context.Context, userID string, planID int64, number int) (*Version, error) {
	repo := NewRepository(m.db)
	if _, err := m.ownedPlan(ctx, repo, userID, planID); err != nil {
		return nil, err
	}
	v, err := repo.GetVersionByNumber(ctx, planID, number)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &shared.NotFoundError{Kind: "MealPlanVersion", ID: versionKey(planID, number)}
	}
	return v, nil
}

// Regenerate reassembles every date of the current version into a new
// REGENERATED version. Custom meals of the current version are carried over.
func (m *Manager) Regenerate(ctx context.Context, userID string, planID int64) (*PlanView, error) {
	repo := NewRepository(m.db)
	plan, current, err := m.currentVersion(ctx, repo, userID, planID)
	if err != nil {
		return nil, err
	}
	if len(current.Days) == 0 {
		return nil, &shared.ValidationError{Field: "planId", Message: "current version has no days to regenerate"}
	}
	if _, err := m.days.LoadInputs(ctx, userID); err != nil {
		return nil, err
	}

	start := current.Days[0].Date
	var assembled []AssembledDay
	failedDays := 0
	if plan.Duration == Daily {
		day, err := m.days.Assemble(ctx, userID, start)
		if err != nil {
			return nil, err
		}
		assembled = []AssembledDay{*day}
	} else {
		week, err := m.week.Assemble(ctx, userID, start)
		if err != nil {
			return nil, err
		}
		assembled = week.Days
		failedDays = week.FailedDays
	}

	var recipes []recipe.Recipe
	failedMeals := 0
	for _, a := range assembled {
		recipes = append(recipes, a.Recipes...)
		failedMeals += a.Failures()
	}

	// Custom meals come from the version current at commit time, so meals
	// added while the days were assembling are kept.
	v, err := m.commitVersion(ctx, *plan, ReasonRegenerated, recipes, func(_ *Repository, cur *Version) ([]DayPlan, error) {
		byDate := make(map[string]DayPlan, len(cur.Days))
		for _, d := range cur.Days {
			byDate[d.Date] = d
		}
		days := make([]DayPlan, len(assembled))
		for i, a := range assembled {
			days[i] = carryCustomMeals(a.Day, byDate[a.Day.Date])
		}
		return days, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VERSION] Plan %d regenerated as version %d", planID, v.Number)

	view, err := m.view(ctx, *plan)
	if err != nil {
		return nil, err
	}
	view.FailedDays = failedDays
	view.FailedMeals = failedMeals
	view.Warnings = weekWarnings(assembled)
	return view, nil
}

// RegenerateDay reassembles one date of the current version. Every other
// day is cloned verbatim into the new MEAL_REGENERATION version.
func (m *Manager) RegenerateDay(ctx context.Context, userID string, planID int64, date string) (*PlanView, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	repo := NewRepository(m.db)
	plan, current, err := m.currentVersion(ctx, repo, userID, planID)
	if err != nil {
		return nil, err
	}
	if dayIndex(current.Days, date) < 0 {
		return nil, &shared.NotFoundError{Kind: "DayPlan", ID: date}
	}

	day, err := m.days.Assemble(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	v, err := m.commitVersion(ctx, *plan, ReasonMealRegenerated, day.Recipes, func(_ *Repository, cur *Version) ([]DayPlan, error) {
		idx := dayIndex(cur.Days, date)
		if idx < 0 {
			return nil, &shared.NotFoundError{Kind: "DayPlan", ID: date}
		}
		days := make([]DayPlan, len(cur.Days))
		for i, d := range cur.Days {
			if i == idx {
				days[i] = carryCustomMeals(day.Day, d)
				continue
			}
			days[i] = cloneDay(d)
		}
		return days, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VERSION] Plan %d day %s regenerated as version %d", planID, date, v.Number)

	view, err := m.view(ctx, *plan)
	if err != nil {
		return nil, err
	}
	view.FailedMeals = day.Failures()
	view.Warnings = weekWarnings([]AssembledDay{*day})
	return view, nil
}

// Restore clones a historical version verbatim into a new RESTORED version.
func (m *Manager) Restore(ctx context.Context, userID string, planID int64, number int) (*PlanView, error) {
	repo := NewRepository(m.db)
	plan, err := m.ownedPlan(ctx, repo, userID, planID)
	if err != nil {
		return nil, err
	}
	src, err := repo.GetVersionByNumber(ctx, planID, number)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, &shared.NotFoundError{Kind: "MealPlanVersion", ID: versionKey(planID, number)}
	}

	v, err := m.commitVersion(ctx, *plan, ReasonRestored, nil, func(repo *Repository, _ *Version) ([]DayPlan, error) {
		// Reread under the lock: the source may be the current version.
		src, err := repo.GetVersionByNumber(ctx, planID, number)
		if err != nil {
			return nil, err
		}
		days := make([]DayPlan, len(src.Days))
		for i, d := range src.Days {
			days[i] = cloneDay(d)
		}
		return days, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VERSION] Plan %d restored version %d as version %d", planID, number, v.Number)
	return m.view(ctx, *plan)
}

// buildDays produces the days of a new version from the version that is
// current when the commit runs.
type buildDays func(repo *Repository, current *Version) ([]DayPlan, error)

// commitVersion allocates max+1 and repoints the plan in one transaction,
// holding the plan's write lock.
func (m *Manager) commitVersion(ctx context.Context, plan MealPlan, reason VersionReason, recipes []recipe.Recipe, build buildDays) (*Version, error) {
	unlock := m.locks.lock(plan.ID)
	defer unlock()

	v := Version{PlanID: plan.ID, Reason: reason, CreatedAt: m.now()}
	err := m.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		repo := NewRepository(tx)
		p, err := repo.GetPlan(ctx, plan.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return &shared.NotFoundError{Kind: "MealPlan", ID: formatID(plan.ID)}
		}
		cur, err := repo.GetVersion(ctx, p.CurrentVersionID)
		if err != nil {
			return err
		}
		if cur == nil {
			return &shared.NotFoundError{Kind: "MealPlanVersion", ID: formatID(p.CurrentVersionID)}
		}
		if v.Days, err = build(repo, cur); err != nil {
			return err
		}

		if err := saveRecipes(ctx, tx, recipes); err != nil {
			return err
		}
		last, err := repo.MaxVersionNumber(ctx, plan.ID)
		if err != nil {
			return err
		}
		v.Number = last + 1
		if err := repo.InsertVersion(ctx, &v); err != nil {
			return err
		}
		return repo.SetCurrentVersion(ctx, plan.ID, v.ID)
	})
	if err != nil {
		var nf *shared.NotFoundError
		if errors.Is(err, shared.ErrConflict) || errors.As(err, &nf) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save version of plan %d: %w", plan.ID, err)
	}
	return &v, nil
}

func (m *Manager) ownedPlan(ctx context.Context, repo *Repository, userID string, planID int64) (*MealPlan, error) {
	plan, err := repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &shared.NotFoundError{Kind: "MealPlan", ID: formatID(planID)}
	}
	if plan.UserID != userID {
		return nil, fmt.Errorf("%w: User %s does not own MealPlan %d", shared.ErrForbidden, userID, planID)
	}
	return plan, nil
}

func (m *Manager) currentVersion(ctx context.Context, repo *Repository, userID string, planID int64) (*MealPlan, *Version, error) {
	plan, err := m.ownedPlan(ctx, repo, userID, planID)
	if err != nil {
		return nil, nil, err
	}
	v, err := repo.GetVersion(ctx, plan.CurrentVersionID)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		return nil, nil, &shared.NotFoundError{Kind: "MealPlanVersion", ID: formatID(plan.CurrentVersionID)}
	}
	return plan, v, nil
}

func (m *Manager) view(ctx context.Context, plan MealPlan) (*PlanView, error) {
	repo := NewRepository(m.db)
	p, err := repo.GetPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &shared.NotFoundError{Kind: "MealPlan", ID: formatID(plan.ID)}
	}
	v, err := repo.GetVersion(ctx, p.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &shared.NotFoundError{Kind: "MealPlanVersion", ID: formatID(p.CurrentVersionID)}
	}
	return &PlanView{Plan: *p, Version: *v, Stale: m.stale(ctx, p.UserID, v.Days)}, nil
}

// stale reports whether any fingerprinted day no longer matches the user's
// current inputs. Missing inputs are not staleness.
func (m *Manager) stale(ctx context.Context, userID string, days []DayPlan) bool {
	in, err := m.days.LoadInputs(ctx, userID)
	if err != nil {
		return false
	}
	hash := in.Hash()
	for _, d := range days {
		if d.ContextHash != "" && d.ContextHash != hash {
			return true
		}
	}
	return false
}

// carryCustomMeals copies the custom meals of prev into a freshly assembled
// day. A custom meal whose slot is taken moves to the next free index.
func carryCustomMeals(fresh DayPlan, prev DayPlan) DayPlan {
	out := fresh
	out.Meals = append([]Meal(nil), fresh.Meals...)

	taken := make(map[string]bool, len(out.Meals))
	maxIndex := make(map[shared.MealType]int)
	for _, meal := range out.Meals {
		taken[meal.slotKey()] = true
		if meal.Index > maxIndex[meal.MealType] {
			maxIndex[meal.MealType] = meal.Index
		}
	}

	for _, meal := range prev.Meals {
		if !meal.IsCustom {
			continue
		}
		meal.ID, meal.DayPlanID = 0, 0
		if taken[meal.slotKey()] {
			maxIndex[meal.MealType]++
			meal.Index = maxIndex[meal.MealType]
		}
		taken[meal.slotKey()] = true
		if meal.Index > maxIndex[meal.MealType] {
			maxIndex[meal.MealType] = meal.Index
		}
		out.Meals = append(out.Meals, meal)
	}

	sort.SliceStable(out.Meals, func(i, j int) bool {
		return out.Meals[i].PlannedTime.Before(out.Meals[j].PlannedTime)
	})
	return out
}

func saveRecipes(ctx context.Context, tx database.DBTX, recipes []recipe.Recipe) error {
	repo := recipe.NewRepository(tx)
	for i := range recipes {
		if err := repo.Save(ctx, &recipes[i]); err != nil {
			return err
		}
	}
	return nil
}

func weekWarnings(days []AssembledDay) []string {
	var out []string
	for _, d := range days {
		if len(d.Outcomes) == 0 && len(d.Day.Meals) == 0 {
			out = append(out, fmt.Sprintf("%s: day could not be generated", d.Day.Date))
			continue
		}
		for _, o := range d.Outcomes {
			if o.Err == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%s %s/%d (%s): %v", d.Day.Date, o.Slot.MealType, o.Slot.Index, o.Status, o.Err))
		}
	}
	return out
}

func dayIndex(days []DayPlan, date string) int {
	for i, d := range days {
		if d.Date == date {
			return i
		}
	}
	return -1
}

func versionKey(planID int64, number int) string {
	return formatID(planID) + "/v" + strconv.Itoa(number)
}
