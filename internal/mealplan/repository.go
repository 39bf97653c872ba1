package mealplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nutriplan/internal/database"
	"nutriplan/internal/shared"
)

// Repository persists plans, versions, days and meals.
type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// MealRef locates a meal inside its plan.
type MealRef struct {
	Meal      Meal
	Date      string
	UserID    string
	VersionID int64
	PlanID    int64
	Current   bool
}

// VersionSummary is one row of a plan's history.
type VersionSummary struct {
	Number    int           `json:"versionNumber"`
	Reason    VersionReason `json:"reason"`
	CreatedAt time.Time     `json:"createdAt"`
	DayCount  int           `json:"dayCount"`
	MealCount int           `json:"mealCount"`
	Current   bool          `json:"current"`
}

// CreatePlan inserts a plan without a current version and sets its ID.
func (r *Repository) CreatePlan(ctx context.Context, p *MealPlan) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO meal_plans (user_id, duration, timezone, created_at) VALUES (?, ?, ?, ?)`,
		p.UserID, string(p.Duration), p.Timezone, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert meal plan: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetPlan returns the plan row, or nil when it does not exist.
func (r *Repository) GetPlan(ctx context.Context, planID int64) (*MealPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, duration, timezone, current_version_id, created_at FROM meal_plans WHERE id = ?`, planID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListPlans returns a user's plans, newest first.
func (r *Repository) ListPlans(ctx context.Context, userID string) ([]MealPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, duration, timezone, current_version_id, created_at
		 FROM meal_plans WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []MealPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(s rowScanner) (*MealPlan, error) {
	var (
		p        MealPlan
		duration string
		current  sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.UserID, &duration, &p.Timezone, &current, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Duration = Duration(duration)
	p.CurrentVersionID = current.Int64
	return &p, nil
}

// SetCurrentVersion repoints the plan at versionID.
func (r *Repository) SetCurrentVersion(ctx context.Context, planID, versionID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE meal_plans SET current_version_id = ? WHERE id = ?`, versionID, planID)
	if err != nil {
		return fmt.Errorf("failed to set current version of plan %d: %w", planID, err)
	}
	return nil
}

// MaxVersionNumber returns the highest version number of a plan, or 0.
func (r *Repository) MaxVersionNumber(ctx context.Context, planID int64) (int, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(version_number) FROM meal_plan_versions WHERE plan_id = ?`, planID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read max version of plan %d: %w", planID, err)
	}
	return int(n.Int64), nil
}

// InsertVersion stores a version with all its days and meals. A duplicate
// version number surfaces as shared.ErrConflict.
func (r *Repository) InsertVersion(ctx context.Context, v *Version) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO meal_plan_versions (plan_id, version_number, reason, created_at) VALUES (?, ?, ?, ?)`,
		v.PlanID, v.Number, string(v.Reason), v.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version %d of plan %d already exists", shared.ErrConflict, v.Number, v.PlanID)
		}
		return fmt.Errorf("failed to insert version: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for i := range v.Days {
		v.Days[i].VersionID = v.ID
		if err := r.InsertDay(ctx, &v.Days[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertDay stores a day and its meals.
func (r *Repository) InsertDay(ctx context.Context, d *DayPlan) error {
	var hash any
	if d.ContextHash != "" {
		hash = d.ContextHash
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO day_plans (version_id, plan_date, user_id, context_hash) VALUES (?, ?, ?, ?)`,
		d.VersionID, d.Date, d.UserID, hash)
	if err != nil {
		return fmt.Errorf("failed to insert day plan %s: %w", d.Date, err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for i := range d.Meals {
		d.Meals[i].DayPlanID = d.ID
		if err := r.InsertMeal(ctx, &d.Meals[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertMeal stores one meal. Its DayPlanID must be set.
func (r *Repository) InsertMeal(ctx context.Context, m *Meal) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO meals (day_plan_id, meal_type, meal_index, planned_time, recipe_id, custom_meal_name,
			is_custom, is_placeholder, failure_reason, calorie_target, planned_calories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.DayPlanID, string(m.MealType), m.Index, m.PlannedTime.UTC(), nullString(m.RecipeID), nullString(m.CustomName),
		m.IsCustom, m.IsPlaceholder, nullString(m.FailureReason), m.CalorieTarget, m.PlannedCalories)
	if err != nil {
		if isUniqueViolation(err) {
			return &shared.ValidationError{Field: "mealType", Message: "slot " + m.slotKey() + " already exists on this day"}
		}
		return fmt.Errorf("failed to insert meal: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListVersions returns the history of a plan, oldest first.
func (r *Repository) ListVersions(ctx context.Context, planID int64) ([]VersionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.version_number, v.reason, v.created_at,
			(SELECT COUNT(*) FROM day_plans d WHERE d.version_id = v.id),
			(SELECT COUNT(*) FROM meals m JOIN day_plans d ON d.id = m.day_plan_id WHERE d.version_id = v.id),
			CASE WHEN p.current_version_id = v.id THEN 1 ELSE 0 END
		FROM meal_plan_versions v JOIN meal_plans p ON p.id = v.plan_id
		WHERE v.plan_id = ?
		ORDER BY v.version_number`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of plan %d: %w", planID, err)
	}
	defer rows.Close()

	var out []VersionSummary
	for rows.Next() {
		var (
			s      VersionSummary
			reason string
		)
		if err := rows.Scan(&s.Number, &reason, &s.CreatedAt, &s.DayCount, &s.MealCount, &s.Current); err != nil {
			return nil, err
		}
		s.Reason = VersionReason(reason)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetVersion loads a version by ID with its days and meals. Nil when missing.
func (r *Repository) GetVersion(ctx context.Context, versionID int64) (*Version, error) {
	return r.loadVersion(ctx, `WHERE id = ?`, versionID)
}

// GetVersionByNumber loads a version of a plan by number. Nil when missing.
func (r *Repository) GetVersionByNumber(ctx context.Context, planID int64, number int) (*Version, error) {
	return r.loadVersion(ctx, `WHERE plan_id = ? AND version_number = ?`, planID, number)
}

func (r *Repository) loadVersion(ctx context.Context, where string, args ...any) (*Version, error) {
	var (
		v      Version
		reason string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, plan_id, version_number, reason, created_at FROM meal_plan_versions `+where, args...).
		Scan(&v.ID, &v.PlanID, &v.Number, &reason, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	v.Reason = VersionReason(reason)

	days, err := r.queryDays(ctx, `WHERE version_id = ? ORDER BY plan_date`, v.ID)
	if err != nil {
		return nil, err
	}
	v.Days = days
	return &v, nil
}

// GetDay loads one date of a version. Nil when the version has no such date.
func (r *Repository) GetDay(ctx context.Context, versionID int64, date string) (*DayPlan, error) {
	days, err := r.queryDays(ctx, `WHERE version_id = ? AND plan_date = ?`, versionID, date)
	if err != nil || len(days) == 0 {
		return nil, err
	}
	return &days[0], nil
}

// GetDayByID loads a day with its meals. Nil when missing.
func (r *Repository) GetDayByID(ctx context.Context, dayID int64) (*DayPlan, error) {
	days, err := r.queryDays(ctx, `WHERE id = ?`, dayID)
	if err != nil || len(days) == 0 {
		return nil, err
	}
	return &days[0], nil
}

func (r *Repository) queryDays(ctx context.Context, where string, args ...any) ([]DayPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, version_id, plan_date, user_id, context_hash FROM day_plans `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day plans: %w", err)
	}
	var days []DayPlan
	for rows.Next() {
		var (
			d    DayPlan
			hash sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.VersionID, &d.Date, &d.UserID, &hash); err != nil {
			rows.Close()
			return nil, err
		}
		d.ContextHash = hash.String
		days = append(days, d)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Meals are loaded after the day cursor is closed; a tx has one connection.
	for i := range days {
		meals, err := r.ListMeals(ctx, days[i].ID)
		if err != nil {
			return nil, err
		}
		days[i].Meals = meals
	}
	return days, nil
}

const mealColumns = `m.id, m.day_plan_id, m.meal_type, m.meal_index, m.planned_time, m.recipe_id, r.title,
	m.custom_meal_name, m.is_custom, m.is_placeholder, m.failure_reason, m.calorie_target, m.planned_calories`

// ListMeals returns a day's meals ordered by planned time.
func (r *Repository) ListMeals(ctx context.Context, dayPlanID int64) ([]Meal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+mealColumns+`
		FROM meals m LEFT JOIN recipes r ON r.id = m.recipe_id
		WHERE m.day_plan_id = ?
		ORDER BY m.planned_time, m.meal_type, m.meal_index`, dayPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals of day %d: %w", dayPlanID, err)
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

func scanMeal(s rowScanner, extra ...any) (Meal, error) {
	var (
		m                             Meal
		mealType                      string
		recipeID, title, name, reason sql.NullString
	)
	dest := []any{&m.ID, &m.DayPlanID, &mealType, &m.Index, &m.PlannedTime, &recipeID, &title,
		&name, &m.IsCustom, &m.IsPlaceholder, &reason, &m.CalorieTarget, &m.PlannedCalories}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return Meal{}, err
	}
	m.MealType = shared.MealType(mealType)
	m.RecipeID = recipeID.String
	m.RecipeTitle = title.String
	m.CustomName = name.String
	m.FailureReason = reason.String
	return m, nil
}

// GetMeal locates a meal and the version it belongs to. Nil when missing.
func (r *Repository) GetMeal(ctx context.Context, mealID int64) (*MealRef, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mealColumns+`, d.plan_date, d.user_id, d.version_id, v.plan_id,
			CASE WHEN p.current_version_id = v.id THEN 1 ELSE 0 END
		FROM meals m
		JOIN day_plans d ON d.id = m.day_plan_id
		JOIN meal_plan_versions v ON v.id = d.version_id
		JOIN meal_plans p ON p.id = v.plan_id
		LEFT JOIN recipes r ON r.id = m.recipe_id
		WHERE m.id = ?`, mealID)

	var ref MealRef
	m, err := scanMeal(row, &ref.Date, &ref.UserID, &ref.VersionID, &ref.PlanID, &ref.Current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meal %d: %w", mealID, err)
	}
	ref.Meal = m
	return &ref, nil
}

// currentDayIDs selects the days of every plan's current version. Meal
// writes are filtered through it so superseded versions stay frozen.
const currentDayIDs = `SELECT d.id FROM day_plans d JOIN meal_plans p ON p.current_version_id = d.version_id`

// UpdateMealRecipe points a meal of a current version at another recipe and
// clears any placeholder state.
func (r *Repository) UpdateMealRecipe(ctx context.Context, mealID int64, recipeID string, plannedCalories int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meals SET recipe_id = ?, planned_calories = ?, is_placeholder = 0, failure_reason = NULL
		WHERE id = ? AND day_plan_id IN (`+currentDayIDs+`)`, recipeID, plannedCalories, mealID)
	if err != nil {
		return fmt.Errorf("failed to update meal %d: %w", mealID, err)
	}
	return requireCurrent(res, mealID)
}

// UpdateMealTime changes the planned time of a meal of a current version.
func (r *Repository) UpdateMealTime(ctx context.Context, mealID int64, t time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meals SET planned_time = ? WHERE id = ? AND day_plan_id IN (`+currentDayIDs+`)`, t.UTC(), mealID)
	if err != nil {
		return fmt.Errorf("failed to move meal %d: %w", mealID, err)
	}
	return requireCurrent(res, mealID)
}

// DeleteMeal removes a meal of a current version.
func (r *Repository) DeleteMeal(ctx context.Context, mealID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM meals WHERE id = ? AND day_plan_id IN (`+currentDayIDs+`)`, mealID)
	if err != nil {
		return fmt.Errorf("failed to delete meal %d: %w", mealID, err)
	}
	return requireCurrent(res, mealID)
}

func requireCurrent(res sql.Result, mealID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: meal %d is not part of a current version", shared.ErrConflict, mealID)
	}
	return nil
}

// FindCurrentDay returns the newest plan of the user whose current version
// contains date, with that day. Nil when none does.
func (r *Repository) FindCurrentDay(ctx context.Context, userID, date string) (*MealPlan, *DayPlan, error) {
	var dayID, planID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT d.id, p.id FROM day_plans d
		JOIN meal_plans p ON p.current_version_id = d.version_id
		WHERE p.user_id = ? AND d.plan_date = ?
		ORDER BY p.id DESC LIMIT 1`, userID, date).Scan(&dayID, &planID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find day %s for user %s: %w", date, userID, err)
	}
	plan, err := r.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	day, err := r.GetDayByID(ctx, dayID)
	if err != nil {
		return nil, nil, err
	}
	return plan, day, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
