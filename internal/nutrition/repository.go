package nutrition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nutriplan/internal/database"
)

// Repository is the SQLite-backed ingredient database.
type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const ingredientColumns = `stable_id, label, base_unit, calories, protein, carbohydrates, fat`

func scanIngredient(row interface{ Scan(...any) error }) (Ingredient, error) {
	var ing Ingredient
	err := row.Scan(&ing.StableID, &ing.Label, &ing.BaseUnit, &ing.Calories, &ing.Protein, &ing.Carbohydrates, &ing.Fat)
	return ing, err
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*Ingredient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE `+where, arg)
	ing, err := scanIngredient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load ingredient: %w", err)
	}
	return &ing, nil
}

// ByStableID returns nil when no ingredient has the id.
func (r *Repository) ByStableID(ctx context.Context, id string) (*Ingredient, error) {
	return r.getOne(ctx, `stable_id = ?`, id)
}

// ByLabel matches the normalized label exactly. Returns nil when absent.
func (r *Repository) ByLabel(ctx context.Context, label string) (*Ingredient, error) {
	return r.getOne(ctx, `label = ?`, NormalizeLabel(label))
}

// All returns every ingredient ordered by stable id.
func (r *Repository) All(ctx context.Context) ([]Ingredient, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients ORDER BY stable_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces an ingredient by stable id.
func (r *Repository) Upsert(ctx context.Context, ing Ingredient) error {
	unit := ing.BaseUnit
	if unit == "" {
		unit = "g"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingredients (`+ingredientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stable_id) DO UPDATE SET
			label = excluded.label,
			base_unit = excluded.base_unit,
			calories = excluded.calories,
			protein = excluded.protein,
			carbohydrates = excluded.carbohydrates,
			fat = excluded.fat`,
		ing.StableID, NormalizeLabel(ing.Label), unit, ing.Calories, ing.Protein, ing.Carbohydrates, ing.Fat)
	if err != nil {
		return fmt.Errorf("failed to upsert ingredient %q: %w", ing.Label, err)
	}
	return nil
}
