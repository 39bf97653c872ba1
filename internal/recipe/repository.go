package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nutriplan/internal/database"
	"nutriplan/internal/shared"

	"github.com/google/uuid"
)

// Repository is a database-backed repository for recipes.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new Repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// NewID returns a fresh stable id for a generated recipe.
func NewID() string {
	return uuid.NewString()
}

// Save inserts or updates a recipe. Recipes without an id get a UUID.
func (r *Repository) Save(ctx context.Context, rec *Recipe) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Source == "" {
		rec.Source = SourceCatalog
	}

	updatedAt := time.Now().UTC()
	if rec.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, rec.UpdatedAt); err == nil {
			updatedAt = parsed.UTC()
		} else {
			log.Printf("Warning: failed to parse updatedAt %q for recipe %s: %v. Using current time.", rec.UpdatedAt, rec.ID, err)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe to JSON: %w", err)
	}

	var mealType any
	if rec.MealType != "" {
		mealType = string(rec.MealType)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recipes (id, title, meal_type, source, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			meal_type = excluded.meal_type,
			source = excluded.source,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Title, mealType, string(rec.Source), string(data), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recipe %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a recipe by its ID. Returns nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Recipe, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM recipes WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipe by ID: %w", err)
	}

	var rec Recipe
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe JSON: %w", err)
	}
	return &rec, nil
}

// GetByIDs returns the recipes that exist, keyed by id.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]Recipe, error) {
	out := make(map[string]Recipe, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	recipes, err := r.query(ctx, `SELECT id, data FROM recipes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, rec := range recipes {
		out[rec.ID] = rec
	}
	return out, nil
}

// ListByMealType returns catalog and generated recipes for a meal type, ordered by id.
func (r *Repository) ListByMealType(ctx context.Context, mealType shared.MealType) ([]Recipe, error) {
	return r.query(ctx, `SELECT id, data FROM recipes WHERE meal_type = ? ORDER BY id`, string(mealType))
}

// List retrieves all recipes, optionally excluding specified IDs.
func (r *Repository) List(ctx context.Context, excludeIDs []string) ([]Recipe, error) {
	all, err := r.query(ctx, `SELECT id, data FROM recipes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	if len(excludeIDs) == 0 {
		return all, nil
	}
	skip := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}
	out := all[:0]
	for _, rec := range all {
		if !skip[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Count returns the number of recipes in the database.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recipes: %w", err)
	}
	return n, nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Recipe, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var rec Recipe
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			log.Printf("Warning: failed to unmarshal recipe JSON for ID %s: %v", id, err)
			continue
		}
		recipes = append(recipes, rec)
	}
	return recipes, rows.Err()
}
