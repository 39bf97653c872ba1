package shopping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nutriplan/internal/database"
)

// Repository handles persistence of shopping lists.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new shopping list repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Save stores the list for its version, replacing any previous one.
func (r *Repository) Save(ctx context.Context, list *ShoppingList) error {
	itemsJSON, err := json.Marshal(list.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal shopping list items: %w", err)
	}
	if list.CreatedAt.IsZero() {
		list.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shopping_lists (user_id, version_id, items, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(version_id) DO UPDATE SET items = excluded.items, created_at = excluded.created_at`,
		list.UserID, list.VersionID, string(itemsJSON), list.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert shopping list: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		list.ID = id
	}
	return nil
}

// GetByVersionID retrieves the list of a plan version. Nil when none exists.
func (r *Repository) GetByVersionID(ctx context.Context, versionID int64) (*ShoppingList, error) {
	var (
		list  ShoppingList
		items string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, version_id, items, created_at FROM shopping_lists WHERE version_id = ?`, versionID).
		Scan(&list.ID, &list.UserID, &list.VersionID, &items, &list.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shopping list by version ID: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &list.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shopping list items: %w", err)
	}
	return &list, nil
}

// DeleteByVersionID removes the list of a version so it is rebuilt on next read.
func (r *Repository) DeleteByVersionID(ctx context.Context, versionID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE version_id = ?`, versionID)
	return err
}
