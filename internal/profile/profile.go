// Package profile provides the per-user dietary profile used during plan assembly.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"nutriplan/internal/database"
)

const DefaultTimezone = "UTC"

// Profile carries the constraints and targets that shape a user's plan.
type Profile struct {
	UserID              string   `json:"userId"`
	Timezone            string   `json:"timezone"`
	DietaryRestrictions []string `json:"dietaryRestrictions"`
	Allergies           []string `json:"allergies"`
	DislikedIngredients []string `json:"dislikedIngredients"`
	CuisinePreferences  []string `json:"cuisinePreferences"`
	CalorieTarget       int      `json:"calorieTarget"`
	ProteinTarget       int      `json:"proteinTarget"`
	CarbsTarget         int      `json:"carbsTarget"`
	FatTarget           int      `json:"fatTarget"`
}

// Location resolves the profile timezone, falling back to UTC.
func (p Profile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasTargets reports whether any daily nutrition target is configured.
func (p Profile) HasTargets() bool {
	return p.CalorieTarget > 0 || p.ProteinTarget > 0 || p.CarbsTarget > 0 || p.FatTarget > 0
}

// Provider looks profiles up by user id. Get returns nil when none exists.
type Provider interface {
	Get(ctx context.Context, userID string) (*Profile, error)
}

// Repository is the SQLite-backed Provider.
type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, userID string) (*Profile, error) {
	p := Profile{UserID: userID}
	var restrictions, allergies, disliked, cuisines string
	err := r.db.QueryRowContext(ctx, `
		SELECT timezone, dietary_restrictions, allergies, disliked_ingredients, cuisine_preferences,
		       calorie_target, protein_target, carbs_target, fat_target
		FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.Timezone, &restrictions, &allergies, &disliked, &cuisines,
			&p.CalorieTarget, &p.ProteinTarget, &p.CarbsTarget, &p.FatTarget)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}

	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{restrictions, &p.DietaryRestrictions},
		{allergies, &p.Allergies},
		{disliked, &p.DislikedIngredients},
		{cuisines, &p.CuisinePreferences},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode profile for %s: %w", userID, err)
		}
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	return &p, nil
}

// Save inserts or replaces the profile.
func (r *Repository) Save(ctx context.Context, p Profile) error {
	if p.UserID == "" {
		return errors.New("profile user id is required")
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}

	enc := func(v []string) string {
		if v == nil {
			v = []string{}
		}
		b, _ := json.Marshal(v)
		return string(b)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, timezone, dietary_restrictions, allergies, disliked_ingredients,
		                      cuisine_preferences, calorie_target, protein_target, carbs_target, fat_target, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			timezone = excluded.timezone,
			dietary_restrictions = excluded.dietary_restrictions,
			allergies = excluded.allergies,
			disliked_ingredients = excluded.disliked_ingredients,
			cuisine_preferences = excluded.cuisine_preferences,
			calorie_target = excluded.calorie_target,
			protein_target = excluded.protein_target,
			carbs_target = excluded.carbs_target,
			fat_target = excluded.fat_target,
			updated_at = excluded.updated_at`,
		p.UserID, p.Timezone, enc(p.DietaryRestrictions), enc(p.Allergies), enc(p.DislikedIngredients),
		enc(p.CuisinePreferences), p.CalorieTarget, p.ProteinTarget, p.CarbsTarget, p.FatTarget, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", p.UserID, err)
	}
	return nil
}
