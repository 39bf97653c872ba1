package nutrition

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

//go:embed ingredients.yaml
var defaultSeed []byte

// ingredientNamespace derives stable ids for seed entries that do not carry one.
var ingredientNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("nutriplan/ingredient"))

type seedFile struct {
	Ingredients []Ingredient `yaml:"ingredients"`
}

// LoadSeedFile reads an ingredient seed in YAML.
func LoadSeedFile(path string) ([]Ingredient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// DefaultSeed returns the ingredient table bundled with the binary.
func DefaultSeed() ([]Ingredient, error) {
	return ParseSeed(defaultSeed)
}

// ParseSeed decodes YAML seed data. Entries without an id get a UUID derived
// from their label, so reseeding is idempotent.
func ParseSeed(data []byte) ([]Ingredient, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse ingredient seed: %w", err)
	}

	seen := make(map[string]bool, len(f.Ingredients))
	for i := range f.Ingredients {
		ing := &f.Ingredients[i]
		ing.Label = NormalizeLabel(ing.Label)
		if ing.Label == "" {
			return nil, fmt.Errorf("ingredient seed entry %d has no label", i)
		}
		if seen[ing.Label] {
			return nil, fmt.Errorf("duplicate ingredient label in seed: %s", ing.Label)
		}
		seen[ing.Label] = true
		if ing.StableID == "" {
			ing.StableID = uuid.NewSHA1(ingredientNamespace, []byte(ing.Label)).String()
		}
		if ing.BaseUnit == "" {
			ing.BaseUnit = "g"
		}
	}
	return f.Ingredients, nil
}

// Seed upserts every ingredient and returns how many were written.
func Seed(ctx context.Context, repo *Repository, items []Ingredient) (int, error) {
	for i, ing := range items {
		if err := repo.Upsert(ctx, ing); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
