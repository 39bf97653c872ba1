package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nutriplan/internal/api/middleware"
	"nutriplan/internal/app"
	"nutriplan/internal/config"
	"nutriplan/internal/database"
	"nutriplan/internal/profile"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"
	"nutriplan/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testOpener builds a fresh App over one database file for every command run,
// the way the binary does.
func testOpener(t *testing.T, secret string) Opener {
	t.Helper()
	cfg := &config.Config{
		DatabasePath:        filepath.Join(t.TempDir(), "cli.db"),
		RequireFunctionCall: true,
		FuzzyMinMatchLength: 3,
		StrategyCacheTTL:    time.Hour,
		APIJWTSecret:        secret,
	}
	open := func(ctx context.Context) (*app.App, error) {
		db, err := database.NewDB(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a := app.Build(cfg, db, app.Clients{
			Chat: &testutil.RecipeChat{},
			Extractor: testutil.TextFunc(func(string) (string, error) {
				return "", errors.New("extractor not expected")
			}),
			Embeddings: testutil.HashEmbedder{},
		})
		if err := a.EnsureIngredients(ctx); err != nil {
			a.Close()
			return nil, err
		}
		return a, nil
	}

	ctx := context.Background()
	a, err := open(ctx)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Profiles.Save(ctx, profile.Profile{UserID: "u1", Timezone: "UTC", CalorieTarget: 2000}))
	require.NoError(t, a.Strategies.PutStrategy(ctx, "u1", strategy.Strategy{StrategyName: "Balanced", TargetCalories: map[string]float64{"daily": 2000}}))
	require.NoError(t, a.Strategies.PutStructure(ctx, "u1", strategy.MealStructure{Meals: []strategy.MealSlot{
		{MealType: shared.Breakfast, CalorieTarget: 500},
		{MealType: shared.Lunch, CalorieTarget: 700},
	}}))
	return open
}

func run(open Opener, args ...string) (string, error) {
	root := NewRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPlanCommands(t *testing.T) {
	open := testOpener(t, "")

	out, err := run(open, "plan", "day", "2025-03-10", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan 1 (DAILY) version 1, INITIAL_GENERATION")
	assert.Contains(t, out, "08:00")
	assert.Contains(t, out, "508")

	out, err = run(open, "plan", "regenerate", "1", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2, REGENERATED")

	out, err = run(open, "plan", "restore", "1", "1", "--user", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Restored version 1 as version 3.\n", out)

	out, err = run(open, "plan", "history", "1", "--user", "u1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[3], "3"))
	assert.True(t, strings.HasSuffix(lines[3], "*"))

	out, err = run(open, "shopping", "1", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "chicken breast")

	out, err = run(open, "plan", "summary", "1", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "average")
}

func TestPlanCommands_Errors(t *testing.T) {
	open := testOpener(t, "")

	_, err := run(open, "plan", "day", "2025-03-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"user"`)

	_, err = run(open, "plan", "restore", "1", "zero", "--user", "u1")
	assert.EqualError(t, err, `version must be a positive number, got "zero"`)

	_, err = run(open, "plan", "show", "x", "--user", "u1")
	assert.EqualError(t, err, `plan id must be a positive number, got "x"`)

	_, err = run(open, "plan", "show", "99", "--user", "u1")
	var nf *shared.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = run(open, "ingest")
	assert.ErrorIs(t, err, app.ErrIngestionDisabled)
}

func TestMetricsCommands(t *testing.T) {
	open := testOpener(t, "")

	_, err := run(open, "plan", "day", "2025-03-10", "--user", "u1")
	require.NoError(t, err)

	out, err := run(open, "metrics", "usage", "--days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "EXECUTIONS")
	assert.Contains(t, out, "AGENT")

	out, err = run(open, "metrics", "cleanup", "--days", "30")
	require.NoError(t, err)
	assert.Equal(t, "Successfully removed 0 old metric records.\nRemoved 0 expired strategy cache entries.\n", out)
}

func TestSeedAndMigrate(t *testing.T) {
	open := testOpener(t, "")

	out, err := run(open, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date (schema version 1)")

	out, err = run(open, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded")
}

func TestTokenCommand(t *testing.T) {
	out, err := run(testOpener(t, "s3cret"), "token", "--user", "u1", "--ttl", "1h")
	require.NoError(t, err)

	userID, err := middleware.NewTokenService("s3cret").UserID(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = run(testOpener(t, ""), "token", "--user", "u1")
	assert.EqualError(t, err, "API_JWT_SECRET environment variable not set")
}
