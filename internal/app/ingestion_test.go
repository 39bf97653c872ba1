package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"nutriplan/internal/database"
	"nutriplan/internal/ghost"
	"nutriplan/internal/llm"
	"nutriplan/internal/metrics"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/recipe"
	"nutriplan/internal/testutil"
	"nutriplan/internal/toolcall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGhost struct {
	posts   []ghost.Post
	err     error
	created []ghost.Post
}

func (f *fakeGhost) FetchPosts(context.Context, string) ([]ghost.Post, error) {
	return f.posts, f.err
}

func (f *fakeGhost) CreatePost(_ context.Context, title, html string, _ bool) (*ghost.Post, error) {
	p := ghost.Post{ID: fmt.Sprintf("clip-%d", len(f.created)+1), Title: title, HTML: html}
	f.created = append(f.created, p)
	return &p, nil
}

const oatsJSON = `{"title":"Overnight Oats","cuisine":"American","meal":"breakfast","servings":2,
	"ingredients":[{"name":"rolled oats","quantity":80,"unit":"g"},{"name":"milk","quantity":200,"unit":"ml"}],
	"preparationSteps":[{"stepNumber":1,"instruction":"Soak overnight."}]}`

// extractorByTitle answers the extractor prompt according to the post title.
func extractorByTitle(answers map[string]string) testutil.TextFunc {
	return func(prompt string) (string, error) {
		for title, answer := range answers {
			if strings.Contains(prompt, "Post title: "+title) {
				return answer, nil
			}
		}
		return "", errors.New("no answer scripted")
	}
}

type ingestHarness struct {
	ctx      context.Context
	db       database.DBTX
	ghost    *fakeGhost
	ingestor *Ingestor
	metrics  *metrics.Store
}

func newIngestHarness(t *testing.T, answers map[string]string) *ingestHarness {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewTestDB(t)

	items, err := nutrition.DefaultSeed()
	require.NoError(t, err)
	ingredients := nutrition.NewRepository(db)
	_, err = nutrition.Seed(ctx, ingredients, items)
	require.NoError(t, err)

	gh := &fakeGhost{}
	store := metrics.NewStore(db)
	ing := NewIngestor(gh, extractorByTitle(answers), testutil.HashEmbedder{},
		toolcall.NewGateway(nutrition.NewCalculator(ingredients, 3)), db, testutil.NewTestUoW(db), store)
	ing.Delay = 0
	return &ingestHarness{ctx: ctx, db: db, ghost: gh, ingestor: ing, metrics: store}
}

func TestIngest_StoresRecipesWithNutritionAndVectors(t *testing.T) {
	h := newIngestHarness(t, map[string]string{"Overnight Oats": oatsJSON, "Broken": "not json at all"})
	h.ghost.posts = []ghost.Post{
		{ID: "p1", Title: "Overnight Oats", HTML: "<p>oats</p>", UpdatedAt: "2025-01-01T10:00:00Z"},
		{ID: "p2", Title: "Broken", HTML: "<p>?</p>", UpdatedAt: "2025-01-01T10:00:00Z"},
	}

	report, err := h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, IngestReport{Fetched: 2, Ingested: 1, Failed: 1, Indexed: 1}, report)

	rec, err := recipe.NewRepository(h.db).Get(h.ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "BREAKFAST", string(rec.MealType))
	assert.Equal(t, recipe.SourceCatalog, rec.Source)
	require.NotNil(t, rec.Nutrition, "catalog recipes carry calculator nutrition")
	assert.InDelta(t, 389*0.8+42*2, rec.Nutrition.Calories, 0.01)
	assert.InDelta(t, (389*0.8+42*2)/2, rec.Nutrition.CaloriesPerServing, 0.01)

	vec, err := llm.NewVectorRepository(h.db).Get(h.ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	usage, err := h.metrics.GetAgentUsage(h.ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 2, usage[0].Executions, "failed extractions are still billed")
}

func TestIngest_SkipsUpToDatePosts(t *testing.T) {
	h := newIngestHarness(t, map[string]string{"Overnight Oats": oatsJSON})
	h.ghost.posts = []ghost.Post{{ID: "p1", Title: "Overnight Oats", HTML: "<p>oats</p>", UpdatedAt: "2025-01-01T10:00:00Z"}}

	_, err := h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)

	report, err := h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, IngestReport{Fetched: 1, Skipped: 1, Indexed: 1}, report)

	h.ghost.posts[0].UpdatedAt = "2025-02-01T10:00:00Z"
	report, err = h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
}

func TestIngest_EditedPostThatFailsDropsStaleEmbedding(t *testing.T) {
	answers := map[string]string{"Overnight Oats": oatsJSON}
	h := newIngestHarness(t, answers)
	h.ghost.posts = []ghost.Post{{ID: "p1", Title: "Overnight Oats", HTML: "<p>oats</p>", UpdatedAt: "2025-01-01T10:00:00Z"}}
	_, err := h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)

	answers["Overnight Oats"] = "no longer a recipe"
	h.ghost.posts[0].UpdatedAt = "2025-02-01T10:00:00Z"
	report, err := h.ingestor.Ingest(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, IngestReport{Fetched: 1, Failed: 1, Indexed: 0}, report)

	vec, err := llm.NewVectorRepository(h.db).Get(h.ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, vec)
	rec, err := recipe.NewRepository(h.db).Get(h.ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, rec, "the catalog row stays for plans that reference it")
}

func TestIngest_FetchError(t *testing.T) {
	h := newIngestHarness(t, nil)
	h.ghost.err = errors.New("ghost down")

	_, err := h.ingestor.Ingest(h.ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost down")
}

func TestProcessPost_UnknownIngredientsStillStored(t *testing.T) {
	h := newIngestHarness(t, map[string]string{"Mystery": `{"title":"Mystery","meal":"dinner","servings":1,
		"ingredients":[{"name":"unobtainium","quantity":10,"unit":"g"}],"preparationSteps":[{"stepNumber":1,"instruction":"?"}]}`})

	require.NoError(t, h.ingestor.ProcessPost(h.ctx, ghost.Post{ID: "m1", Title: "Mystery", HTML: "<p/>"}))

	rec, err := recipe.NewRepository(h.db).Get(h.ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Nutrition)
	assert.Zero(t, rec.Nutrition.Calories)
}
