package recipe

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"nutriplan/internal/llm"
	"nutriplan/internal/shared"
)

// macroFocusThreshold is the weight above which a macro is emphasised in the query text.
const macroFocusThreshold = 0.3

// Query describes what kind of recipe to look for.
type Query struct {
	MealType            shared.MealType
	CuisinePreferences  []string
	DietaryRestrictions []string
	MacroFocus          map[string]float64
	FreeText            string
	// ExcludeIDs are never returned, e.g. recipes already on the day.
	ExcludeIDs []string
}

// RetrievedRecipe is a similarity hit joined with catalog metadata.
type RetrievedRecipe struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Cuisine string  `json:"cuisine"`
	Score   float64 `json:"score"`
}

// VectorSearcher is the nearest-neighbour index.
type VectorSearcher interface {
	FindSimilar(ctx context.Context, query []float32, limit int, excludeIDs []string) ([]llm.ScoredID, error)
}

// Lookup resolves recipe metadata by id.
type Lookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]Recipe, error)
}

// Retriever finds catalog recipes similar to a structured query.
type Retriever struct {
	embedder llm.EmbeddingGenerator
	vectors  VectorSearcher
	recipes  Lookup
}

func NewRetriever(embedder llm.EmbeddingGenerator, vectors VectorSearcher, recipes Lookup) *Retriever {
	return &Retriever{embedder: embedder, vectors: vectors, recipes: recipes}
}

// BuildQueryText renders a query as weighted free text. Cuisines and
// restrictions appear twice to raise their term weight.
func BuildQueryText(q Query) string {
	var parts []string
	if len(q.CuisinePreferences) > 0 {
		c := strings.Join(q.CuisinePreferences, " ")
		parts = append(parts, c, c)
	}
	if len(q.DietaryRestrictions) > 0 {
		r := strings.Join(q.DietaryRestrictions, " ")
		parts = append(parts, r, r)
	}
	if q.MealType != "" {
		parts = append(parts, q.MealType.Lower())
	}

	macros := make([]string, 0, len(q.MacroFocus))
	for m, w := range q.MacroFocus {
		if w > macroFocusThreshold {
			macros = append(macros, m)
		}
	}
	sort.Strings(macros)
	for _, m := range macros {
		parts = append(parts, m, "high_"+m)
	}

	if t := strings.TrimSpace(q.FreeText); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// Retrieve returns up to topN recipes in similarity order. Hits whose
// metadata no longer exists are dropped.
func (r *Retriever) Retrieve(ctx context.Context, q Query, topN int) ([]RetrievedRecipe, error) {
	if topN <= 0 {
		return nil, nil
	}

	text := BuildQueryText(q)
	vec, err := r.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	hits, err := r.vectors.FindSimilar(ctx, vec, topN, q.ExcludeIDs)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	meta, err := r.recipes.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load retrieved recipes: %w", err)
	}

	out := make([]RetrievedRecipe, 0, len(hits))
	for _, h := range hits {
		rec, ok := meta[h.ID]
		if !ok {
			log.Printf("[RAG] Warning: dropping retrieved id %s with no catalog entry", h.ID)
			continue
		}
		out = append(out, RetrievedRecipe{ID: rec.ID, Title: rec.Title, Cuisine: rec.Cuisine, Score: h.Score})
	}
	log.Printf("[RAG] Retrieved %d recipes for %q", len(out), text)
	return out, nil
}
