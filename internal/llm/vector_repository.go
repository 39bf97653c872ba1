package llm

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"

	"nutriplan/internal/database"
)

// ScoredID is a recipe id paired with its similarity to a query, in [0, 1].
type ScoredID struct {
	ID    string
	Score float64
}

// VectorRepository stores recipe embeddings and answers similarity queries
// by brute-force cosine similarity.
type VectorRepository struct {
	db database.DBTX
}

func NewVectorRepository(db database.DBTX) *VectorRepository {
	return &VectorRepository{db: db}
}

func (r *VectorRepository) Save(ctx context.Context, recipeID string, embedding []float32) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipe_embeddings (recipe_id, embedding, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(recipe_id) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		recipeID, float32SliceToByteSlice(embedding))
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", recipeID, err)
	}
	return nil
}

// Get returns the stored embedding, or nil when the recipe has none.
func (r *VectorRepository) Get(ctx context.Context, recipeID string) ([]float32, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT embedding FROM recipe_embeddings WHERE recipe_id = ?`, recipeID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get embedding by recipe ID: %w", err)
	}
	return byteSliceToFloat32Slice(raw)
}

// Delete removes a recipe from the index. Missing rows are not an error.
func (r *VectorRepository) Delete(ctx context.Context, recipeID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recipe_embeddings WHERE recipe_id = ?`, recipeID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding for %s: %w", recipeID, err)
	}
	return nil
}

func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipe_embeddings`).Scan(&n)
	return n, err
}

// FindSimilar returns up to limit recipe ids ordered by descending similarity.
// Equal scores are ordered by id.
func (r *VectorRepository) FindSimilar(ctx context.Context, query []float32, limit int, excludeIDs []string) ([]ScoredID, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT recipe_id, embedding FROM recipe_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	exclude := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	var scored []ScoredID
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		embed, err := byteSliceToFloat32Slice(raw)
		if err != nil {
			log.Printf("[RAG] Warning: skipping embedding for recipe %s: %v", id, err)
			continue
		}
		scored = append(scored, ScoredID{ID: id, Score: clamp01(cosineSimilarity(query, embed))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(scored, func(a, b ScoredID) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

func float32SliceToByteSlice(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(floats))
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(f))
	}
	return buf
}

func byteSliceToFloat32Slice(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	floats := make([]float32, len(b)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return floats, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
