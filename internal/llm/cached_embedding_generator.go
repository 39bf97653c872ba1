package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// CachedEmbeddingGenerator wraps an EmbeddingGenerator and keeps results in a
// JSON file keyed by the embedded text, so re-ingesting the catalog or
// re-running a retrieval query does not hit the provider again.
type CachedEmbeddingGenerator struct {
	next  EmbeddingGenerator
	cache map[string][]float32
	path  string
	dirty bool
	mu    sync.Mutex
}

// NewCachedEmbeddingGenerator loads the cache at path if it exists.
func NewCachedEmbeddingGenerator(next EmbeddingGenerator, path string) (*CachedEmbeddingGenerator, error) {
	c := &CachedEmbeddingGenerator{
		next:  next,
		cache: make(map[string][]float32),
		path:  path,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory for %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &c.cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data from %s: %w", path, err)
	}

	log.Printf("[RAG] Loaded %d embeddings from cache: %s", len(c.cache), path)
	return c, nil
}

// GenerateEmbedding returns the cached vector for text or asks the wrapped generator.
func (c *CachedEmbeddingGenerator) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if embedding, ok := c.cache[text]; ok {
		c.mu.Unlock()
		return embedding, nil
	}
	c.mu.Unlock()

	embedding, err := c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	c.mu.Lock()
	c.cache[text] = embedding
	c.dirty = true
	c.mu.Unlock()
	return embedding, nil
}

// Len reports the number of cached vectors.
func (c *CachedEmbeddingGenerator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// SaveCache writes the cache to disk when it changed since the last save.
func (c *CachedEmbeddingGenerator) SaveCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.Marshal(c.cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", c.path, err)
	}

	c.dirty = false
	log.Printf("[RAG] Saved %d embeddings to cache: %s", len(c.cache), c.path)
	return nil
}
