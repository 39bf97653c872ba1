package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"nutriplan/internal/clipper"
	"nutriplan/internal/database"
	"nutriplan/internal/ghost"
	"nutriplan/internal/llm"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shared"
	"nutriplan/internal/toolcall"
)

// MetaRecorder persists agent execution metadata.
type MetaRecorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

// IngestReport counts what one ingestion run did.
type IngestReport struct {
	Fetched  int `json:"fetched"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	// Indexed is the number of recipes in the similarity index after the run.
	Indexed int `json:"indexed"`
}

// Ingestor turns blog posts into indexed catalog recipes with
// calculator-derived nutrition.
type Ingestor struct {
	posts    ghost.Client
	textGen  llm.TextGenerator
	embedGen llm.EmbeddingGenerator
	gateway  *toolcall.Gateway
	db       database.DBTX
	uow      database.UnitOfWork
	metrics  MetaRecorder

	// Delay between posts keeps the extractor under free-tier rate limits.
	Delay time.Duration
}

func NewIngestor(
	posts ghost.Client,
	textGen llm.TextGenerator,
	embedGen llm.EmbeddingGenerator,
	gateway *toolcall.Gateway,
	db database.DBTX,
	uow database.UnitOfWork,
	metrics MetaRecorder,
) *Ingestor {
	return &Ingestor{
		posts:    posts,
		textGen:  textGen,
		embedGen: embedGen,
		gateway:  gateway,
		db:       db,
		uow:      uow,
		metrics:  metrics,
		Delay:    5 * time.Second,
	}
}

// Ingest fetches posts edited after since (all when empty) and processes
// each one. A failing post is logged and counted, never fatal.
func (i *Ingestor) Ingest(ctx context.Context, since string) (IngestReport, error) {
	posts, err := i.posts.FetchPosts(ctx, since)
	if err != nil {
		return IngestReport{}, fmt.Errorf("failed to fetch recipes from ghost: %w", err)
	}

	report := IngestReport{Fetched: len(posts)}
	log.Printf("Successfully fetched %d recipe posts from Ghost.", len(posts))

	vectors := llm.NewVectorRepository(i.db)
	for n, post := range posts {
		existing, err := recipe.NewRepository(i.db).Get(ctx, post.ID)
		if err != nil {
			return report, err
		}
		if existing != nil && post.UpdatedAt != "" && existing.UpdatedAt == post.UpdatedAt {
			report.Skipped++
			continue
		}

		if err := i.ProcessPost(ctx, post); err != nil {
			log.Printf("Failed to ingest '%s': %v", post.Title, err)
			report.Failed++
			// An edited post that no longer normalizes keeps its catalog row
			// for existing plans but stops being retrieved on stale content.
			if existing != nil {
				if err := vectors.Delete(ctx, post.ID); err != nil {
					log.Printf("Warning: failed to drop stale embedding for '%s': %v", post.Title, err)
				}
			}
		} else {
			report.Ingested++
		}

		if n < len(posts)-1 && i.Delay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(i.Delay):
			}
		}
	}

	if report.Indexed, err = vectors.Count(ctx); err != nil {
		return report, fmt.Errorf("failed to count indexed recipes: %w", err)
	}
	log.Printf("Ingestion complete: %d ingested, %d skipped, %d failed, %d indexed",
		report.Ingested, report.Skipped, report.Failed, report.Indexed)
	return report, nil
}

// ProcessPost normalizes one post, computes its nutrition and stores the
// recipe with its embedding in one transaction.
func (i *Ingestor) ProcessPost(ctx context.Context, post ghost.Post) error {
	log.Printf("Normalizing '%s'...", post.Title)
	normalized, meta, err := recipe.NormalizeHTML(ctx, i.textGen, i.embedGen, recipe.PostData{
		ID:        post.ID,
		Title:     post.Title,
		HTML:      post.HTML,
		UpdatedAt: post.UpdatedAt,
	})
	i.record(ctx, meta)
	if err != nil {
		return err
	}

	rec := normalized.Recipe
	if err := i.attachNutrition(ctx, &rec); err != nil {
		log.Printf("Warning: no nutrition for '%s': %v", rec.Title, err)
	}

	err = i.uow.WithinTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		if err := recipe.NewRepository(tx).Save(ctx, &rec); err != nil {
			return err
		}
		return llm.NewVectorRepository(tx).Save(ctx, rec.ID, normalized.Embedding)
	})
	if err != nil {
		return fmt.Errorf("failed to store recipe: %w", err)
	}

	log.Printf("Successfully processed '%s'.", rec.Title)
	return nil
}

func (i *Ingestor) attachNutrition(ctx context.Context, rec *recipe.Recipe) error {
	args := toolcall.ArgumentsFrom(rec.IngredientInputs(), rec.Servings)
	if err := i.gateway.Validate(args); err != nil {
		return err
	}
	out, err := i.gateway.Execute(ctx, args)
	if err != nil {
		return err
	}
	info := out.Info
	rec.Nutrition = &info
	return nil
}

// Clip publishes a web page as a blog post and ingests it right away.
func (i *Ingestor) Clip(ctx context.Context, c *clipper.Clipper, pageURL string) (*recipe.Recipe, error) {
	res, err := c.ClipURL(ctx, pageURL)
	i.record(ctx, res.Meta)
	if err != nil {
		return nil, err
	}

	post := *res.Post
	if post.UpdatedAt == "" {
		post.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := i.ProcessPost(ctx, post); err != nil {
		return nil, err
	}
	return recipe.NewRepository(i.db).Get(ctx, post.ID)
}

func (i *Ingestor) record(ctx context.Context, meta shared.AgentMeta) {
	if i.metrics == nil || meta.AgentName == "" {
		return
	}
	if err := i.metrics.RecordMeta(ctx, meta); err != nil {
		log.Printf("Warning: failed to record metrics for %s: %v", meta.AgentName, err)
	}
}
