package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"nutriplan/internal/clipper"
	"nutriplan/internal/config"
	"nutriplan/internal/database"
	"nutriplan/internal/ghost"
	"nutriplan/internal/llm"
	"nutriplan/internal/mealplan"
	"nutriplan/internal/metrics"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/profile"
	"nutriplan/internal/recipe"
	"nutriplan/internal/shopping"
	"nutriplan/internal/strategy"
	"nutriplan/internal/toolcall"
)

// Clients are the outbound model and catalog-source clients.
type Clients struct {
	Chat       llm.ChatCompleter
	Extractor  llm.TextGenerator
	Embeddings llm.EmbeddingGenerator
	// Ghost is nil when no catalog source is configured.
	Ghost ghost.Client
}

// App holds the application's services.
type App struct {
	Config     *config.Config
	DB         *database.DB
	Plans      *mealplan.Manager
	Shopping   *shopping.Service
	Profiles   *profile.Repository
	Strategies strategy.Store
	Recipes    *recipe.Repository
	Nutrition  *nutrition.Repository
	Metrics    *metrics.Store
	Health     *metrics.Reporter
	Ingestor   *Ingestor
	Clipper    *clipper.Clipper

	closers []func() error
}

// New opens the database, connects the model clients and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	embeddings, err := llm.NewCachedEmbeddingGenerator(gemini, cfg.EmbeddingCachePath)
	if err != nil {
		gemini.Close()
		db.Close()
		return nil, err
	}

	clients := Clients{
		Chat:       llm.NewGroqClient(cfg, llm.ModelGenerator, 0.7),
		Extractor:  llm.NewGroqClient(cfg, llm.ModelExtractor, 0.1),
		Embeddings: embeddings,
	}
	if cfg.RequireGhost() == nil {
		clients.Ghost = ghost.NewClient(cfg)
	} else {
		log.Printf("Warning: Ghost is not configured, catalog ingestion disabled")
	}

	a := Build(cfg, db, clients)
	a.closers = append(a.closers, embeddings.SaveCache, gemini.Close)
	return a, nil
}

// Build wires the services over an open database and the given clients.
func Build(cfg *config.Config, db *database.DB, c Clients) *App {
	uow := database.NewUnitOfWork(db.SQL)
	recipes := recipe.NewRepository(db.SQL)
	ingredients := nutrition.NewRepository(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)
	profiles := profile.NewRepository(db.SQL)
	strategies := strategy.NewSQLiteStore(db.SQL, cfg.StrategyCacheTTL)

	gateway := toolcall.NewGateway(nutrition.NewCalculator(ingredients, cfg.FuzzyMinMatchLength))
	generator := recipe.NewGenerator(c.Chat, gateway, cfg.RequireFunctionCall)
	retriever := recipe.NewRetriever(c.Embeddings, llm.NewVectorRepository(db.SQL), recipes)

	days := mealplan.NewDayAssembler(strategies, profiles, retriever, generator, recipes, metricsStore)
	plans := mealplan.NewManager(db.SQL, uow, days)

	a := &App{
		Config:     cfg,
		DB:         db,
		Plans:      plans,
		Shopping:   shopping.NewService(db.SQL, plans),
		Profiles:   profiles,
		Strategies: strategies,
		Recipes:    recipes,
		Nutrition:  ingredients,
		Metrics:    metricsStore,
		Health:     metrics.NewReporter(db.SQL, filepath.Dir(cfg.DatabasePath)),
	}
	if c.Ghost != nil {
		a.Ingestor = NewIngestor(c.Ghost, c.Extractor, c.Embeddings, gateway, db.SQL, uow, metricsStore)
		a.Clipper = clipper.NewClipper(c.Ghost, c.Extractor)
	}
	return a
}

// ErrIngestionDisabled is returned by catalog operations without a Ghost source.
var ErrIngestionDisabled = errors.New("catalog ingestion is not configured")

// ClipURL clips a page into the catalog.
func (a *App) ClipURL(ctx context.Context, pageURL string) (*recipe.Recipe, error) {
	if a.Ingestor == nil {
		return nil, ErrIngestionDisabled
	}
	return a.Ingestor.Clip(ctx, a.Clipper, pageURL)
}

// IngestRecipes pulls new and edited posts into the catalog.
func (a *App) IngestRecipes(ctx context.Context, since string) (IngestReport, error) {
	if a.Ingestor == nil {
		return IngestReport{}, ErrIngestionDisabled
	}
	return a.Ingestor.Ingest(ctx, since)
}

// SeedIngredients loads the bundled ingredient catalog, or the YAML file at
// path when given.
func (a *App) SeedIngredients(ctx context.Context, path string) (int, error) {
	var (
		items []nutrition.Ingredient
		err   error
	)
	if path == "" {
		items, err = nutrition.DefaultSeed()
	} else {
		items, err = nutrition.LoadSeedFile(path)
	}
	if err != nil {
		return 0, err
	}
	return nutrition.Seed(ctx, a.Nutrition, items)
}

// EnsureIngredients seeds the bundled catalog into an empty ingredient table.
func (a *App) EnsureIngredients(ctx context.Context) error {
	all, err := a.Nutrition.All(ctx)
	if err != nil {
		return err
	}
	if len(all) > 0 {
		return nil
	}
	n, err := a.SeedIngredients(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to seed ingredients: %w", err)
	}
	log.Printf("Seeded %d ingredients", n)
	return nil
}

// Close flushes caches and releases clients and the database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
