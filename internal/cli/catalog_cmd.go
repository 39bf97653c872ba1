package cli

import (
	"context"
	"fmt"

	"nutriplan/internal/app"

	"github.com/spf13/cobra"
)

func newMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the database runs pending migrations.
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				version, dirty, err := a.DB.SchemaVersion()
				if err != nil {
					return err
				}
				if dirty {
					return fmt.Errorf("database %s is dirty at schema version %d", a.Config.DatabasePath, version)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date (schema version %d).\n", a.Config.DatabasePath, version)
				return nil
			})
		},
	}
}

func newSeedCmd(open Opener) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the ingredient nutrition catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				n, err := a.SeedIngredients(ctx, file)
				if err != nil {
					return fmt.Errorf("seeding failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d ingredients.\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML ingredient file (defaults to the bundled catalog)")
	return cmd
}

func newIngestCmd(open Opener) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch and normalize recipes from Ghost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				report, err := a.IngestRecipes(ctx, since)
				if err != nil {
					return fmt.Errorf("ingestion failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d posts: %d ingested, %d up to date, %d failed. %d recipes indexed.\n",
					report.Fetched, report.Ingested, report.Skipped, report.Failed, report.Indexed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only posts updated after this timestamp")
	return cmd
}

func newClipCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "clip <url>",
		Short: "Clip a recipe page into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				rec, err := a.ClipURL(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %q as %s (%.0f kcal per serving).\n", rec.Title, rec.ID, rec.CaloriesPerServing())
				return nil
			})
		},
	}
}
