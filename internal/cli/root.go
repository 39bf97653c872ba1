// Package cli implements the nutriplan command line.
package cli

import (
	"context"

	"nutriplan/internal/app"

	"github.com/spf13/cobra"
)

// Opener builds the application for one command run. The caller of the
// command closes it.
type Opener func(ctx context.Context) (*app.App, error)

// NewRootCmd creates the top-level "nutriplan" command and registers all
// subcommands against the provided Opener.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "nutriplan",
		Short:         "Nutrition-aware meal planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(open),
		newSeedCmd(open),
		newIngestCmd(open),
		newClipCmd(open),
		newPlanCmd(open),
		newShoppingCmd(open),
		newMetricsCmd(open),
		newTokenCmd(open),
	)

	return root
}

// withApp opens the application, runs fn and closes it again.
func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
