package cli

import (
	"context"
	"fmt"
	"time"

	"nutriplan/internal/api/middleware"
	"nutriplan/internal/app"

	"github.com/spf13/cobra"
)

func newMetricsCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect and prune model usage metrics",
	}
	cmd.AddCommand(newMetricsUsageCmd(open), newMetricsCleanupCmd(open))
	return cmd
}

func newMetricsUsageCmd(open Opener) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print token usage per day and per agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				daily, err := a.Metrics.GetDailyUsage(ctx, days)
				if err != nil {
					return err
				}
				agents, err := a.Metrics.GetAgentUsage(ctx, days)
				if err != nil {
					return err
				}
				renderUsage(cmd.OutOrStdout(), daily, agents)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "window in days")
	return cmd
}

type expiringCache interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

func newMetricsCleanupCmd(open Opener) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old metric records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				affected, err := a.Metrics.Cleanup(ctx, days)
				if err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)

				if c, ok := a.Strategies.(expiringCache); ok {
					expired, err := c.CleanupExpired(ctx)
					if err != nil {
						return fmt.Errorf("strategy cache cleanup failed: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired strategy cache entries.\n", expired)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "keep records for the last N days")
	return cmd
}

func newTokenCmd(open Opener) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := a.Config.RequireAPI(); err != nil {
					return err
				}
				token, err := middleware.NewTokenService(a.Config.APIJWTSecret).Generate(user, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
