package cli

import (
	"context"
	"fmt"
	"strconv"

	"nutriplan/internal/app"
	"nutriplan/internal/mealplan"

	"github.com/spf13/cobra"
)

func newPlanCmd(open Opener) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate and manage meal plans",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "user id (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(
		newPlanWeekCmd(open, &user),
		newPlanDayCmd(open, &user),
		newPlanShowCmd(open, &user),
		newPlanRegenerateCmd(open, &user),
		newPlanHistoryCmd(open, &user),
		newPlanRestoreCmd(open, &user),
		newPlanSummaryCmd(open, &user),
	)
	return cmd
}

func newPlanWeekCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "week <start-date>",
		Short: "Generate a seven-day plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				view, err := a.Plans.GenerateWeek(ctx, *user, args[0])
				if err != nil {
					return err
				}
				renderPlan(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

func newPlanDayCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "day <date>",
		Short: "Generate a single-day plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				view, err := a.Plans.GenerateDay(ctx, *user, args[0])
				if err != nil {
					return err
				}
				renderPlan(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

func newPlanShowCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Print the current version of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				view, err := a.Plans.Get(ctx, *user, planID)
				if err != nil {
					return err
				}
				renderPlan(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

func newPlanRegenerateCmd(open Opener, user *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "regenerate <plan-id>",
		Short: "Regenerate a plan, or one of its days with --date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				var view *mealplan.PlanView
				if date != "" {
					view, err = a.Plans.RegenerateDay(ctx, *user, planID, date)
				} else {
					view, err = a.Plans.Regenerate(ctx, *user, planID)
				}
				if err != nil {
					return err
				}
				renderPlan(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "regenerate only this day")
	return cmd
}

func newPlanHistoryCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history <plan-id>",
		Short: "List the versions of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				versions, err := a.Plans.History(ctx, *user, planID)
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), versions)
				return nil
			})
		},
	}
}

func newPlanRestoreCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <plan-id> <version>",
		Short: "Restore a historical version as the newest version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			number, err := strconv.Atoi(args[1])
			if err != nil || number <= 0 {
				return fmt.Errorf("version must be a positive number, got %q", args[1])
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				view, err := a.Plans.Restore(ctx, *user, planID, number)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored version %d as version %d.\n", number, view.Version.Number)
				return nil
			})
		},
	}
}

func newPlanSummaryCmd(open Opener, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <plan-id>",
		Short: "Print the nutrition summary of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				s, err := a.Plans.WeekSummary(ctx, *user, planID)
				if err != nil {
					return err
				}
				renderWeekSummary(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
}

func newShoppingCmd(open Opener) *cobra.Command {
	var (
		user    string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "shopping <plan-id>",
		Short: "Print the shopping list of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				list, err := a.Shopping.ForPlan(ctx, user, planID, refresh)
				if err != nil {
					return err
				}
				renderShopping(cmd.OutOrStdout(), list.Items)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "rebuild the list instead of using the stored one")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func parsePlanID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("plan id must be a positive number, got %q", s)
	}
	return id, nil
}
