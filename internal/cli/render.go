package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"nutriplan/internal/mealplan"
	"nutriplan/internal/metrics"
	"nutriplan/internal/shopping"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func renderPlan(w io.Writer, view *mealplan.PlanView) {
	loc, err := time.LoadLocation(view.Plan.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fmt.Fprintf(w, "Plan %d (%s) version %d, %s\n\n", view.Plan.ID, view.Plan.Duration, view.Version.Number, view.Version.Reason)

	tw := table(w)
	fmt.Fprintln(tw, "DATE\tTIME\tMEAL\tID\tTITLE\tKCAL")
	for _, d := range view.Version.Days {
		if len(d.Meals) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t(no meals)\t0\n", d.Date)
		}
		for _, m := range d.Meals {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n", d.Date, m.PlannedTime.In(loc).Format("15:04"),
				m.MealType, m.ID, m.Title(), m.PlannedCalories)
		}
	}
	tw.Flush()

	for _, warning := range view.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if view.Stale {
		fmt.Fprintln(w, "note: the profile or strategy changed since this version was generated")
	}
}

func renderHistory(w io.Writer, versions []mealplan.VersionSummary) {
	tw := table(w)
	fmt.Fprintln(tw, "VERSION\tREASON\tCREATED\tDAYS\tMEALS\tCURRENT")
	for _, v := range versions {
		current := ""
		if v.Current {
			current = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", v.Number, v.Reason, v.CreatedAt.UTC().Format(time.RFC3339),
			v.DayCount, v.MealCount, current)
	}
	tw.Flush()
}

func renderShopping(w io.Writer, items []shopping.Item) {
	tw := table(w)
	fmt.Fprintln(tw, "ITEM\tQUANTITY\tUNIT\tRECIPES")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", it.Name, strconv.FormatFloat(it.Quantity, 'f', -1, 64), it.Unit, it.Recipes)
	}
	tw.Flush()
}

func renderWeekSummary(w io.Writer, s *mealplan.WeekSummary) {
	if s.Reason != "" {
		fmt.Fprintf(w, "Plan %d: %s\n", s.PlanID, s.Reason)
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "DATE\tMEALS\tKCAL\tPROTEIN\tCARBS\tFAT")
	for _, d := range s.Days {
		fmt.Fprintf(tw, "%s\t%d\t%.0f\t%.1f\t%.1f\t%.1f\n", d.Date, d.MealCount,
			d.Totals.Calories, d.Totals.Protein, d.Totals.Carbohydrates, d.Totals.Fat)
	}
	avg := s.DailyAverage
	fmt.Fprintf(tw, "average\t\t%.0f\t%.1f\t%.1f\t%.1f\n", avg.Calories, avg.Protein, avg.Carbohydrates, avg.Fat)
	tw.Flush()
	if s.Percentages != nil {
		fmt.Fprintf(w, "Calories: %.1f%% of target\n", s.Percentages.Calories)
	}
}

func renderUsage(w io.Writer, daily []metrics.DailyUsage, agents []metrics.AgentUsage) {
	tw := table(w)
	fmt.Fprintln(tw, "DATE\tPROMPT\tCOMPLETION\tEXECUTIONS\tAVG MS")
	for _, d := range daily {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution, d.AvgLatencyMS)
	}
	tw.Flush()

	if len(agents) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = table(w)
	fmt.Fprintln(tw, "AGENT\tTOKENS\tEXECUTIONS")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", a.AgentName, a.TotalTokens, a.Executions)
	}
	tw.Flush()
}
