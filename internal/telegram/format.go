package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nutriplan/internal/mealplan"
	"nutriplan/internal/metrics"
	"nutriplan/internal/shared"
	"nutriplan/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func mealLabel(t shared.MealType) string {
	s := t.Lower()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func errorText(action string, err error) string {
	var (
		nf *shared.NotFoundError
		pe *shared.PreconditionError
		ve *shared.ValidationError
	)
	switch {
	case errors.As(err, &nf), errors.As(err, &pe), errors.As(err, &ve):
		return fmt.Sprintf("⚠️ %s", escape(err.Error()))
	case errors.Is(err, shared.ErrForbidden):
		return "⛔ That plan belongs to someone else."
	}
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *Error %s:*\n```\n%v\n```", action, safeErr)
}

func formatPlan(view *mealplan.PlanView) string {
	loc, err := time.LoadLocation(view.Plan.Timezone)
	if err != nil {
		loc = time.UTC
	}

	var sb strings.Builder
	title := "Weekly Meal Plan"
	if view.Plan.Duration == mealplan.Daily {
		title = "Daily Meal Plan"
	}
	fmt.Fprintf(&sb, "📅 *%s* (plan %d, v%d)\n\n", title, view.Plan.ID, view.Version.Number)

	for _, d := range view.Version.Days {
		sb.WriteString(formatDay(d, loc, false))
		sb.WriteString("\n")
	}

	for _, w := range view.Warnings {
		fmt.Fprintf(&sb, "⚠️ _%s_\n", escape(w))
	}
	if view.Stale {
		sb.WriteString("_Your profile changed since this plan was generated._\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDay(d mealplan.DayPlan, loc *time.Location, stale bool) string {
	var sb strings.Builder
	header := d.Date
	if t, err := mealplan.ParseDate(d.Date); err == nil {
		header = t.Format("Mon 2006-01-02")
	}
	fmt.Fprintf(&sb, "*%s*\n", header)
	if len(d.Meals) == 0 {
		sb.WriteString("_No meals_\n")
	}

	total := 0
	for _, m := range d.Meals {
		fmt.Fprintf(&sb, "• %s %s: %s", mealLabel(m.MealType), m.PlannedTime.In(loc).Format("15:04"), escape(m.Title()))
		if m.PlannedCalories > 0 {
			fmt.Fprintf(&sb, " (%d kcal)", m.PlannedCalories)
		}
		if m.IsCustom {
			sb.WriteString(" ✍️")
		}
		sb.WriteString("\n")
		total += m.PlannedCalories
	}
	if total > 0 {
		fmt.Fprintf(&sb, "_Total: %d kcal_\n", total)
	}
	if stale {
		sb.WriteString("_Your profile changed since this day was planned._\n")
	}
	return sb.String()
}

func formatShopping(items []shopping.Item) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n\n")
	if len(items) == 0 {
		sb.WriteString("_Nothing to buy_\n")
	}
	for _, it := range items {
		fmt.Fprintf(&sb, "• %s: %s", escape(it.Name), strconv.FormatFloat(it.Quantity, 'f', -1, 64))
		if it.Unit != "" {
			fmt.Fprintf(&sb, " %s", escape(it.Unit))
		}
		if it.Recipes > 1 {
			fmt.Fprintf(&sb, " (%d recipes)", it.Recipes)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatHistory(planID int64, versions []mealplan.VersionSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗂 *Plan %d history*\n\n", planID)
	for _, v := range versions {
		fmt.Fprintf(&sb, "• v%d %s, %s (%d days, %d meals)", v.Number, escape(string(v.Reason)),
			v.CreatedAt.UTC().Format("2006-01-02 15:04"), v.DayCount, v.MealCount)
		if v.Current {
			sb.WriteString(" ✅")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMacros(sb *strings.Builder, label string, m mealplan.Macros) {
	fmt.Fprintf(sb, "%s: %.0f kcal, P %.1fg, C %.1fg, F %.1fg\n", label, m.Calories, m.Protein, m.Carbohydrates, m.Fat)
}

func formatDaySummary(s *mealplan.DaySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Summary for %s*\n\n", s.Date)
	if s.Reason != "" {
		fmt.Fprintf(&sb, "_%s_\n", s.Reason)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Meals: %d\n", s.MealCount)
	formatMacros(&sb, "Totals", s.Totals)
	if s.Targets != nil {
		formatMacros(&sb, "Targets", *s.Targets)
	}
	if s.Percentages != nil {
		fmt.Fprintf(&sb, "Calories: %.1f%% of target\n", s.Percentages.Calories)
	}
	if s.Estimated {
		sb.WriteString("_Some values are estimated._\n")
	}
	return sb.String()
}

func formatWeekSummary(s *mealplan.WeekSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Summary for plan %d*\n\n", s.PlanID)
	if s.Reason != "" {
		fmt.Fprintf(&sb, "_%s_\n", s.Reason)
		return sb.String()
	}
	for _, d := range s.Days {
		fmt.Fprintf(&sb, "• %s: %.0f kcal\n", d.Date, d.Totals.Calories)
	}
	sb.WriteString("\n")
	formatMacros(&sb, "Daily average", s.DailyAverage)
	if s.Targets != nil {
		formatMacros(&sb, "Targets", *s.Targets)
	}
	if s.Percentages != nil {
		fmt.Fprintf(&sb, "Calories: %.1f%% of target\n", s.Percentages.Calories)
	}
	if s.Estimated {
		sb.WriteString("_Some values are estimated._\n")
	}
	return sb.String()
}

func formatReport(usage []metrics.DailyUsage, agents []metrics.AgentUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs, %dms avg)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.AvgLatencyMS)
	}

	if len(agents) > 0 {
		sb.WriteString("\n🤖 *By Agent*\n")
		for _, a := range agents {
			fmt.Fprintf(&sb, "• %s: %d tokens (%d execs)\n", escape(a.AgentName), a.TotalTokens, a.Executions)
		}
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• Status: %s (db %s)\n", health.Status, health.Database)
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	fmt.Fprintf(&sb, "• Uptime: %s\n", health.Uptime)
	return sb.String()
}
