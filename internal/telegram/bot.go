package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nutriplan/internal/app"
	"nutriplan/internal/config"
	"nutriplan/internal/mealplan"
	"nutriplan/internal/shared"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "🥗 *NutriPlan*\n\n" +
	"/week [YYYY-MM-DD] - plan a week (next Monday by default)\n" +
	"/day [YYYY-MM-DD] - plan a single day\n" +
	"/today - show today's meals\n" +
	"/regenerate - regenerate the latest week\n" +
	"/history - list versions of the latest week\n" +
	"/restore N - restore version N of the latest week\n" +
	"/shopping [refresh] - shopping list for the latest week\n" +
	"/summary [YYYY-MM-DD] - nutrition summary\n\n" +
	"Send a recipe URL to clip it into the catalog."

// sender is the part of tgbotapi.BotAPI the bot talks through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the planning services.
type Bot struct {
	api sender
	app *app.App
	cfg *config.Config
	now func() time.Time
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		log.Printf("Webhook set response: %s", resp.Description)
	}

	return newBot(api, cfg, a), nil
}

func newBot(api sender, cfg *config.Config, a *app.App) *Bot {
	return &Bot{api: api, app: a, cfg: cfg, now: time.Now}
}

// ServeHTTP handles webhook updates. Work happens in the background so
// Telegram gets its acknowledgement immediately.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("Error parsing update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if q := update.CallbackQuery; q != nil {
		if q.From == nil || !b.isAllowed(q.From.ID) {
			return
		}
		go b.handleCallbackQuery(q)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if !b.isAllowed(msg.From.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", msg.From.ID, msg.From.UserName)
		return
	}

	go b.processMessage(msg)
}

func (b *Bot) isAllowed(id int64) bool {
	for _, allowed := range b.cfg.TelegramAllowedUserIDs {
		if id == allowed {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	userID := userKey(msg.From.ID)

	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		b.handleClip(ctx, chatID, text)
		return
	}

	cmd, args := parseCommand(text)
	switch cmd {
	case "week":
		b.handleWeek(ctx, userID, chatID, args)
	case "day":
		b.handleGenerateDay(ctx, userID, chatID, args)
	case "today":
		b.handleToday(ctx, userID, chatID)
	case "regenerate":
		b.withLatestWeek(ctx, userID, chatID, func(planID int64) {
			msgID := b.sendStatus(chatID, "🔄 *Regenerating your week...*")
			view, err := b.app.Plans.Regenerate(ctx, userID, planID)
			b.finishPlan(chatID, msgID, view, err)
		})
	case "history":
		b.withLatestWeek(ctx, userID, chatID, func(planID int64) {
			versions, err := b.app.Plans.History(ctx, userID, planID)
			if err != nil {
				b.sendError(chatID, "loading history", err)
				return
			}
			b.sendMarkdown(chatID, formatHistory(planID, versions))
		})
	case "restore":
		b.handleRestore(ctx, userID, chatID, args)
	case "shopping":
		refresh := len(args) > 0 && args[0] == "refresh"
		b.withLatestWeek(ctx, userID, chatID, func(planID int64) {
			list, err := b.app.Shopping.ForPlan(ctx, userID, planID, refresh)
			if err != nil {
				b.sendError(chatID, "building shopping list", err)
				return
			}
			b.sendMarkdown(chatID, formatShopping(list.Items))
		})
	case "summary":
		b.handleSummary(ctx, userID, chatID, args)
	case "metrics":
		if msg.From.ID != b.cfg.AdminTelegramID {
			b.sendMarkdown(chatID, "⛔ *Access Denied*: Admin only.")
			return
		}
		b.handleMetrics(ctx, chatID)
	default:
		b.sendMarkdown(chatID, helpText)
	}
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments. Text that
// is not a command yields an empty command.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// nextMonday returns the first Monday strictly after t.
func nextMonday(t time.Time) string {
	days := (8 - int(t.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days).Format(mealplan.DateLayout)
}

func (b *Bot) handleWeek(ctx context.Context, userID string, chatID int64, args []string) {
	start := nextMonday(b.now())
	if len(args) > 0 {
		start = args[0]
	}
	if _, err := mealplan.ParseDate(start); err != nil {
		b.sendError(chatID, "planning week", err)
		return
	}

	latest, err := b.app.Plans.Latest(ctx, userID, mealplan.Weekly)
	if err == nil && len(latest.Version.Days) > 0 && latest.Version.Days[0].Date == start {
		following, _ := mealplan.AddDays(start, 7)
		prompt := fmt.Sprintf("🗓️ A plan already exists for the week starting *%s*.\nWhat would you like to do?", start)
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate", fmt.Sprintf("regen|%d", latest.Plan.ID)),
				tgbotapi.NewInlineKeyboardButtonData("⏭️ Plan Following Week", "week|"+following),
			),
		)
		reply := tgbotapi.NewMessage(chatID, prompt)
		reply.ParseMode = tgbotapi.ModeMarkdown
		reply.ReplyMarkup = keyboard
		b.send(reply)
		return
	}

	msgID := b.sendStatus(chatID, "🧑‍🍳 *Thinking...* \n(Picking recipes and generating your week)")
	b.generateWeek(ctx, userID, chatID, msgID, start)
}

func (b *Bot) generateWeek(ctx context.Context, userID string, chatID int64, msgID int, start string) {
	log.Printf("[TELEGRAM] Generating week %s for user %s", start, userID)
	view, err := b.app.Plans.GenerateWeek(ctx, userID, start)
	b.finishPlan(chatID, msgID, view, err)
}

func (b *Bot) handleGenerateDay(ctx context.Context, userID string, chatID int64, args []string) {
	date := b.today(ctx, userID)
	if len(args) > 0 {
		date = args[0]
	}
	msgID := b.sendStatus(chatID, "🧑‍🍳 *Thinking...*")
	view, err := b.app.Plans.GenerateDay(ctx, userID, date)
	b.finishPlan(chatID, msgID, view, err)
}

func (b *Bot) handleToday(ctx context.Context, userID string, chatID int64) {
	date := b.today(ctx, userID)
	view, err := b.app.Plans.Day(ctx, userID, date)
	if err != nil {
		b.sendError(chatID, "loading today", err)
		return
	}
	b.sendMarkdown(chatID, formatDay(view.Day, b.location(ctx, userID), view.Stale))
}

func (b *Bot) handleRestore(ctx context.Context, userID string, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendMarkdown(chatID, "Usage: /restore N")
		return
	}
	number, err := strconv.Atoi(args[0])
	if err != nil || number <= 0 {
		b.sendMarkdown(chatID, "Version must be a positive number.")
		return
	}
	b.withLatestWeek(ctx, userID, chatID, func(planID int64) {
		view, err := b.app.Plans.Restore(ctx, userID, planID, number)
		if err != nil {
			b.sendError(chatID, "restoring version", err)
			return
		}
		b.sendMarkdown(chatID, fmt.Sprintf("♻️ Restored version %d as version %d.\n\n", number, view.Version.Number)+formatPlan(view))
	})
}

func (b *Bot) handleSummary(ctx context.Context, userID string, chatID int64, args []string) {
	if len(args) > 0 {
		s, err := b.app.Plans.DaySummary(ctx, userID, args[0])
		if err != nil {
			b.sendError(chatID, "summarizing day", err)
			return
		}
		b.sendMarkdown(chatID, formatDaySummary(s))
		return
	}
	b.withLatestWeek(ctx, userID, chatID, func(planID int64) {
		s, err := b.app.Plans.WeekSummary(ctx, userID, planID)
		if err != nil {
			b.sendError(chatID, "summarizing week", err)
			return
		}
		b.sendMarkdown(chatID, formatWeekSummary(s))
	})
}

func (b *Bot) withLatestWeek(ctx context.Context, userID string, chatID int64, fn func(planID int64)) {
	latest, err := b.app.Plans.Latest(ctx, userID, mealplan.Weekly)
	if err != nil {
		var nf *shared.NotFoundError
		if errors.As(err, &nf) {
			b.sendMarkdown(chatID, "You have no weekly plan yet. Send /week to create one.")
			return
		}
		b.sendError(chatID, "loading plan", err)
		return
	}
	fn(latest.Plan.ID)
}

func (b *Bot) handleClip(ctx context.Context, chatID int64, pageURL string) {
	msgID := b.sendStatus(chatID, "✂️ *Clipping recipe...* \n(Extracting and saving to the catalog)")

	rec, err := b.app.ClipURL(ctx, pageURL)
	if err != nil {
		log.Printf("Error clipping recipe: %v", err)
		b.edit(chatID, msgID, errorText("clipping recipe", err))
		return
	}
	b.edit(chatID, msgID, fmt.Sprintf("✅ *Recipe Saved!*\n\n*Title:* %s\n*Calories:* %.0f kcal per serving",
		escape(rec.Title), rec.CaloriesPerServing()))
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	userID := userKey(query.From.ID)
	chatID := query.Message.Chat.ID
	msgID := query.Message.MessageID

	action, arg, ok := strings.Cut(query.Data, "|")
	if !ok {
		return
	}

	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("Warning: failed to answer callback %s: %v", query.ID, err)
	}
	b.edit(chatID, msgID, "🧑‍🍳 *Thinking...*")

	switch action {
	case "regen":
		planID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		view, err := b.app.Plans.Regenerate(ctx, userID, planID)
		b.finishPlan(chatID, msgID, view, err)
	case "week":
		b.generateWeek(ctx, userID, chatID, msgID, arg)
	}
}

// finishPlan replaces the status message with the plan, or with the error.
func (b *Bot) finishPlan(chatID int64, msgID int, view *mealplan.PlanView, err error) {
	if err != nil {
		log.Printf("Error generating plan: %v", err)
		b.edit(chatID, msgID, errorText("generating plan", err))
		return
	}
	b.edit(chatID, msgID, formatPlan(view))

	if view.FailedMeals > 0 {
		b.sendAdminAlert(fmt.Sprintf("⚠️ *Generation Alert*\nPlan %d v%d has %d placeholder meals",
			view.Plan.ID, view.Version.Number, view.FailedMeals))
	}
}

func (b *Bot) handleMetrics(ctx context.Context, chatID int64) {
	usage, err := b.app.Metrics.GetDailyUsage(ctx, 7)
	if err != nil {
		b.sendMarkdown(chatID, "❌ Error fetching metrics.")
		return
	}
	agents, err := b.app.Metrics.GetAgentUsage(ctx, 7)
	if err != nil {
		b.sendMarkdown(chatID, "❌ Error fetching metrics.")
		return
	}
	b.sendMarkdown(chatID, formatReport(usage, agents, b.app.Health.Health(ctx)))
}

// today is the current date in the user's timezone.
func (b *Bot) today(ctx context.Context, userID string) string {
	return b.now().In(b.location(ctx, userID)).Format(mealplan.DateLayout)
}

func (b *Bot) location(ctx context.Context, userID string) *time.Location {
	p, err := b.app.Profiles.Get(ctx, userID)
	if err != nil || p == nil {
		return time.UTC
	}
	return p.Location()
}

func (b *Bot) sendStatus(chatID int64, text string) int {
	sent, err := b.sendMarkdown(chatID, text)
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
	}
	return sent.MessageID
}

func (b *Bot) sendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return b.send(msg)
}

func (b *Bot) sendError(chatID int64, action string, err error) {
	log.Printf("Error %s: %v", action, err)
	b.sendMarkdown(chatID, errorText(action, err))
}

func (b *Bot) edit(chatID int64, msgID int, text string) {
	if msgID == 0 {
		b.sendMarkdown(chatID, text)
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.send(edit)
}

func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := b.api.Send(c)
	if err != nil {
		log.Printf("Warning: telegram send failed: %v", err)
	}
	return msg, err
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminTelegramID == 0 {
		return
	}
	b.sendMarkdown(b.cfg.AdminTelegramID, text)
}
