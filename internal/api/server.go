// Package api exposes the planner over HTTP.
package api

import (
	"time"

	"nutriplan/internal/api/handlers"
	"nutriplan/internal/api/middleware"
	"nutriplan/internal/api/routes"
	"nutriplan/internal/app"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// WebhookPath is where the Telegram bot receives updates when enabled.
const WebhookPath = "/telegram/webhook"

// NewServer builds the Fiber app over the application services. Plan
// generation runs many model calls, so the write timeout is generous.
func NewServer(a *app.App, tokens *middleware.TokenService) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:      "nutriplan",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	})

	server.Use(recover.New())
	server.Use(logger.New(logger.Config{TimeFormat: "2006-01-02 15:04:05"}))
	server.Use(limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == WebhookPath
		},
	}))

	validate := validator.New()
	cfg := routes.Config{
		App:            server,
		PlanHandler:    handlers.NewPlanHandler(a.Plans, a.Shopping, validate),
		MealHandler:    handlers.NewMealHandler(a.Plans, validate),
		ProfileHandler: handlers.NewProfileHandler(a.Profiles, a.Strategies, validate),
		SystemHandler:  handlers.NewSystemHandler(a.Health, a.Metrics, a, validate),
		Tokens:         tokens,
	}
	cfg.Setup()
	return server
}
