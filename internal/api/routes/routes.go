package routes

import (
	"nutriplan/internal/api/handlers"
	"nutriplan/internal/api/middleware"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	App            *fiber.App
	PlanHandler    handlers.PlanHandler
	MealHandler    handlers.MealHandler
	ProfileHandler handlers.ProfileHandler
	SystemHandler  handlers.SystemHandler
	Tokens         *middleware.TokenService
}

func (c *Config) Setup() {
	c.GuestRoute()
	c.Plans()
	c.Meals()
	c.Profile()
	c.System()
}

func (c *Config) GuestRoute() {
	c.App.Get("/health", c.SystemHandler.Health)
}

func (c *Config) Plans() {
	plans := c.App.Group("/api/v1/plans", middleware.Auth(c.Tokens))
	plans.Post("/week", c.PlanHandler.GenerateWeek)
	plans.Post("/day", c.PlanHandler.GenerateDay)
	plans.Get("/latest", c.PlanHandler.GetLatest)
	plans.Get("/:id", c.PlanHandler.GetPlan)
	plans.Post("/:id/regenerate", c.PlanHandler.Regenerate)
	plans.Post("/:id/days/:date/regenerate", c.PlanHandler.RegenerateDay)
	plans.Get("/:id/versions", c.PlanHandler.GetHistory)
	plans.Get("/:id/versions/:number", c.PlanHandler.GetVersion)
	plans.Post("/:id/versions/:number/restore", c.PlanHandler.Restore)
	plans.Get("/:id/summary", c.PlanHandler.GetWeekSummary)
	plans.Get("/:id/shopping-list", c.PlanHandler.GetShoppingList)

	days := c.App.Group("/api/v1/days", middleware.Auth(c.Tokens))
	days.Get("/:date", c.PlanHandler.GetDay)
	days.Get("/:date/summary", c.PlanHandler.GetDaySummary)
}

func (c *Config) Meals() {
	meals := c.App.Group("/api/v1/meals", middleware.Auth(c.Tokens))
	meals.Post("/custom", c.MealHandler.AddCustomMeal)
	meals.Post("/:id/replace", c.MealHandler.ReplaceMeal)
	meals.Post("/:id/move", c.MealHandler.MoveMeal)
	meals.Delete("/:id", c.MealHandler.DeleteCustomMeal)
}

func (c *Config) Profile() {
	me := c.App.Group("/api/v1/me", middleware.Auth(c.Tokens))
	me.Get("/profile", c.ProfileHandler.GetProfile)
	me.Put("/profile", c.ProfileHandler.SaveProfile)
	me.Put("/strategy", c.ProfileHandler.SaveStrategy)
}

func (c *Config) System() {
	system := c.App.Group("/api/v1", middleware.Auth(c.Tokens))
	system.Get("/usage", c.SystemHandler.Usage)
	system.Post("/recipes/clip", c.SystemHandler.Clip)
	system.Post("/recipes/ingest", c.SystemHandler.Ingest)
}
