package handlers

import (
	"context"

	"nutriplan/internal/api/presenters"
	"nutriplan/internal/app"
	"nutriplan/internal/metrics"
	"nutriplan/internal/recipe"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Catalog grows the recipe catalog.
type Catalog interface {
	ClipURL(ctx context.Context, pageURL string) (*recipe.Recipe, error)
	IngestRecipes(ctx context.Context, since string) (app.IngestReport, error)
}

type (
	SystemHandler interface {
		Health(c *fiber.Ctx) error
		Usage(c *fiber.Ctx) error
		Clip(c *fiber.Ctx) error
		Ingest(c *fiber.Ctx) error
	}

	systemHandler struct {
		health    *metrics.Reporter
		usage     *metrics.Store
		catalog   Catalog
		validator *validator.Validate
	}

	ClipRequest struct {
		URL string `json:"url" validate:"required,http_url"`
	}
)

func NewSystemHandler(health *metrics.Reporter, usage *metrics.Store, catalog Catalog, validator *validator.Validate) SystemHandler {
	return &systemHandler{health: health, usage: usage, catalog: catalog, validator: validator}
}

func (h *systemHandler) Health(c *fiber.Ctx) error {
	report := h.health.Health(c.UserContext())
	status := fiber.StatusOK
	if report.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

func (h *systemHandler) Usage(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days <= 0 {
		days = 7
	}
	daily, err := h.usage.GetDailyUsage(c.UserContext(), days)
	if err != nil {
		return fail(c, MessageFailedGetUsage, err)
	}
	agents, err := h.usage.GetAgentUsage(c.UserContext(), days)
	if err != nil {
		return fail(c, MessageFailedGetUsage, err)
	}
	return presenters.SuccessResponse(c, fiber.Map{"daily": daily, "agents": agents}, fiber.StatusOK, MessageSuccessGetUsage)
}

func (h *systemHandler) Clip(c *fiber.Ctx) error {
	req := ClipRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, MessageFailedClip, err)
	}
	rec, err := h.catalog.ClipURL(c.UserContext(), req.URL)
	if err != nil {
		return fail(c, MessageFailedClip, err)
	}
	return presenters.SuccessResponse(c, rec, fiber.StatusCreated, MessageSuccessClip)
}

func (h *systemHandler) Ingest(c *fiber.Ctx) error {
	report, err := h.catalog.IngestRecipes(c.UserContext(), c.Query("since"))
	if err != nil {
		return fail(c, MessageFailedIngest, err)
	}
	return presenters.SuccessResponse(c, report, fiber.StatusOK, MessageSuccessIngest)
}
