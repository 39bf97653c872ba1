package handlers

import (
	"strconv"
	"strings"

	"nutriplan/internal/api/middleware"
	"nutriplan/internal/api/presenters"
	"nutriplan/internal/mealplan"
	"nutriplan/internal/shared"
	"nutriplan/internal/shopping"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	PlanHandler interface {
		GenerateWeek(c *fiber.Ctx) error
		GenerateDay(c *fiber.Ctx) error
		GetLatest(c *fiber.Ctx) error
		GetPlan(c *fiber.Ctx) error
		Regenerate(c *fiber.Ctx) error
		RegenerateDay(c *fiber.Ctx) error
		GetHistory(c *fiber.Ctx) error
		GetVersion(c *fiber.Ctx) error
		Restore(c *fiber.Ctx) error
		GetDay(c *fiber.Ctx) error
		GetDaySummary(c *fiber.Ctx) error
		GetWeekSummary(c *fiber.Ctx) error
		GetShoppingList(c *fiber.Ctx) error
	}

	planHandler struct {
		plans     *mealplan.Manager
		shopping  *shopping.Service
		validator *validator.Validate
	}

	GeneratePlanRequest struct {
		Date string `json:"date" validate:"required,datetime=2006-01-02"`
	}
)

func NewPlanHandler(plans *mealplan.Manager, shopping *shopping.Service, validator *validator.Validate) PlanHandler {
	return &planHandler{plans: plans, shopping: shopping, validator: validator}
}

func (h *planHandler) parseGenerate(c *fiber.Ctx) (GeneratePlanRequest, error) {
	req := GeneratePlanRequest{}
	if err := c.BodyParser(&req); err != nil {
		return req, err
	}
	return req, h.validator.Struct(req)
}

func (h *planHandler) GenerateWeek(c *fiber.Ctx) error {
	req, err := h.parseGenerate(c)
	if err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	view, err := h.plans.GenerateWeek(c.UserContext(), middleware.UserID(c), req.Date)
	if err != nil {
		return fail(c, MessageFailedGeneratePlan, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusCreated, MessageSuccessGeneratePlan)
}

func (h *planHandler) GenerateDay(c *fiber.Ctx) error {
	req, err := h.parseGenerate(c)
	if err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	view, err := h.plans.GenerateDay(c.UserContext(), middleware.UserID(c), req.Date)
	if err != nil {
		return fail(c, MessageFailedGeneratePlan, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusCreated, MessageSuccessGeneratePlan)
}

func (h *planHandler) GetLatest(c *fiber.Ctx) error {
	d := mealplan.Duration(strings.ToUpper(c.Query("duration", string(mealplan.Weekly))))
	if d != mealplan.Daily && d != mealplan.Weekly {
		return badRequest(c, MessageInvalidParam, &shared.ValidationError{Field: "duration", Message: "duration must be 'daily' or 'weekly'"})
	}
	view, err := h.plans.Latest(c.UserContext(), middleware.UserID(c), d)
	if err != nil {
		return fail(c, MessageFailedGetPlan, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusOK, MessageSuccessGetPlan)
}

func (h *planHandler) GetPlan(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	view, err := h.plans.Get(c.UserContext(), middleware.UserID(c), planID)
	if err != nil {
		return fail(c, MessageFailedGetPlan, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusOK, MessageSuccessGetPlan)
}

func (h *planHandler) Regenerate(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	view, err := h.plans.Regenerate(c.UserContext(), middleware.UserID(c), planID)
	if err != nil {
		return fail(c, MessageFailedRegenerate, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusCreated, MessageSuccessRegenerate)
}

func (h *planHandler) RegenerateDay(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	view, err := h.plans.RegenerateDay(c.UserContext(), middleware.UserID(c), planID, c.Params("date"))
	if err != nil {
		return fail(c, MessageFailedRegenerate, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusCreated, MessageSuccessRegenerate)
}

func (h *planHandler) GetHistory(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	history, err := h.plans.History(c.UserContext(), middleware.UserID(c), planID)
	if err != nil {
		return fail(c, MessageFailedGetHistory, err)
	}
	return presenters.SuccessResponse(c, history, fiber.StatusOK, MessageSuccessGetHistory)
}

func (h *planHandler) GetVersion(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	number, err := c.ParamsInt("number")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	v, err := h.plans.Version(c.UserContext(), middleware.UserID(c), planID, number)
	if err != nil {
		return fail(c, MessageFailedGetVersion, err)
	}
	return presenters.SuccessResponse(c, v, fiber.StatusOK, MessageSuccessGetVersion)
}

func (h *planHandler) Restore(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	number, err := c.ParamsInt("number")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	view, err := h.plans.Restore(c.UserContext(), middleware.UserID(c), planID, number)
	if err != nil {
		return fail(c, MessageFailedRestore, err)
	}
	return presenters.SuccessResponse(c, view, fiber.StatusCreated, MessageSuccessRestore)
}

func (h *planHandler) GetDay(c *fiber.Ctx) error {
	day, err := h.plans.Day(c.UserContext(), middleware.UserID(c), c.Params("date"))
	if err != nil {
		return fail(c, MessageFailedGetDay, err)
	}
	return presenters.SuccessResponse(c, day, fiber.StatusOK, MessageSuccessGetDay)
}

func (h *planHandler) GetDaySummary(c *fiber.Ctx) error {
	summary, err := h.plans.DaySummary(c.UserContext(), middleware.UserID(c), c.Params("date"))
	if err != nil {
		return fail(c, MessageFailedGetSummary, err)
	}
	return presenters.SuccessResponse(c, summary, fiber.StatusOK, MessageSuccessGetSummary)
}

func (h *planHandler) GetWeekSummary(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	summary, err := h.plans.WeekSummary(c.UserContext(), middleware.UserID(c), planID)
	if err != nil {
		return fail(c, MessageFailedGetSummary, err)
	}
	return presenters.SuccessResponse(c, summary, fiber.StatusOK, MessageSuccessGetSummary)
}

func (h *planHandler) GetShoppingList(c *fiber.Ctx) error {
	planID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	list, err := h.shopping.ForPlan(c.UserContext(), middleware.UserID(c), planID, c.QueryBool("refresh", false))
	if err != nil {
		return fail(c, MessageFailedGetShopping, err)
	}
	return presenters.SuccessResponse(c, list, fiber.StatusOK, MessageSuccessGetShopping)
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &shared.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}
