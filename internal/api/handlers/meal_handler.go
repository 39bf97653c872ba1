package handlers

import (
	"time"

	"nutriplan/internal/api/middleware"
	"nutriplan/internal/api/presenters"
	"nutriplan/internal/mealplan"
	"nutriplan/internal/shared"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	MealHandler interface {
		ReplaceMeal(c *fiber.Ctx) error
		MoveMeal(c *fiber.Ctx) error
		AddCustomMeal(c *fiber.Ctx) error
		DeleteCustomMeal(c *fiber.Ctx) error
	}

	mealHandler struct {
		plans     *mealplan.Manager
		validator *validator.Validate
	}

	ReplaceMealRequest struct {
		Source string `json:"source" validate:"required,oneof=generated catalog"`
	}

	MoveMealRequest struct {
		Direction string `json:"direction" validate:"required"`
	}

	CustomMealRequest struct {
		Date        string     `json:"date" validate:"required,datetime=2006-01-02"`
		MealType    string     `json:"mealType" validate:"required"`
		Name        string     `json:"name" validate:"required,max=200"`
		PlannedTime *time.Time `json:"plannedTime"`
		Calories    int        `json:"calories" validate:"gte=0"`
	}
)

func NewMealHandler(plans *mealplan.Manager, validator *validator.Validate) MealHandler {
	return &mealHandler{plans: plans, validator: validator}
}

func (h *mealHandler) ReplaceMeal(c *fiber.Ctx) error {
	mealID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	req := ReplaceMealRequest{Source: string(mealplan.ReplaceGenerated)}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, MessageFailedBodyRequest, err)
		}
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, MessageFailedReplaceMeal, err)
	}

	meal, err := h.plans.ReplaceMeal(c.UserContext(), middleware.UserID(c), mealID, mealplan.ReplaceSource(req.Source))
	if err != nil {
		return fail(c, MessageFailedReplaceMeal, err)
	}
	return presenters.SuccessResponse(c, meal, fiber.StatusOK, MessageSuccessReplaceMeal)
}

func (h *mealHandler) MoveMeal(c *fiber.Ctx) error {
	mealID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	req := MoveMealRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, MessageFailedMoveMeal, err)
	}

	day, err := h.plans.MoveMeal(c.UserContext(), middleware.UserID(c), mealID, req.Direction)
	if err != nil {
		return fail(c, MessageFailedMoveMeal, err)
	}
	return presenters.SuccessResponse(c, day, fiber.StatusOK, MessageSuccessMoveMeal)
}

func (h *mealHandler) AddCustomMeal(c *fiber.Ctx) error {
	req := CustomMealRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, MessageFailedAddCustom, err)
	}
	mealType, err := shared.ParseMealType(req.MealType)
	if err != nil {
		return badRequest(c, MessageFailedAddCustom, err)
	}

	meal, err := h.plans.AddCustomMeal(c.UserContext(), middleware.UserID(c), mealplan.CustomMealInput{
		Date:        req.Date,
		MealType:    mealType,
		Name:        req.Name,
		PlannedTime: req.PlannedTime,
		Calories:    req.Calories,
	})
	if err != nil {
		return fail(c, MessageFailedAddCustom, err)
	}
	return presenters.SuccessResponse(c, meal, fiber.StatusCreated, MessageSuccessAddCustom)
}

func (h *mealHandler) DeleteCustomMeal(c *fiber.Ctx) error {
	mealID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, MessageInvalidParam, err)
	}
	if err := h.plans.DeleteCustomMeal(c.UserContext(), middleware.UserID(c), mealID); err != nil {
		return fail(c, MessageFailedDeleteMeal, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, MessageSuccessDeleteMeal)
}
