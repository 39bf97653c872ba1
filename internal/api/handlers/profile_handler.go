package handlers

import (
	"nutriplan/internal/api/middleware"
	"nutriplan/internal/api/presenters"
	"nutriplan/internal/profile"
	"nutriplan/internal/shared"
	"nutriplan/internal/strategy"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	ProfileHandler interface {
		GetProfile(c *fiber.Ctx) error
		SaveProfile(c *fiber.Ctx) error
		SaveStrategy(c *fiber.Ctx) error
	}

	profileHandler struct {
		profiles   *profile.Repository
		strategies strategy.Store
		validator  *validator.Validate
	}

	ProfileRequest struct {
		Timezone            string   `json:"timezone" validate:"omitempty,timezone"`
		DietaryRestrictions []string `json:"dietaryRestrictions" validate:"dive,required"`
		Allergies           []string `json:"allergies" validate:"dive,required"`
		DislikedIngredients []string `json:"dislikedIngredients" validate:"dive,required"`
		CuisinePreferences  []string `json:"cuisinePreferences" validate:"dive,required"`
		CalorieTarget       int      `json:"calorieTarget" validate:"gte=0"`
		ProteinTarget       int      `json:"proteinTarget" validate:"gte=0"`
		CarbsTarget         int      `json:"carbsTarget" validate:"gte=0"`
		FatTarget           int      `json:"fatTarget" validate:"gte=0"`
	}

	StrategyRequest struct {
		Strategy  strategy.Strategy      `json:"strategy"`
		Structure strategy.MealStructure `json:"structure"`
	}
)

func NewProfileHandler(profiles *profile.Repository, strategies strategy.Store, validator *validator.Validate) ProfileHandler {
	return &profileHandler{profiles: profiles, strategies: strategies, validator: validator}
}

func (h *profileHandler) GetProfile(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	p, err := h.profiles.Get(c.UserContext(), userID)
	if err != nil {
		return fail(c, MessageFailedGetProfile, err)
	}
	if p == nil {
		return fail(c, MessageFailedGetProfile, &shared.NotFoundError{Kind: "Profile", ID: userID})
	}
	return presenters.SuccessResponse(c, p, fiber.StatusOK, MessageSuccessGetProfile)
}

func (h *profileHandler) SaveProfile(c *fiber.Ctx) error {
	req := ProfileRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, MessageFailedSaveProfile, err)
	}

	p := profile.Profile{
		UserID:              middleware.UserID(c),
		Timezone:            req.Timezone,
		DietaryRestrictions: req.DietaryRestrictions,
		Allergies:           req.Allergies,
		DislikedIngredients: req.DislikedIngredients,
		CuisinePreferences:  req.CuisinePreferences,
		CalorieTarget:       req.CalorieTarget,
		ProteinTarget:       req.ProteinTarget,
		CarbsTarget:         req.CarbsTarget,
		FatTarget:           req.FatTarget,
	}
	if err := h.profiles.Save(c.UserContext(), p); err != nil {
		return fail(c, MessageFailedSaveProfile, err)
	}
	saved, err := h.profiles.Get(c.UserContext(), p.UserID)
	if err != nil {
		return fail(c, MessageFailedSaveProfile, err)
	}
	return presenters.SuccessResponse(c, saved, fiber.StatusOK, MessageSuccessSaveProfile)
}

// SaveStrategy caches the strategy and meal structure computed upstream.
func (h *profileHandler) SaveStrategy(c *fiber.Ctx) error {
	req := StrategyRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, MessageFailedBodyRequest, err)
	}
	if err := req.Structure.Validate(); err != nil {
		return badRequest(c, MessageFailedSaveStrategy, err)
	}

	userID := middleware.UserID(c)
	if err := h.strategies.PutStrategy(c.UserContext(), userID, req.Strategy); err != nil {
		return fail(c, MessageFailedSaveStrategy, err)
	}
	if err := h.strategies.PutStructure(c.UserContext(), userID, req.Structure); err != nil {
		return fail(c, MessageFailedSaveStrategy, err)
	}
	return presenters.SuccessResponse(c, req, fiber.StatusOK, MessageSuccessSaveStrategy)
}
