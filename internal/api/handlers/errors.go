package handlers

import (
	"errors"

	"nutriplan/internal/api/presenters"
	"nutriplan/internal/app"
	"nutriplan/internal/shared"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StatusFor maps the error taxonomy to an HTTP status.
func StatusFor(err error) int {
	var (
		validation   *shared.ValidationError
		fieldErrs    validator.ValidationErrors
		notFound     *shared.NotFoundError
		precondition *shared.PreconditionError
		external     *shared.ExternalServiceError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &fieldErrs):
		return fiber.StatusBadRequest
	case errors.Is(err, shared.ErrForbidden):
		return fiber.StatusForbidden
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return fiber.StatusConflict
	case errors.As(err, &precondition):
		return fiber.StatusPreconditionFailed
	case errors.As(err, &external):
		return fiber.StatusBadGateway
	case errors.Is(err, app.ErrIngestionDisabled):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, message string, err error) error {
	return presenters.ErrorResponse(c, StatusFor(err), message, err)
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return presenters.ErrorResponse(c, fiber.StatusBadRequest, message, err)
}
