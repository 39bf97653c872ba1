package presenters

import "github.com/gofiber/fiber/v2"

// Response is the envelope of every API reply.
type Response struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func SuccessResponse(c *fiber.Ctx, data any, code int, message string) error {
	return c.Status(code).JSON(Response{Status: true, Message: message, Data: data})
}

func ErrorResponse(c *fiber.Ctx, code int, message string, err error) error {
	res := Response{Status: false, Message: message}
	if err != nil {
		res.Error = err.Error()
	}
	return c.Status(code).JSON(res)
}
