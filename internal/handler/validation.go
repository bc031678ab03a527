package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/internal/middleware"
	"github.com/svaia/api/internal/service"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

func callerFrom(c *fiber.Ctx) service.Caller {
	return service.Caller{
		Email: middleware.GetUserEmail(c),
		Admin: middleware.IsAdmin(c),
	}
}
