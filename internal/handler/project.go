package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/internal/model"
	"github.com/svaia/api/pkg/response"
)

// Register handles POST /api/projects
func (h *ReportHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.RegisterProject(c.UserContext(), callerFrom(c), &req)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.Created(c, result)
}

// List handles GET /api/projects
func (h *ReportHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListProjects(c.UserContext(), callerFrom(c), c.QueryBool("all"))
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// NewValidator returns the validator shared by the handlers.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
