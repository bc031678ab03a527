package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/model"
	"github.com/svaia/api/internal/service"
	"github.com/svaia/api/pkg/response"
)

type ReportHandler struct {
	service   *service.ReportService
	validator *validator.Validate
	log       zerolog.Logger
}

func NewReportHandler(svc *service.ReportService, v *validator.Validate, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service:   svc,
		validator: v,
		log:       log.With().Str("component", "report_handler").Logger(),
	}
}

// GenerationStatus handles GET /api/check-generation-status
func (h *ReportHandler) GenerationStatus(c *fiber.Ctx) error {
	names, err := h.service.GenerationStatus(c.UserContext(), callerFrom(c))
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.Status(c, names)
}

// GenerationStatusAdmin handles GET /api/check-generation-status/admin
func (h *ReportHandler) GenerationStatusAdmin(c *fiber.Ctx) error {
	pairs, err := h.service.GenerationStatusAll(c.UserContext())
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.Status(c, pairs)
}

// GenerateReport handles POST /chat/generate-report. It answers once the
// report exists, which can take minutes.
func (h *ReportHandler) GenerateReport(c *fiber.Ctx) error {
	var req model.GenerateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.UserContext(), callerFrom(c), &req)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// ReportData handles POST /api/get-report-data
func (h *ReportHandler) ReportData(c *fiber.Ctx) error {
	var req model.ReportDataRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.ReportData(c.UserContext(), callerFrom(c), &req)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

func (h *ReportHandler) serviceError(c *fiber.Ctx, err error) error {
	var genErr *service.GenerationError
	switch {
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Project belongs to another user")
	case errors.Is(err, service.ErrProjectNotFound):
		return response.NotFound(c, "Project not found")
	case errors.Is(err, service.ErrReportNotReady):
		return response.NotFound(c, "Report not generated yet")
	case errors.Is(err, service.ErrGenerationInProgress):
		return response.Conflict(c, "A report is already being generated for this project")
	case errors.Is(err, service.ErrWaitTimeout):
		return response.Timeout(c, "Report generation is still running, check its status later")
	case errors.As(err, &genErr):
		return response.JobFailed(c, genErr.Error())
	case errors.Is(err, context.Canceled):
		return response.ServiceError(c, "Request canceled")
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return response.ServiceError(c, err.Error())
}
