package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeTimeout         = "TIMEOUT"
	CodeJobFailed       = "JOB_FAILED"
	CodeServiceError    = "SERVICE_ERROR"
)

// Envelope is the body of every JSON response except the generation
// status endpoints, which answer with a bare StatusResponse.
type Envelope struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Content interface{} `json:"content,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// StatusResponse lists the projects with a generation in flight.
type StatusResponse struct {
	Projects interface{} `json:"projects"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(Envelope{
		OK:      false,
		Message: message,
		Code:    code,
		Details: details,
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, CodeConflict, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func Timeout(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusGatewayTimeout, CodeTimeout, message, nil)
}

func JobFailed(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadGateway, CodeJobFailed, message, nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, content interface{}) error {
	return c.JSON(Envelope{OK: true, Content: content})
}

func Created(c *fiber.Ctx, content interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{OK: true, Content: content})
}

func Status(c *fiber.Ctx, projects interface{}) error {
	return c.JSON(StatusResponse{Projects: projects})
}
