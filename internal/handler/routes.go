package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/metrics"
	"github.com/svaia/api/internal/middleware"
	"github.com/svaia/api/pkg/response"
	ws "github.com/svaia/api/internal/websocket"
)

// Routes holds what Mount wires onto the app. RateLimiter and Hub may be nil.
type Routes struct {
	Reports     *ReportHandler
	Auth        *AuthHandler
	APIAuth     fiber.Handler
	RateLimiter *middleware.RateLimiter
	RateLimit   config.RateLimitConfig
	Hub         *ws.Hub
}

// Mount registers every route of the API.
func Mount(app *fiber.App, r Routes) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	if r.Auth != nil {
		app.Get("/auth/verify", r.Auth.Verify)
	}

	statusLimit, reportLimit := noLimit, noLimit
	if r.RateLimiter != nil {
		statusLimit = r.RateLimiter.StatusLimit(r.RateLimit.StatusPerMin)
		reportLimit = r.RateLimiter.ReportLimit(r.RateLimit.ReportPerHour)
	}

	api := app.Group("/api", r.APIAuth)
	api.Get("/check-generation-status", statusLimit, r.Reports.GenerationStatus)
	api.Get("/check-generation-status/admin", middleware.RequireAdmin(), statusLimit, r.Reports.GenerationStatusAdmin)
	api.Post("/get-report-data", statusLimit, r.Reports.ReportData)
	api.Get("/projects", r.Reports.List)
	api.Post("/projects", r.Reports.Register)

	chat := app.Group("/chat", r.APIAuth)
	chat.Post("/generate-report", reportLimit, r.Reports.GenerateReport)

	if r.Hub != nil {
		app.Use("/ws", r.APIAuth, func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})

		app.Get("/ws/generation", websocket.New(func(c *websocket.Conn) {
			email, _ := c.Locals("email").(string)
			admin, _ := c.Locals("admin").(bool)
			r.Hub.HandleConnection(c, email, admin)
		}))
	}
}

func noLimit(c *fiber.Ctx) error { return c.Next() }

// ErrorHandler renders errors that escape the handlers in the API envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
