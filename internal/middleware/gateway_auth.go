package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth and populates Fiber context locals.
func GatewayAuthMiddleware(adminRole string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		email := c.Get("X-User-Email")
		if userID == "" || email == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, userID, email, c.Get("X-User-Name"), splitRoles(c.Get("X-User-Roles")), adminRole)
		return c.Next()
	}
}

func splitRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
