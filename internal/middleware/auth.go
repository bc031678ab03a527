package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/internal/auth"
	"github.com/svaia/api/pkg/response"
)

// TokenCookie is the cookie the web frontend stores its session token in.
const TokenCookie = "access_token"

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	adminRole string
}

// NewAuthMiddleware creates an auth middleware. Callers holding adminRole
// may use the admin endpoints.
func NewAuthMiddleware(verifier auth.TokenVerifier, adminRole string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		adminRole: adminRole,
	}
}

// Authenticate validates the JWT from the Authorization header or, failing
// that, the access_token cookie.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := BearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Missing authorization token")
		}
		if m.verifier == nil {
			return response.Unauthorized(c, "Authentication not configured")
		}

		claims, err := m.verifier.Validate(tokenString)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, claims.UserID, claims.Email, claims.DisplayName(), claims.RoleNames(), m.adminRole)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// BearerToken extracts the session token of a request.
func BearerToken(c *fiber.Ctx) (string, bool) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookie := c.Cookies(TokenCookie); cookie != "" {
		return cookie, true
	}
	return "", false
}

func setIdentity(c *fiber.Ctx, userID, email, name string, roles []string, adminRole string) {
	if userID == "" {
		userID = email
	}
	c.Locals("userId", userID)
	c.Locals("email", email)
	c.Locals("name", name)
	c.Locals("roles", roles)
	c.Locals("admin", adminRole != "" && slices.Contains(roles, adminRole))
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAdmin(c) {
			return response.Forbidden(c, "Admin role required")
		}
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetRoles extracts the caller's roles from context
func GetRoles(c *fiber.Ctx) []string {
	if roles, ok := c.Locals("roles").([]string); ok {
		return roles
	}
	return nil
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	admin, _ := c.Locals("admin").(bool)
	return admin
}
