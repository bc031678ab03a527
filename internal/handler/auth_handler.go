package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/svaia/api/internal/auth"
	"github.com/svaia/api/internal/middleware"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	verifier auth.TokenVerifier
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier) *AuthHandler {
	return &AuthHandler{verifier: verifier}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := middleware.BearerToken(c)
	if !ok || h.verifier == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := h.verifier.Validate(tokenString)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Email
	}
	c.Set("X-User-Id", userID)
	c.Set("X-User-Email", claims.Email)
	c.Set("X-User-Name", claims.DisplayName())
	c.Set("X-User-Roles", strings.Join(claims.RoleNames(), ","))
	return c.SendStatus(fiber.StatusOK)
}
