package auth

import (
	"encoding/json"
	"slices"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims is the identity carried by an access token. Projects are keyed by
// email, so every verifier rejects tokens without one.
type Claims struct {
	UserID            string                     `json:"sub"`
	Email             string                     `json:"email,omitempty"`
	EmailVerified     bool                       `json:"email_verified,omitempty"`
	Name              string                     `json:"name,omitempty"`
	PreferredUsername string                     `json:"preferred_username,omitempty"`
	Roles             []string                   `json:"roles,omitempty"`
	// Zitadel project roles: {"role": {"orgID": "org domain"}}.
	ProjectRoles      map[string]json.RawMessage `json:"urn:zitadel:iam:org:project:roles,omitempty"`
	jwt.RegisteredClaims
}

// RoleNames merges the flat roles claim with the Zitadel project roles.
func (c *Claims) RoleNames() []string {
	roles := slices.Clone(c.Roles)
	project := make([]string, 0, len(c.ProjectRoles))
	for role := range c.ProjectRoles {
		project = append(project, role)
	}
	sort.Strings(project)
	for _, role := range project {
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

// HasRole reports whether the token grants role.
func (c *Claims) HasRole(role string) bool {
	return role != "" && slices.Contains(c.RoleNames(), role)
}

// DisplayName picks the friendliest name the token offers.
func (c *Claims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.Email
	}
}
