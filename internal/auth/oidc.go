package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/svaia/api/internal/config"
)

var errNoEmail = errors.New("token carries no email")

// OIDCVerifier validates tokens from the Zitadel instance, using the signing
// keys published at its jwks_uri.
type OIDCVerifier struct {
	keys     keyfunc.Keyfunc
	parser   *jwt.Parser
	audience string
}

// NewOIDCVerifier discovers the JWKS endpoint of cfg.Issuer and starts
// refreshing its keys in the background until ctx is done.
func NewOIDCVerifier(ctx context.Context, cfg *config.ZitadelConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("zitadel issuer is required")
	}
	issuer := strings.TrimRight(cfg.Issuer, "/")

	discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	jwksURL, err := jwksURI(discoverCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}

	return &OIDCVerifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}),
		),
		audience: cfg.ClientID,
	}, nil
}

// jwksURI reads jwks_uri from the issuer's discovery document.
func jwksURI(ctx context.Context, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

func (v *OIDCVerifier) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keys.Keyfunc); err != nil {
		return nil, err
	}

	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !slices.Contains(aud, v.audience) {
			return nil, jwt.ErrTokenInvalidAudience
		}
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: %w", jwt.ErrTokenInvalidClaims, errNoEmail)
	}
	return claims, nil
}

// Close is a no-op; the key refresh stops with the context given to
// NewOIDCVerifier.
func (v *OIDCVerifier) Close() error { return nil }
