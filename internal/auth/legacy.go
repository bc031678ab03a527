package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LegacyVerifier validates HMAC-signed tokens issued by this service. It is
// used in development and as a fallback behind the OIDC verifier.
type LegacyVerifier struct {
	secret []byte
}

func NewLegacyVerifier(secret string) *LegacyVerifier {
	return &LegacyVerifier{secret: []byte(secret)}
}

func (v *LegacyVerifier) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (v *LegacyVerifier) Close() error { return nil }

// Sign issues an HMAC token for email valid for ttl. roles may be empty.
func (v *LegacyVerifier) Sign(userID, email string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "svaia-api",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ChainVerifier tries each verifier in turn and returns the first success.
type ChainVerifier []TokenVerifier

func (c ChainVerifier) Validate(tokenString string) (*Claims, error) {
	err := error(jwt.ErrTokenUnverifiable)
	for _, v := range c {
		if v == nil {
			continue
		}
		claims, verr := v.Validate(tokenString)
		if verr == nil {
			return claims, nil
		}
		err = verr
	}
	return nil, err
}

func (c ChainVerifier) Close() error {
	for _, v := range c {
		if v != nil {
			_ = v.Close()
		}
	}
	return nil
}
