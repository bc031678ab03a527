package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/svaia/api/internal/config"
)

type testIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	iss := &testIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   iss.srv.URL,
			"jwks_uri": iss.srv.URL + "/oauth/v2/keys",
		})
	})
	mux.HandleFunc("/oauth/v2/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

func (i *testIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	s, err := token.SignedString(i.key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (i *testIssuer) claims(extra jwt.MapClaims) jwt.MapClaims {
	c := jwt.MapClaims{
		"iss":   i.srv.URL,
		"sub":   "281734",
		"aud":   []string{"svaia-web"},
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "alice@x.com",
		"name":  "Alice",
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestOIDCVerifier(t *testing.T) {
	iss := newTestIssuer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewOIDCVerifier(ctx, &config.ZitadelConfig{Issuer: iss.srv.URL + "/", ClientID: "svaia-web"})
	if err != nil {
		t.Fatalf("NewOIDCVerifier: %v", err)
	}
	defer v.Close()

	claims, err := v.Validate(iss.sign(t, iss.claims(jwt.MapClaims{
		"urn:zitadel:iam:org:project:roles": map[string]any{
			"admin": map[string]string{"1234": "svaia.test"},
		},
	})))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Email != "alice@x.com" || claims.UserID != "281734" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.HasRole("admin") {
		t.Errorf("project role not picked up: %v", claims.RoleNames())
	}

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   error
	}{
		{"wrong audience", iss.claims(jwt.MapClaims{"aud": "other-app"}), jwt.ErrTokenInvalidAudience},
		{"wrong issuer", iss.claims(jwt.MapClaims{"iss": "https://evil.test"}), jwt.ErrTokenInvalidIssuer},
		{"expired", iss.claims(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}), jwt.ErrTokenExpired},
		{"no email", iss.claims(jwt.MapClaims{"email": ""}), jwt.ErrTokenInvalidClaims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(iss.sign(t, tt.claims))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("missing exp", func(t *testing.T) {
		c := iss.claims(nil)
		delete(c, "exp")
		if _, err := v.Validate(iss.sign(t, c)); err == nil {
			t.Error("token without exp accepted")
		}
	})
}

func TestOIDCVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCVerifier(context.Background(), &config.ZitadelConfig{Issuer: srv.URL})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v", err)
	}

	if _, err := NewOIDCVerifier(context.Background(), &config.ZitadelConfig{}); err == nil {
		t.Error("empty issuer accepted")
	}
}

func TestLegacyVerifier_SignAndValidate(t *testing.T) {
	v := NewLegacyVerifier("secret")
	token, err := v.Sign("u1", "bob@x.com", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Email != "bob@x.com" || !claims.HasRole("admin") || claims.DisplayName() != "bob@x.com" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewLegacyVerifier("other").Validate(token); err == nil {
		t.Error("token accepted with the wrong secret")
	}
}

func TestChainVerifier(t *testing.T) {
	first, second := NewLegacyVerifier("a"), NewLegacyVerifier("b")
	token, _ := second.Sign("u1", "bob@x.com", nil, time.Hour)

	claims, err := ChainVerifier{first, nil, second}.Validate(token)
	if err != nil || claims.Email != "bob@x.com" {
		t.Errorf("chain Validate = %+v, %v", claims, err)
	}

	if _, err := (ChainVerifier{}).Validate(token); err == nil {
		t.Error("empty chain accepted a token")
	}
}

func TestClaims_RoleNames(t *testing.T) {
	c := &Claims{
		Roles: []string{"viewer", "admin"},
		ProjectRoles: map[string]json.RawMessage{
			"admin":   json.RawMessage(`{}`),
			"auditor": json.RawMessage(`{}`),
		},
	}
	got := strings.Join(c.RoleNames(), ",")
	if got != "viewer,admin,auditor" {
		t.Errorf("RoleNames = %s", got)
	}
	if c.HasRole("") {
		t.Error("empty role matched")
	}
}
