package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID    = "test-key-ds"
	testIssuer   = "https://tenant.auth0.test/"
	testAudience = "dotscan-web"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *IDTokenVerifier {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewIDTokenVerifierWithKeyfunc(kf, testIssuer, testAudience, testLogger())
}

// signIDToken подписывает id_token; mutate меняет claims перед подписью.
func signIDToken(t *testing.T, key *rsa.PrivateKey, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":         "auth0|42",
		"email":       "ops@example.com",
		"name":        "Ops Team",
		"given_name":  "Ops",
		"family_name": "Team",
		"org_id":      "org_abc",
		"org_name":    "ACME Leasing",
		"iss":         testIssuer,
		"aud":         testAudience,
		"exp":         jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":         jwt.NewNumericDate(time.Now()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIDTokenVerifier_Valid(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	id, err := v.Verify(context.Background(), signIDToken(t, key, nil))
	if err != nil {
		t.Fatalf("Verify вернул ошибку: %v", err)
	}
	if id.UserID != "auth0|42" || id.Email != "ops@example.com" {
		t.Errorf("идентичность: %+v", id.Identity)
	}
	if id.FirstName != "Ops" || id.LastName != "Team" {
		t.Errorf("имя: %q %q", id.FirstName, id.LastName)
	}
	if id.OrgID != "org_abc" || id.OrgName != "ACME Leasing" {
		t.Errorf("организация: %q %q", id.OrgID, id.OrgName)
	}
	if id.ExpiresAt.Before(time.Now()) {
		t.Errorf("ExpiresAt в прошлом: %v", id.ExpiresAt)
	}
}

func TestIDTokenVerifier_Rejects(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	v := newTestVerifier(t, key)

	tests := []struct {
		name  string
		token string
	}{
		{"просрочен", signIDToken(t, key, func(c jwt.MapClaims) {
			c["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		})},
		{"чужой issuer", signIDToken(t, key, func(c jwt.MapClaims) { c["iss"] = "https://evil.test/" })},
		{"чужой audience", signIDToken(t, key, func(c jwt.MapClaims) { c["aud"] = "other-app" })},
		{"без sub", signIDToken(t, key, func(c jwt.MapClaims) { delete(c, "sub") })},
		{"чужой ключ", signIDToken(t, other, nil)},
		{"мусор", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			if !errors.Is(err, ErrInvalidIDToken) {
				t.Errorf("ожидалась ErrInvalidIDToken, получено %v", err)
			}
		})
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ok", http.StatusOK, string(jwks), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка сервера", http.StatusServiceUnavailable, "", "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			status, msg := NewJWKSReadinessChecker(srv.URL, time.Second).CheckReady()
			if status != tt.want {
				t.Errorf("status: want %q, got %q (%s)", tt.want, status, msg)
			}
		})
	}
}
