// idtoken.go — проверка подписи id_token по JWKS провайдера и
// извлечение идентичности оператора.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// ErrInvalidIDToken — id_token не прошёл проверку.
var ErrInvalidIDToken = errors.New("невалидный id_token")

// idTokenClaims — claims id_token Auth0-совместимого провайдера.
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	OrgID      string `json:"org_id"`
	OrgName    string `json:"org_name"`
}

// VerifiedIdentity — результат проверки id_token.
type VerifiedIdentity struct {
	model.Identity
	Picture   string
	ExpiresAt time.Time
}

// IDTokenVerifier проверяет id_token: подпись RS256, issuer, audience, срок.
type IDTokenVerifier struct {
	jwks     keyfunc.Keyfunc
	issuer   string
	audience string
	leeway   time.Duration
	logger   *slog.Logger
}

// NewIDTokenVerifier создаёт верификатор с фоновым обновлением JWKS.
// Старт не требует доступности провайдера.
func NewIDTokenVerifier(
	jwksURL, issuer, audience string,
	refreshInterval time.Duration,
	logger *slog.Logger,
) (*IDTokenVerifier, error) {
	log := logger.With(slog.String("component", "id_token"))

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewIDTokenVerifierWithKeyfunc(k, issuer, audience, logger), nil
}

// NewIDTokenVerifierWithKeyfunc создаёт верификатор с готовой keyfunc (тесты).
func NewIDTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer, audience string, logger *slog.Logger) *IDTokenVerifier {
	return &IDTokenVerifier{
		jwks:     kf,
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
		logger:   logger.With(slog.String("component", "id_token")),
	}
}

// Verify проверяет id_token и возвращает идентичность оператора.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	claims := &idTokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	}

	token, err := jwt.ParseWithClaims(rawToken, claims, v.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		v.logger.Debug("id_token не прошёл проверку", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrInvalidIDToken, err) //nolint:errorlint // намеренный двойной wrap
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidIDToken)
	}

	id := &VerifiedIdentity{
		Identity: model.Identity{
			UserID:    claims.Subject,
			Email:     claims.Email,
			Name:      claims.Name,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
			OrgID:     claims.OrgID,
			OrgName:   claims.OrgName,
		},
		Picture: claims.Picture,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// JWKSReadinessChecker — проверка доступности провайдера через JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности провайдера.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CheckReady проверяет, что JWKS отдаёт непустой набор ключей.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации OIDC
	if err != nil {
		return "fail", fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
