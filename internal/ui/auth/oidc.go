// oidc.go — OIDC-клиент для входа операторов через Auth0-совместимый провайдер.
// Реализует Authorization Code Flow с PKCE (RFC 7636) и client_secret.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OIDCClient — клиент для authorize/token/logout endpoints провайдера.
type OIDCClient struct {
	clientID     string
	clientSecret string
	audience     string
	// issuer — базовый URL тенанта без завершающего слэша.
	issuer     string
	httpClient *http.Client
}

// OIDCConfig — конфигурация OIDC-клиента.
type OIDCConfig struct {
	// IssuerURL — базовый URL тенанта, например https://tenant.eu.auth0.com.
	IssuerURL    string
	ClientID     string
	ClientSecret string
	// Audience — опциональный audience для authorize-запроса.
	Audience string
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout).
	HTTPClient *http.Client
	// Timeout используется при HTTPClient == nil.
	Timeout time.Duration
}

// NewOIDCClient создаёт OIDC-клиент.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OIDCClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		audience:     cfg.Audience,
		issuer:       strings.TrimRight(cfg.IssuerURL, "/"),
		httpClient:   httpClient,
	}
}

// Issuer — ожидаемое значение claim iss (со слэшем, как выдаёт Auth0).
func (c *OIDCClient) Issuer() string {
	return c.issuer + "/"
}

// ClientID — идентификатор клиента (audience id_token).
func (c *OIDCClient) ClientID() string {
	return c.clientID
}

// JWKSURL — адрес набора ключей подписи.
func (c *OIDCClient) JWKSURL() string {
	return c.issuer + "/.well-known/jwks.json"
}

// PKCEParams — параметры PKCE для одного auth flow.
type PKCEParams struct {
	// CodeVerifier — случайная строка (хранится в state cookie).
	CodeVerifier string
	// CodeChallenge — base64url(SHA-256(code_verifier)).
	CodeChallenge string
}

// GeneratePKCE генерирует пару code_verifier / code_challenge (S256).
func GeneratePKCE() (*PKCEParams, error) {
	// 32 bytes → 43 символа base64url (без padding)
	verifierBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, verifierBytes); err != nil {
		return nil, fmt.Errorf("ошибка генерации code_verifier: %w", err)
	}
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEParams{
		CodeVerifier:  codeVerifier,
		CodeChallenge: codeChallenge,
	}, nil
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// AuthorizeURL формирует URL страницы входа провайдера.
// signup открывает форму регистрации вместо формы входа.
func (c *OIDCClient) AuthorizeURL(redirectURI, state, codeChallenge string, signup bool) string {
	params := url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"scope":                 {"openid profile email"},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	if c.audience != "" {
		params.Set("audience", c.audience)
	}
	if signup {
		params.Set("screen_hint", "signup")
	}
	return c.issuer + "/authorize?" + params.Encode()
}

// LogoutURL формирует URL выхода у провайдера с возвратом на returnTo.
func (c *OIDCClient) LogoutURL(returnTo string) string {
	params := url.Values{
		"client_id": {c.clientID},
		"returnTo":  {returnTo},
	}
	return c.issuer + "/v2/logout?" + params.Encode()
}

// TokenResponse — ответ token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
}

// TokenError — ошибка token endpoint.
type TokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode обменивает authorization code на токены.
func (c *OIDCClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	return c.doTokenRequest(ctx, data)
}

// doTokenRequest выполняет POST-запрос к token endpoint.
func (c *OIDCClient) doTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.issuer+"/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации OIDC
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr TokenError
		if jsonErr := json.Unmarshal(body, &tokenErr); jsonErr == nil && tokenErr.Error != "" {
			return nil, fmt.Errorf("token endpoint error: %s: %s", tokenErr.Error, tokenErr.Description)
		}
		return nil, fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга token response: %w", err)
	}
	if tokenResp.IDToken == "" {
		return nil, errors.New("token endpoint не вернул id_token")
	}

	return &tokenResp, nil
}

// BaseURL формирует базовый URL (scheme + host) из заголовков запроса.
// Учитывает X-Forwarded-* заголовки от reverse proxy.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}

	return scheme + "://" + host
}
