// Пакет salesforce — OAuth-подключение к CRM и загрузка перевозчиков
// как объектов Account через Composite Tree API.
package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Поля ответа токен-эндпоинта, которые сохраняются в token_data.
var tokenExtraKeys = []string{"instance_url", "id", "issued_at", "signature", "scope", "token_type"}

// Token — ответ токен-эндпоинта CRM.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// Data — исходные поля ответа (instance_url, issued_at и т.д.).
	Data map[string]any
}

// OAuth — authorization code flow для CRM.
type OAuth struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth создаёт OAuth-клиент для домена CRM (например, login.salesforce.com).
// Домен без схемы дополняется https://.
func NewOAuth(domain, clientID, clientSecret string, timeout time.Duration) *OAuth {
	base := domain
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + domain
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/services/oauth2/authorize",
				TokenURL:  base + "/services/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// withRedirect возвращает копию конфигурации с адресом возврата.
// Адрес зависит от запроса (или переопределён), поэтому не хранится в конфигурации.
func (o *OAuth) withRedirect(redirectURL string) *oauth2.Config {
	cfg := *o.config
	cfg.RedirectURL = redirectURL
	return &cfg
}

func (o *OAuth) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// AuthCodeURL — адрес страницы авторизации CRM.
func (o *OAuth) AuthCodeURL(state, redirectURL string) string {
	return o.withRedirect(redirectURL).AuthCodeURL(state)
}

// Exchange обменивает код авторизации на токен.
func (o *OAuth) Exchange(ctx context.Context, code, redirectURL string) (*Token, error) {
	if code == "" {
		return nil, errors.New("пустой код авторизации")
	}
	tok, err := o.withRedirect(redirectURL).Exchange(o.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("обмен кода на токен CRM: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Refresh получает новый access token по refresh token (grant refresh_token).
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	src := o.config.TokenSource(o.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("обновление токена CRM: %w", err)
	}
	// Если провайдер не вернул новый refresh token, oauth2 сохраняет прежний.
	return fromOAuth2(tok), nil
}

func fromOAuth2(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Data:         make(map[string]any, len(tokenExtraKeys)),
	}
	for _, k := range tokenExtraKeys {
		if v := tok.Extra(k); v != nil {
			t.Data[k] = v
		}
	}
	return t
}
