package model

import "time"

// ProviderSalesforce — единственный поддерживаемый CRM-провайдер.
const ProviderSalesforce = "salesforce"

// OAuthToken — делегированный доступ к CRM, один на (user_id, org_id).
type OAuthToken struct {
	UserID       string
	OrgID        string
	Provider     string
	AccessToken  string
	RefreshToken *string
	TokenType    string
	IssuedAt     time.Time
	ValidUntil   time.Time
	// TokenData — исходный ответ провайдера (instance_url, id, signature, scope)
	TokenData map[string]any
}

// Expired сообщает, истёк ли токен к моменту now.
func (t *OAuthToken) Expired(now time.Time) bool {
	return !now.Before(t.ValidUntil)
}

// CanRefresh — есть ли refresh token.
func (t *OAuthToken) CanRefresh() bool {
	return t.RefreshToken != nil && *t.RefreshToken != ""
}

// InstanceURL — базовый URL инстанса CRM из ответа провайдера.
func (t *OAuthToken) InstanceURL() string {
	if t.TokenData == nil {
		return ""
	}
	s, _ := t.TokenData["instance_url"].(string)
	return s
}
