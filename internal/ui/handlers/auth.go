// Пакет handlers — HTTP-обработчики веб-интерфейса dotscan.
// auth.go — вход через OIDC-провайдер (Authorization Code + PKCE).
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/ui/auth"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

const (
	// stateCookieName — cookie с PKCE state на время входа.
	stateCookieName = "dotscan_auth_state"
	// stateCookieMaxAge — 5 минут на вход у провайдера.
	stateCookieMaxAge = 5 * 60
	// afterLoginPath — стартовая страница после входа.
	afterLoginPath = "/dashboards/carriers"
	callbackPath   = "/callback"
)

// OIDCProvider — endpoints провайдера идентификации.
type OIDCProvider interface {
	AuthorizeURL(redirectURI, state, codeChallenge string, signup bool) string
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*auth.TokenResponse, error)
	LogoutURL(returnTo string) string
}

// IDTokenVerifier — проверка id_token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.VerifiedIdentity, error)
}

// MemberRegistrar — регистрация пользователя и организации при входе.
type MemberRegistrar interface {
	Register(ctx context.Context, id model.Identity) (model.AppOrg, error)
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	oidc           OIDCProvider
	verifier       IDTokenVerifier
	members        MemberRegistrar
	sessionManager *auth.SessionManager
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthHandler создаёт AuthHandler.
func NewAuthHandler(
	oidc OIDCProvider,
	verifier IDTokenVerifier,
	members MemberRegistrar,
	sessionManager *auth.SessionManager,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		oidc:           oidc,
		verifier:       verifier,
		members:        members,
		sessionManager: sessionManager,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "ui_auth")),
	}
}

// stateData — содержимое state cookie.
type stateData struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
}

// HandleLogin — GET /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.startFlow(w, r, false)
}

// HandleSignup — GET /signup. Открывает форму регистрации провайдера.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	h.startFlow(w, r, true)
}

// startFlow сохраняет PKCE и state в зашифрованном cookie
// и перенаправляет на authorize endpoint. Вошедший пользователь
// сразу попадает на дашборд.
func (h *AuthHandler) startFlow(w http.ResponseWriter, r *http.Request, signup bool) {
	if uimiddleware.SessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, afterLoginPath, http.StatusFound)
		return
	}

	pkce, err := auth.GeneratePKCE()
	if err != nil {
		h.logger.Error("Ошибка генерации PKCE", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	sd := stateData{State: state, CodeVerifier: pkce.CodeVerifier}
	if err := h.sessionManager.SetSealedCookie(w, stateCookieName, sd, stateCookieMaxAge); err != nil {
		h.logger.Error("Ошибка установки state cookie", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	authorizeURL := h.oidc.AuthorizeURL(auth.BaseURL(r)+callbackPath, state, pkce.CodeChallenge, signup)
	h.logger.Debug("Redirect на страницу входа", slog.Bool("signup", signup))
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleCallback — GET /callback. Обменивает code на токены, проверяет id_token,
// регистрирует пользователя и создаёт сессию.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Провайдер вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		http.Error(w, "Ошибка авторизации: "+errCode, http.StatusBadRequest)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Отсутствует code или state", http.StatusBadRequest)
		return
	}

	var sd stateData
	if err := h.sessionManager.OpenSealedCookie(w, r, stateCookieName, &sd); err != nil {
		h.logger.Warn("State cookie отсутствует или повреждён", slog.String("error", err.Error()))
		http.Error(w, "Сессия авторизации истекла, попробуйте ещё раз", http.StatusBadRequest)
		return
	}
	if sd.State != state {
		h.logger.Warn("State не совпадает")
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	tokens, err := h.oidc.ExchangeCode(r.Context(), code, auth.BaseURL(r)+callbackPath, sd.CodeVerifier)
	if err != nil {
		h.logger.Error("Ошибка обмена code на токены", slog.String("error", err.Error()))
		http.Error(w, "Ошибка аутентификации", http.StatusBadGateway)
		return
	}

	id, err := h.verifier.Verify(r.Context(), tokens.IDToken)
	if err != nil {
		h.logger.Warn("id_token отклонён", slog.String("error", err.Error()))
		http.Error(w, "Ошибка аутентификации", http.StatusUnauthorized)
		return
	}

	org, err := h.members.Register(r.Context(), id.Identity)
	if err != nil {
		h.logger.Error("Ошибка регистрации пользователя",
			slog.String("user_id", id.UserID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}

	session := &auth.SessionData{
		UserID:  id.UserID,
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
		OrgID:   org.OrgID,
	}
	session.Touch(h.now())
	if !id.ExpiresAt.IsZero() {
		session.ExpiresAt = id.ExpiresAt.Unix()
	}
	if err := h.sessionManager.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Пользователь аутентифицирован",
		slog.String("user_id", session.UserID),
		slog.String("org_id", session.OrgID),
	)
	http.Redirect(w, r, afterLoginPath, http.StatusFound)
}

// HandleLogout — GET /logout. Очищает сессию и завершает сессию у провайдера.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if session := uimiddleware.SessionFromContext(r.Context()); session != nil {
		h.logger.Info("Пользователь вышел", slog.String("user_id", session.UserID))
	}
	h.sessionManager.ClearSessionCookie(w)
	http.Redirect(w, r, h.oidc.LogoutURL(auth.BaseURL(r)+"/"), http.StatusFound)
}
