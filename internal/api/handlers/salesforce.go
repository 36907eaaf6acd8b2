// salesforce.go — подключение CRM (OAuth), отключение и выгрузка перевозчиков.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/service"
	"github.com/bigkaa/dotscan/internal/ui/auth"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

const (
	// crmStateCookieName — одноразовый state OAuth-потока CRM.
	crmStateCookieName = "dotscan_crm_state"
	// crmStateCookieMaxAge — 10 минут на вход в CRM.
	crmStateCookieMaxAge = 10 * 60
	// crmCallbackPath — адрес возврата из CRM.
	crmCallbackPath = "/salesforce/callback"
	// crmConnectedRedirect — куда вернуть пользователя после подключения.
	crmConnectedRedirect = "/dashboards/carriers"
)

type uploadCarriersRequest struct {
	CarriersUSDOT []string `json:"carriers_usdot"`
}

type pushOutcomeResponse struct {
	USDOT     string            `json:"usdot"`
	Status    model.SyncOutcome `json:"status"`
	SObjectID *string           `json:"sobject_id"`
	Detail    string            `json:"detail"`
}

type pushSummaryResponse struct {
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Results   []pushOutcomeResponse `json:"results"`
}

func toPushSummary(s *service.PushSummary) pushSummaryResponse {
	resp := pushSummaryResponse{
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Results:   make([]pushOutcomeResponse, 0, len(s.Outcomes)),
	}
	for _, o := range s.Outcomes {
		resp.Results = append(resp.Results, pushOutcomeResponse{
			USDOT:     o.USDOT,
			Status:    o.Status,
			SObjectID: o.SObjectID,
			Detail:    o.Detail,
		})
	}
	return resp
}

// crmRedirectURL — явный адрес возврата или построенный из запроса.
func (h *APIHandler) crmRedirectURL(r *http.Request) string {
	if h.opts.CRMRedirectURL != "" {
		return h.opts.CRMRedirectURL
	}
	return auth.BaseURL(r) + crmCallbackPath
}

// setCRMConnected обновляет флаг подключения CRM в сессии.
func (h *APIHandler) setCRMConnected(w http.ResponseWriter, r *http.Request, connected bool) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil || session.CRMConnected == connected {
		return
	}
	session.CRMConnected = connected
	if err := h.sessions.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка обновления session cookie",
			slog.String("error", err.Error()),
		)
	}
}

// ConnectCRM — GET /salesforce/connect. Redirect на страницу авторизации CRM.
func (h *APIHandler) ConnectCRM(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	if h.crmAuth == nil {
		apierrors.CRMUnavailable(w, "Подключение к CRM не настроено")
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}
	if err := h.sessions.SetSealedCookie(w, crmStateCookieName, state, crmStateCookieMaxAge); err != nil {
		h.logger.Error("Ошибка установки state cookie", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	http.Redirect(w, r, h.crmAuth.AuthCodeURL(state, h.crmRedirectURL(r)), http.StatusTemporaryRedirect)
}

// CRMCallback — GET /salesforce/callback. Обменивает код на токен,
// сохраняет его и отмечает сессию как подключённую.
func (h *APIHandler) CRMCallback(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if h.crmAuth == nil {
		apierrors.CRMUnavailable(w, "Подключение к CRM не настроено")
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("CRM вернула ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		apierrors.ValidationError(w, "Ошибка авторизации CRM: "+errCode)
		return
	}
	code := q.Get("code")
	if code == "" {
		apierrors.ValidationError(w, "Authorization code not found")
		return
	}

	var expected string
	if err := h.sessions.OpenSealedCookie(w, r, crmStateCookieName, &expected); err != nil {
		h.logger.Warn("State cookie CRM отсутствует или повреждён", slog.String("error", err.Error()))
		apierrors.ValidationError(w, "Сессия авторизации CRM истекла, попробуйте ещё раз")
		return
	}
	if expected != q.Get("state") {
		h.logger.Warn("State CRM не совпадает", slog.String("user_id", a.UserID))
		apierrors.ValidationError(w, "State mismatch")
		return
	}

	tok, err := h.crmAuth.Exchange(r.Context(), code, h.crmRedirectURL(r))
	if err != nil {
		h.logger.Error("Ошибка обмена кода CRM", slog.String("error", err.Error()))
		apierrors.CRMUnavailable(w, "Не удалось получить токен CRM")
		return
	}
	if _, err := h.tokens.Upsert(r.Context(), a, tok); err != nil {
		h.writeServiceError(w, err, "Ошибка сохранения токена CRM")
		return
	}

	h.setCRMConnected(w, r, true)
	h.logger.Info("CRM подключена",
		slog.String("user_id", a.UserID),
		slog.String("org_id", a.OrgID),
	)
	http.Redirect(w, r, crmConnectedRedirect, http.StatusFound)
}

// DisconnectCRM — POST /salesforce/disconnect.
func (h *APIHandler) DisconnectCRM(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if _, err := h.tokens.Delete(r.Context(), a); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления токена CRM")
		return
	}
	h.setCRMConnected(w, r, false)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Disconnected from Salesforce"})
}

// UploadCarriers — POST /salesforce/upload_carriers.
// Отказ CRM или отсутствие токена сбрасывают флаг подключения в сессии.
func (h *APIHandler) UploadCarriers(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	session := uimiddleware.SessionFromContext(r.Context())
	if !session.CRMConnected {
		apierrors.Unauthorized(w, "Not connected to Salesforce")
		return
	}

	var req uploadCarriersRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	summary, err := h.crm.PushCarriers(r.Context(), a, req.CarriersUSDOT)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toPushSummary(summary))
	case errors.Is(err, service.ErrNoCRMToken):
		h.setCRMConnected(w, r, false)
		apierrors.Unauthorized(w, "Not connected to Salesforce")
	case errors.Is(err, service.ErrCRMRejected):
		h.setCRMConnected(w, r, false)
		apierrors.CRMUnavailable(w, err.Error())
	case errors.Is(err, service.ErrUpstream):
		apierrors.CRMUnavailable(w, err.Error())
	default:
		h.writeServiceError(w, err, "Ошибка выгрузки в CRM")
	}
}
