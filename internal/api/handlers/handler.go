// handler.go — JSON-обработчики dotscan.
// Делегируют запросы в сервисный слой, пользователь берётся из сессии.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/export"
	"github.com/bigkaa/dotscan/internal/salesforce"
	"github.com/bigkaa/dotscan/internal/service"
	"github.com/bigkaa/dotscan/internal/ui/auth"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

// CarrierReader — выборки перевозчиков и истории распознаваний.
type CarrierReader interface {
	ListCarriers(ctx context.Context, orgID string, filter model.CarrierFilter, page service.Page) ([]model.CarrierListItem, error)
	GetCarrier(ctx context.Context, usdot string) (*model.Carrier, error)
	ListLookupHistory(ctx context.Context, orgID string, validOnly bool, page service.Page) ([]model.LookupHistoryItem, error)
	ExportCarriers(ctx context.Context, orgID string) ([]model.CarrierListItem, error)
	ExportLookupHistory(ctx context.Context, orgID string) ([]model.LookupHistoryItem, error)
}

// EngagementUpdater — применение изменений engagement.
type EngagementUpdater interface {
	UpdateCarrierEngagement(ctx context.Context, actor service.Actor, changes []model.EngagementChange) ([]*model.Engagement, error)
}

// Ingestor — обработка загрузки и повторный запрос реестра.
type Ingestor interface {
	ProcessUpload(ctx context.Context, actor service.Actor, files []service.UploadFile) (*service.UploadResult, error)
	RefreshCarrier(ctx context.Context, usdot string) (*model.Carrier, error)
}

// SyncReader — чтение и очистка состояния синхронизации с CRM.
type SyncReader interface {
	StatusForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error)
	ListSyncHistory(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error)
	DeleteSyncStatus(ctx context.Context, usdot, orgID string) error
}

// CarrierPusher — выгрузка перевозчиков в CRM.
type CarrierPusher interface {
	PushCarriers(ctx context.Context, actor service.Actor, usdots []string) (*service.PushSummary, error)
}

// TokenStore — хранение токена CRM пары пользователь/организация.
type TokenStore interface {
	Upsert(ctx context.Context, actor service.Actor, tok *salesforce.Token) (*model.OAuthToken, error)
	Delete(ctx context.Context, actor service.Actor) (bool, error)
}

// CRMAuthorizer — authorization code flow CRM.
type CRMAuthorizer interface {
	AuthCodeURL(state, redirectURL string) string
	Exchange(ctx context.Context, code, redirectURL string) (*salesforce.Token, error)
}

// Services — зависимости обработчиков.
// CRMAuth может быть nil: тогда маршруты подключения CRM отвечают 502.
type Services struct {
	Carriers    CarrierReader
	Engagements EngagementUpdater
	Ingest      Ingestor
	Sync        SyncReader
	CRM         CarrierPusher
	Tokens      TokenStore
	CRMAuth     CRMAuthorizer
	Sessions    *auth.SessionManager
}

// Options — параметры HTTP-слоя.
type Options struct {
	// CRMRedirectURL переопределяет адрес возврата OAuth CRM (туннели)
	CRMRedirectURL string
	// UploadMaxBytes — предел multipart-загрузки
	UploadMaxBytes int64
}

// APIHandler — обработчик JSON API и форм dotscan.
type APIHandler struct {
	carriers    CarrierReader
	engagements EngagementUpdater
	ingest      Ingestor
	sync        SyncReader
	crm         CarrierPusher
	tokens      TokenStore
	crmAuth     CRMAuthorizer
	sessions    *auth.SessionManager
	opts        Options
	logger      *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(svc Services, opts Options, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		carriers:    svc.Carriers,
		engagements: svc.Engagements,
		ingest:      svc.Ingest,
		sync:        svc.Sync,
		crm:         svc.CRM,
		tokens:      svc.Tokens,
		crmAuth:     svc.CRMAuth,
		sessions:    svc.Sessions,
		opts:        opts,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// actor возвращает пользователя сессии или пишет 401.
func actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	a, ok := uimiddleware.ActorFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
		return service.Actor{}, false
	}
	return a, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 с сообщением fallback.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNoValidFiles),
		errors.Is(err, model.ErrInvalidChange),
		errors.Is(err, export.ErrUnknownFormat):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrNoCRMToken):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrCRMRejected):
		apierrors.CRMUnavailable(w, err.Error())
	case errors.Is(err, service.ErrUpstream):
		apierrors.RegistryUnavailable(w, err.Error())
	default:
		h.logger.Error(fallback, slog.String("error", err.Error()))
		apierrors.InternalError(w, fallback)
	}
}

// queryParam разбирает необязательный query-параметр.
// Пустое значение (?flag=) равносильно отсутствию параметра.
func queryParam[T any](q url.Values, name string) (*T, error) {
	if q.Get(name) == "" {
		return nil, nil
	}
	var v *T
	if err := runtime.BindQueryParameter("form", true, false, name, q, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// pageFromQuery читает offset и limit и нормализует их.
func pageFromQuery(q url.Values) (service.Page, error) {
	offset, err := queryParam[int](q, "offset")
	if err != nil {
		return service.Page{}, err
	}
	limit, err := queryParam[int](q, "limit")
	if err != nil {
		return service.Page{}, err
	}
	o, l := 0, service.DefaultLimit
	if offset != nil {
		o = *offset
	}
	if limit != nil {
		l = *limit
	}
	return service.NormalizePage(o, l), nil
}

// decodeJSON читает тело запроса в v.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
