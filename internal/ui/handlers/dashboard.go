// dashboard.go — HTML-страницы: стартовая, дашборды и карточка перевозчика.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/service"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
	"github.com/bigkaa/dotscan/internal/ui/pages"
)

// syncHistoryLimit — записей журнала выгрузок на карточке.
const syncHistoryLimit = 20

// PageReader — выборки для страниц.
type PageReader interface {
	ListCarriers(ctx context.Context, orgID string, filter model.CarrierFilter, page service.Page) ([]model.CarrierListItem, error)
	GetCarrier(ctx context.Context, usdot string) (*model.Carrier, error)
	ListLookupHistory(ctx context.Context, orgID string, validOnly bool, page service.Page) ([]model.LookupHistoryItem, error)
}

// SyncPageReader — состояние выгрузок в CRM для страниц.
type SyncPageReader interface {
	StatusForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error)
	ListSyncHistory(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error)
}

// DashboardHandler — обработчик HTML-страниц.
type DashboardHandler struct {
	carriers PageReader
	sync     SyncPageReader
	logger   *slog.Logger
}

// NewDashboardHandler создаёт DashboardHandler.
func NewDashboardHandler(carriers PageReader, sync SyncPageReader, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		carriers: carriers,
		sync:     sync,
		logger:   logger.With(slog.String("component", "ui.dashboard")),
	}
}

func pageUser(r *http.Request) pages.User {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		return pages.User{}
	}
	return pages.User{
		UserID:       session.UserID,
		Name:         session.Name,
		Picture:      session.Picture,
		CRMConnected: session.CRMConnected,
	}
}

// render отдаёт страницу. Ошибка рендеринга логируется,
// ответ к этому моменту уже может быть частично отправлен.
func (h *DashboardHandler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

func (h *DashboardHandler) serverError(w http.ResponseWriter, page string, err error) {
	h.logger.Error("Ошибка загрузки данных страницы",
		slog.String("page", page),
		slog.String("error", err.Error()),
	)
	http.Error(w, "Ошибка загрузки страницы", http.StatusInternalServerError)
}

// HandleLanding — GET /.
func (h *DashboardHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pages.Landing(pageUser(r)), "landing")
}

// HandleDashboard — GET /dashboards/{name}; name: carriers или lookup_history.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	switch name := chi.URLParam(r, "name"); name {
	case "carriers":
		h.carriersDashboard(w, r)
	case "lookup_history":
		h.lookupHistoryDashboard(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *DashboardHandler) carriersDashboard(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	q := r.URL.Query()
	page := pageFromForm(q)

	var filter model.CarrierFilter
	keep := url.Values{}
	if v, ok := boolParam(q, "carrier_interested"); ok {
		filter.Interested = &v
		keep.Set("carrier_interested", strconv.FormatBool(v))
	}
	if v, ok := boolParam(q, "client_contacted"); ok {
		filter.Contacted = &v
		keep.Set("client_contacted", strconv.FormatBool(v))
	}

	items, err := h.carriers.ListCarriers(r.Context(), session.OrgID, filter, page)
	if err != nil {
		h.serverError(w, "carriers", err)
		return
	}

	usdots := make([]string, 0, len(items))
	for _, it := range items {
		usdots = append(usdots, it.USDOT)
	}
	statuses, err := h.sync.StatusForUSDOTs(r.Context(), session.OrgID, usdots)
	if err != nil {
		// Дашборд полезен и без статусов CRM
		h.logger.Warn("Не удалось получить статусы выгрузки",
			slog.String("org_id", session.OrgID),
			slog.String("error", err.Error()),
		)
		statuses = nil
	}

	data := pages.CarriersData{
		Items:  items,
		Offset: page.Offset,
		Limit:  page.Limit,
		Sync:   statuses,
		Filter: keep,
	}
	h.render(w, r, http.StatusOK, pages.CarriersDashboard(pageUser(r), data), "carriers")
}

func (h *DashboardHandler) lookupHistoryDashboard(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	q := r.URL.Query()
	page := pageFromForm(q)
	validOnly, _ := boolParam(q, "valid_dot_only")

	items, err := h.carriers.ListLookupHistory(r.Context(), session.OrgID, validOnly, page)
	if err != nil {
		h.serverError(w, "lookup_history", err)
		return
	}

	data := pages.LookupHistoryData{
		Items:     items,
		Offset:    page.Offset,
		Limit:     page.Limit,
		ValidOnly: validOnly,
		Highlight: parseResultIDs(q.Get("result_ids")),
	}
	h.render(w, r, http.StatusOK, pages.LookupHistoryDashboard(pageUser(r), data), "lookup_history")
}

// HandleCarrierDetails — GET /dashboards/carrier_details/{dot} и /dot_carrier_details/{dot}.
// Неизвестный номер даёт страницу с сообщением и статус 404.
func (h *DashboardHandler) HandleCarrierDetails(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	usdot := chi.URLParam(r, "dot_number")
	data := pages.CarrierDetailsData{USDOT: usdot}

	c, err := h.carriers.GetCarrier(r.Context(), usdot)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.render(w, r, http.StatusNotFound, pages.CarrierDetails(pageUser(r), data), "carrier_details")
		return
	case err != nil:
		h.serverError(w, "carrier_details", err)
		return
	}
	data.Carrier = c

	history, err := h.sync.ListSyncHistory(r.Context(), usdot, session.OrgID, syncHistoryLimit)
	if err != nil {
		h.logger.Warn("Не удалось получить журнал выгрузок",
			slog.String("usdot", usdot),
			slog.String("error", err.Error()),
		)
	}
	data.Sync = history

	h.render(w, r, http.StatusOK, pages.CarrierDetails(pageUser(r), data), "carrier_details")
}

// pageFromForm читает offset и limit; некорректные значения заменяются умолчаниями.
func pageFromForm(q url.Values) service.Page {
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = service.DefaultLimit
	}
	return service.NormalizePage(offset, limit)
}

func boolParam(q url.Values, name string) (value, ok bool) {
	v, err := strconv.ParseBool(q.Get(name))
	if err != nil {
		return false, false
	}
	return v, true
}

// parseResultIDs разбирает список идентификаторов "11,12"; мусор пропускается.
func parseResultIDs(s string) map[int64]bool {
	if s == "" {
		return nil
	}
	ids := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids[id] = true
		}
	}
	return ids
}
