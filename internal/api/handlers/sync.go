// sync.go — состояние и журнал синхронизации перевозчиков с CRM.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/domain/model"
)

type syncStatusResponse struct {
	USDOT     string            `json:"usdot"`
	Status    model.SyncOutcome `json:"status"`
	SObjectID *string           `json:"sobject_id"`
	UserID    string            `json:"user_id"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type syncHistoryResponse struct {
	ID          string            `json:"id"`
	USDOT       string            `json:"usdot"`
	Status      model.SyncOutcome `json:"status"`
	SObjectType string            `json:"sobject_type"`
	SObjectID   *string           `json:"sobject_id"`
	Detail      *string           `json:"detail"`
	UserID      string            `json:"user_id"`
	Timestamp   time.Time         `json:"timestamp"`
}

// GetSyncStatus — GET /data/fetch/sync_status?usdots=1,2.
// Номер без записи отсутствует в ответе: синхронизации не было.
func (h *APIHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var usdots []string
	for _, part := range strings.Split(r.URL.Query().Get("usdots"), ",") {
		if p := strings.TrimSpace(part); p != "" {
			usdots = append(usdots, p)
		}
	}
	if len(usdots) == 0 {
		apierrors.ValidationError(w, "Параметр usdots пуст")
		return
	}

	statuses, err := h.sync.StatusForUSDOTs(r.Context(), a.OrgID, usdots)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения статуса синхронизации")
		return
	}

	resp := make(map[string]syncStatusResponse, len(statuses))
	for usdot, st := range statuses {
		resp[usdot] = syncStatusResponse{
			USDOT:     st.USDOT,
			Status:    st.Status,
			SObjectID: st.SObjectID,
			UserID:    st.UserID,
			UpdatedAt: st.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSyncHistory — GET /data/fetch/sync_history/{dot_number}.
func (h *APIHandler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	limit, err := queryParam[int](r.URL.Query(), "limit")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	l := 0
	if limit != nil {
		l = *limit
	}

	history, err := h.sync.ListSyncHistory(r.Context(), chi.URLParam(r, "dot_number"), a.OrgID, l)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения журнала синхронизации")
		return
	}

	resp := make([]syncHistoryResponse, 0, len(history))
	for _, hs := range history {
		resp = append(resp, syncHistoryResponse{
			ID:          hs.ID,
			USDOT:       hs.USDOT,
			Status:      hs.Status,
			SObjectType: hs.SObjectType,
			SObjectID:   hs.SObjectID,
			Detail:      hs.Detail,
			UserID:      hs.UserID,
			Timestamp:   hs.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteSyncStatus — DELETE /data/sync_status/{dot_number}.
// Журнал синхронизации не меняется.
func (h *APIHandler) DeleteSyncStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.sync.DeleteSyncStatus(r.Context(), chi.URLParam(r, "dot_number"), a.OrgID); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления статуса синхронизации")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
