// carriers.go — перевозчики организации, карточка, engagement, история распознаваний.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/domain/model"
)

// historyTimestampLayout — формат времени в истории распознаваний.
const historyTimestampLayout = "2006-01-02 15:04:05"

// carrierItemResponse — строка списка перевозчиков.
type carrierItemResponse struct {
	USDOT                 string              `json:"usdot"`
	LegalName             *string             `json:"legal_name"`
	Phone                 *string             `json:"phone"`
	MailingAddress        *string             `json:"mailing_address"`
	CreatedAt             time.Time           `json:"created_at"`
	CarrierInterested     bool                `json:"carrier_interested"`
	CarrierContacted      bool                `json:"carrier_contacted"`
	CarrierFollowedUp     bool                `json:"carrier_followed_up"`
	CarrierEmailed        bool                `json:"carrier_emailed"`
	CarrierFollowUpByDate *openapi_types.Date `json:"carrier_follow_up_by_date"`
	RentalNotes           *string             `json:"rental_notes"`
}

func toCarrierItem(it model.CarrierListItem) carrierItemResponse {
	resp := carrierItemResponse{
		USDOT:             it.USDOT,
		LegalName:         it.LegalName,
		Phone:             it.Phone,
		MailingAddress:    it.MailingAddress,
		CreatedAt:         it.CreatedAt,
		CarrierInterested: it.Interested,
		CarrierContacted:  it.Contacted,
		CarrierFollowedUp: it.FollowedUp,
		CarrierEmailed:    it.Emailed,
		RentalNotes:       it.RentalNotes,
	}
	if it.FollowUpByDate != nil {
		resp.CarrierFollowUpByDate = &openapi_types.Date{Time: *it.FollowUpByDate}
	}
	return resp
}

// lookupHistoryItemResponse — строка истории распознаваний.
// Поля перевозчика пустые, если номер не найден в реестре.
type lookupHistoryItemResponse struct {
	ID             int64   `json:"id"`
	DOTReading     *string `json:"dot_reading"`
	LegalName      string  `json:"legal_name"`
	Phone          string  `json:"phone"`
	MailingAddress string  `json:"mailing_address"`
	Timestamp      string  `json:"timestamp"`
	Filename       string  `json:"filename"`
	UserID         string  `json:"user_id"`
	OrgID          string  `json:"org_id"`
}

func toLookupHistoryItem(it model.LookupHistoryItem) lookupHistoryItemResponse {
	return lookupHistoryItemResponse{
		ID:             it.ID,
		DOTReading:     it.DOTReading,
		LegalName:      deref(it.LegalName),
		Phone:          deref(it.Phone),
		MailingAddress: deref(it.MailingAddress),
		Timestamp:      it.Timestamp.UTC().Format(historyTimestampLayout),
		Filename:       it.Filename,
		UserID:         it.UserID,
		OrgID:          it.OrgID,
	}
}

// engagementResponse — состояние engagement после изменения.
type engagementResponse struct {
	USDOT                 string              `json:"usdot"`
	CarrierInterested     bool                `json:"carrier_interested"`
	CarrierContacted      bool                `json:"carrier_contacted"`
	CarrierFollowedUp     bool                `json:"carrier_followed_up"`
	CarrierEmailed        bool                `json:"carrier_emailed"`
	CarrierFollowUpByDate *openapi_types.Date `json:"carrier_follow_up_by_date"`
	RentalNotes           *string             `json:"rental_notes"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListCarriers — GET /data/fetch/carriers.
func (h *APIHandler) ListCarriers(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var filter model.CarrierFilter
	if filter.Interested, err = queryParam[bool](q, "carrier_interested"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if filter.Contacted, err = queryParam[bool](q, "client_contacted"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.carriers.ListCarriers(r.Context(), a.OrgID, filter, page)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка перевозчиков")
		return
	}

	resp := make([]carrierItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toCarrierItem(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCarrier — GET /data/fetch/carriers/{dot_number}.
func (h *APIHandler) GetCarrier(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}

	c, err := h.carriers.GetCarrier(r.Context(), chi.URLParam(r, "dot_number"))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения перевозчика")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RefreshCarrier — POST /data/refresh/carriers/{dot_number}.
// Повторно запрашивает реестр и перезаписывает карточку.
func (h *APIHandler) RefreshCarrier(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}

	c, err := h.ingest.RefreshCarrier(r.Context(), chi.URLParam(r, "dot_number"))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления перевозчика")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateCarrierInterests — POST /data/update/carrier_interests.
// Изменения применяются все или ни одного.
func (h *APIHandler) UpdateCarrierInterests(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	changes, err := model.DecodeEngagementChanges(r.Body)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	updated, err := h.engagements.UpdateCarrierEngagement(r.Context(), a, changes)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления engagement")
		return
	}

	resp := make([]engagementResponse, 0, len(updated))
	for _, e := range updated {
		er := engagementResponse{
			USDOT:             e.USDOT,
			CarrierInterested: e.Interested.Value,
			CarrierContacted:  e.Contacted.Value,
			CarrierFollowedUp: e.FollowedUp.Value,
			CarrierEmailed:    e.Emailed.Value,
			RentalNotes:       e.RentalNotes,
		}
		if e.FollowUpByDate != nil {
			er.CarrierFollowUpByDate = &openapi_types.Date{Time: *e.FollowUpByDate}
		}
		resp = append(resp, er)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Changes updated successfully",
		"updated": resp,
	})
}

// ListLookupHistory — GET /data/fetch/lookup_history.
func (h *APIHandler) ListLookupHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	validOnly, err := queryParam[bool](q, "valid_dot_only")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.carriers.ListLookupHistory(r.Context(), a.OrgID, validOnly != nil && *validOnly, page)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения истории распознаваний")
		return
	}

	resp := make([]lookupHistoryItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toLookupHistoryItem(it))
	}
	writeJSON(w, http.StatusOK, resp)
}
