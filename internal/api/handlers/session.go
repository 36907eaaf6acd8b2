// session.go — проверка активности сессии из браузера.
package handlers

import (
	"net/http"

	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

// Heartbeat — GET /session/heartbeat. Маршрут без RequireAPI:
// ответ в фиксированном формате, а не в формате ошибок API.
func (h *APIHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if uimiddleware.SessionFromContext(r.Context()) == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "session expired or not logged in"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
