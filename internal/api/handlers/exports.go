// exports.go — выгрузка перевозчиков и истории распознаваний в CSV/XLSX.
package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/export"
)

// Базовые имена файлов выгрузки.
const (
	carriersExportName = "carrier_data"
	historyExportName  = "lookup_history"
)

// ExportCarriers — GET /data/export/carriers?format=csv|xlsx.
func (h *APIHandler) ExportCarriers(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.carriers.ExportCarriers(r.Context(), a.OrgID)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка выгрузки перевозчиков")
		return
	}
	h.writeExport(w, format, carriersExportName, export.CarriersTable(items))
}

// ExportLookupHistory — GET /data/export/lookup_history?format=csv|xlsx.
func (h *APIHandler) ExportLookupHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.carriers.ExportLookupHistory(r.Context(), a.OrgID)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка выгрузки истории распознаваний")
		return
	}
	h.writeExport(w, format, historyExportName, export.LookupHistoryTable(items))
}

// writeExport формирует файл целиком в памяти: при ошибке клиент
// получает JSON-ошибку, а не оборванный файл.
func (h *APIHandler) writeExport(w http.ResponseWriter, format export.Format, base string, t export.Table) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, t); err != nil {
		h.logger.Error("Ошибка формирования выгрузки",
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка формирования выгрузки")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(base)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
