// upload.go — приём фотографий табличек (multipart/form-data, поле files).
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/service"
)

// uploadField — имя поля формы с файлами.
const uploadField = "files"

// uploadRedirectPath — дашборд, куда возвращается пользователь после загрузки.
const uploadRedirectPath = "/dashboards/lookup_history"

// Upload — POST /upload. После обработки 303 на дашборд с result_ids.
func (h *APIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.UploadMaxBytes)
	if err := r.ParseMultipartForm(h.opts.UploadMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeValidationError,
				"Размер загрузки превышает "+strconv.FormatInt(tooLarge.Limit, 10)+" байт")
			return
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		apierrors.ValidationError(w, "Файлы не переданы")
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			h.logger.Warn("Не удалось прочитать файл загрузки",
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
			// Пустой файл сервис учтёт как неуспешный
			data = nil
		}
		files = append(files, service.UploadFile{Filename: fh.Filename, Data: data})
	}

	res, err := h.ingest.ProcessUpload(r.Context(), a, files)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обработки загрузки")
		return
	}

	ids := make([]string, 0, len(res.ResultIDs))
	for _, id := range res.ResultIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	target := uploadRedirectPath + "?" + url.Values{"result_ids": {strings.Join(ids, ",")}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
