// Пакет ocr — распознавание текста на фотографиях табличек
// и извлечение из него номера DOT.
package ocr

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// Engine — внешний сервис распознавания. Возвращает сырой текст;
// пустая строка означает, что текст на изображении не найден.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

var ocrRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotscan_ocr_requests_total",
	Help: "Количество запросов распознавания",
}, []string{"engine", "status"}) // status: ok, error

// Observe учитывает результат запроса распознавания в метриках.
// Вызывается каждым движком ровно один раз на запрос.
func Observe(engine string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ocrRequestsTotal.WithLabelValues(engine, status).Inc()
}

// "USDOT" или "DOT" отдельным словом, необязательный дефис или пробел,
// затем цифры до границы слова. Регистр учитывается. Границы отсекают
// номера штатов (PENNDOT, NJDOT) и хвосты вроде "123ABC".
var dotPattern = regexp.MustCompile(`\b(?:USDOT|DOT)[- ]?(\d+)\b`)

// ExtractDOT возвращает номер из первого совпадения в тексте или nil.
func ExtractDOT(text string) *string {
	m := dotPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	reading := m[1]
	if len(reading) > model.DOTReadingMaxLen {
		return nil
	}
	return &reading
}

// Допустимые расширения загружаемых изображений.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// AllowedFile проверяет расширение имени файла без учёта регистра.
func AllowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}
