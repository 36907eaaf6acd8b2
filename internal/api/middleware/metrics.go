// metrics.go — Prometheus HTTP метрики dotscan.
// Регистрирует метрики: dotscan_http_requests_total, dotscan_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dotscan_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dotscan_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Номера DOT в пути заменяются на {dot}
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// staticPaths — маршруты без параметров.
var staticPaths = map[string]bool{
	"/": true, "/login": true, "/signup": true, "/callback": true, "/logout": true,
	"/health/live": true, "/health/ready": true, "/metrics": true,
	"/session/heartbeat": true, "/upload": true,
	"/dashboards/carriers": true, "/dashboards/lookup_history": true,
	"/data/fetch/carriers": true, "/data/fetch/lookup_history": true,
	"/data/fetch/sync_status": true, "/data/update/carrier_interests": true,
	"/data/export/carriers": true, "/data/export/lookup_history": true,
	"/salesforce/connect": true, "/salesforce/callback": true,
	"/salesforce/disconnect": true, "/salesforce/upload_carriers": true,
}

// dotPrefixes — маршруты с номером DOT последним сегментом.
var dotPrefixes = []string{
	"/data/fetch/carriers/",
	"/data/fetch/sync_history/",
	"/data/sync_status/",
	"/data/refresh/carriers/",
	"/dot_carrier_details/",
	"/dashboards/carrier_details/",
}

// normalizePath приводит путь к шаблону маршрута для ограничения
// кардинальности метрик. Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	if staticPaths[path] {
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}
	for _, p := range dotPrefixes {
		if rest, ok := strings.CutPrefix(path, p); ok && rest != "" && !strings.Contains(rest, "/") {
			return p + "{dot}"
		}
	}
	return "other"
}
