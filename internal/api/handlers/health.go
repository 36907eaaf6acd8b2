// health.go — probes и метрики dotscan.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/dotscan/internal/config"
)

const serviceName = "dotscan"

// Статусы проверок готовности.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// ReadinessCheck — именованная проверка для /health/ready.
// Отказ некритичной зависимости понижает итог только до degraded.
type ReadinessCheck struct {
	Name     string
	Checker  ReadinessChecker
	Critical bool
}

// HealthHandler — /health/live, /health/ready и /metrics.
type HealthHandler struct {
	checks      []ReadinessCheck
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик probes. Проверка с nil Checker
// считается неинициализированной и возвращает fail.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:      checks,
		promHandler: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Service   string                 `json:"service"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func newHealthResponse(status string) healthResponse {
	return healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive — процесс жив, всегда 200.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newHealthResponse(statusOK))
}

// HealthReady — 200 для ok/degraded, 503 для fail.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := newHealthResponse(statusOK)
	resp.Checks = make(map[string]checkResult, len(h.checks))

	statuses := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		res := checkResult{Status: statusFail, Message: "не инициализирован"}
		if c.Checker != nil {
			res.Status, res.Message = c.Checker.CheckReady()
		}
		if res.Status == statusFail && !c.Critical {
			res.Status = statusDegraded
		}
		resp.Checks[c.Name] = res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus: любой fail даёт fail, любой degraded даёт degraded.
func overallStatus(statuses ...string) string {
	result := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			result = statusDegraded
		}
	}
	return result
}
