package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	status, message string
}

func (c stubChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthReady(t *testing.T) {
	pg := func(c ReadinessChecker) ReadinessCheck {
		return ReadinessCheck{Name: "postgresql", Checker: c, Critical: true}
	}
	idp := func(c ReadinessChecker) ReadinessCheck {
		return ReadinessCheck{Name: "idp", Checker: c}
	}

	tests := []struct {
		name       string
		checks     []ReadinessCheck
		wantStatus string
		wantIdP    string
		wantCode   int
	}{
		{"всё доступно", []ReadinessCheck{pg(stubChecker{"ok", ""}), idp(stubChecker{"ok", ""})}, "ok", "ok", http.StatusOK},
		{"JWKS недоступен", []ReadinessCheck{pg(stubChecker{"ok", ""}), idp(stubChecker{"fail", "timeout"})}, "degraded", "degraded", http.StatusOK},
		{"PostgreSQL недоступен", []ReadinessCheck{pg(stubChecker{"fail", "refused"}), idp(stubChecker{"ok", ""})}, "fail", "ok", http.StatusServiceUnavailable},
		{"не инициализированы", []ReadinessCheck{pg(nil), idp(nil)}, "fail", "degraded", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks...)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус %d, хотели %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("разбор ответа: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("итог %q, хотели %q", resp.Status, tt.wantStatus)
			}
			if got := resp.Checks["idp"].Status; got != tt.wantIdP {
				t.Errorf("idp %q, хотели %q", got, tt.wantIdP)
			}
			if resp.Service != "dotscan" {
				t.Errorf("service = %q", resp.Service)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("статус %d, хотели 200", rec.Code)
	}
}
