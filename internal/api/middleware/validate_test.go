package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newTestValidator(t *testing.T) http.Handler {
	t.Helper()
	doc, err := LoadSpec(context.Background())
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}
	v, err := NewRequestValidator(doc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRequestValidator: %v", err)
	}
	return v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Тело должно оставаться доступным после проверки
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Body-Len", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequestValidator(t *testing.T) {
	h := newTestValidator(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"список без параметров", http.MethodGet, "/data/fetch/carriers", "", http.StatusOK},
		{"список с фильтром", http.MethodGet, "/data/fetch/carriers?offset=10&limit=5&carrier_interested=true", "", http.StatusOK},
		{"limit не число", http.MethodGet, "/data/fetch/carriers?limit=abc", "", http.StatusBadRequest},
		{"фильтр не bool", http.MethodGet, "/data/fetch/carriers?client_contacted=maybe", "", http.StatusBadRequest},
		{"неизвестный формат", http.MethodGet, "/data/export/carriers?format=pdf", "", http.StatusBadRequest},
		{"xlsx", http.MethodGet, "/data/export/lookup_history?format=xlsx", "", http.StatusOK},
		{"нет usdots", http.MethodGet, "/data/fetch/sync_status", "", http.StatusBadRequest},
		{"изменения", http.MethodPost, "/data/update/carrier_interests",
			`{"changes":[{"usdot":"1","field":"carrier_interested","value":true}]}`, http.StatusOK},
		{"изменение с null", http.MethodPost, "/data/update/carrier_interests",
			`{"changes":[{"usdot":"1","field":"carrier_follow_up_by_date","value":null}]}`, http.StatusOK},
		{"нет changes", http.MethodPost, "/data/update/carrier_interests", `{}`, http.StatusBadRequest},
		{"пустой список", http.MethodPost, "/data/update/carrier_interests", `{"changes":[]}`, http.StatusBadRequest},
		{"выгрузка в CRM", http.MethodPost, "/salesforce/upload_carriers", `{"carriers_usdot":["1","2"]}`, http.StatusOK},
		{"выгрузка без списка", http.MethodPost, "/salesforce/upload_carriers", `{"carriers":["1"]}`, http.StatusBadRequest},
		{"слишком длинный dot", http.MethodGet, "/data/fetch/carriers/" + strings.Repeat("9", 33), "", http.StatusBadRequest},
		{"маршрут вне спецификации", http.MethodGet, "/dashboards/carriers", "", http.StatusOK},
		{"метод вне спецификации", http.MethodPut, "/data/fetch/carriers", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("статус: хотели %d, получено %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if rec.Code == http.StatusBadRequest {
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error.Code != "VALIDATION_ERROR" {
					t.Errorf("ожидался VALIDATION_ERROR, получено %+v (%v)", resp, err)
				}
			}
			if tt.body != "" && rec.Code == http.StatusOK && rec.Header().Get("X-Body-Len") == "0" {
				t.Error("тело запроса не восстановлено после проверки")
			}
		})
	}
}
