package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bigkaa/dotscan/internal/api/handlers"
	"github.com/bigkaa/dotscan/internal/ui/auth"
	uihandlers "github.com/bigkaa/dotscan/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm, err := auth.NewSessionManager("", false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return NewRouter(logger, Components{
		API:      handlers.NewAPIHandler(handlers.Services{Sessions: sm}, handlers.Options{}, logger),
		Health:   handlers.NewHealthHandler(),
		Auth:     uihandlers.NewAuthHandler(nil, nil, nil, sm, logger),
		Pages:    uihandlers.NewDashboardHandler(nil, nil, logger),
		Sessions: uimiddleware.NewSessions(sm, nil, 15*time.Minute, logger),
	})
}

func TestRouter_AccessWithoutSession(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method   string
		path     string
		want     int
		location string
	}{
		{http.MethodGet, "/health/live", http.StatusOK, ""},
		{http.MethodGet, "/static/css/app.css", http.StatusOK, ""},
		{http.MethodGet, "/", http.StatusOK, ""},
		{http.MethodGet, "/session/heartbeat", http.StatusUnauthorized, ""},
		{http.MethodGet, "/dashboards/carriers", http.StatusTemporaryRedirect, "/login"},
		{http.MethodGet, "/dot_carrier_details/1234567", http.StatusTemporaryRedirect, "/login"},
		{http.MethodPost, "/upload", http.StatusTemporaryRedirect, "/login"},
		{http.MethodGet, "/salesforce/connect", http.StatusTemporaryRedirect, "/login"},
		{http.MethodGet, "/data/fetch/carriers", http.StatusUnauthorized, ""},
		{http.MethodPost, "/data/update/carrier_interests", http.StatusUnauthorized, ""},
		{http.MethodPost, "/salesforce/upload_carriers", http.StatusUnauthorized, ""},
		{http.MethodDelete, "/data/sync_status/1234567", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("статус %d, хотели %d", rec.Code, tt.want)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Errorf("Location %q, хотели %q", rec.Header().Get("Location"), tt.location)
			}
		})
	}
}
