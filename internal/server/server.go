// Пакет server — HTTP-сервер dotscan с graceful shutdown.
// Без TLS: TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/dotscan/internal/api/handlers"
	"github.com/bigkaa/dotscan/internal/api/middleware"
	"github.com/bigkaa/dotscan/internal/config"
	uihandlers "github.com/bigkaa/dotscan/internal/ui/handlers"
	"github.com/bigkaa/dotscan/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
	"github.com/bigkaa/dotscan/internal/ui/static"
)

// Components — обработчики и middleware, из которых собирается маршрутизатор.
type Components struct {
	API      *handlers.APIHandler
	Health   *handlers.HealthHandler
	Auth     *uihandlers.AuthHandler
	Pages    *uihandlers.DashboardHandler
	Sessions *uimiddleware.Sessions
	// Validator может быть nil: запросы не проверяются по openapi.yaml
	Validator *middleware.RequestValidator
}

// Server — HTTP-сервер dotscan.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, c Components) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, c),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// OCR пакета изображений занимает заметное время
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор.
// Health, metrics и статика доступны без сессии; страницы без сессии
// перенаправляются на /login, JSON API отвечает 401.
func NewRouter(logger *slog.Logger, c Components) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Probes и метрики: без сессии и языка
	router.Get("/health/live", c.Health.HealthLive)
	router.Get("/health/ready", c.Health.HealthReady)
	router.Get("/metrics", c.Health.GetMetrics)
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())
		r.Use(c.Sessions.Middleware())

		// Публичные страницы и вход
		r.Get("/", c.Pages.HandleLanding)
		r.Get("/login", c.Auth.HandleLogin)
		r.Get("/signup", c.Auth.HandleSignup)
		r.Get("/callback", c.Auth.HandleCallback)
		r.Get("/logout", c.Auth.HandleLogout)
		r.Post("/set-language", uihandlers.HandleSetLanguage)
		r.Get("/session/heartbeat", c.API.Heartbeat)

		// Страницы и формы
		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequirePage)

			r.Get("/dashboards/{name}", c.Pages.HandleDashboard)
			r.Get("/dashboards/carrier_details/{dot_number}", c.Pages.HandleCarrierDetails)
			r.Get("/dot_carrier_details/{dot_number}", c.Pages.HandleCarrierDetails)
			r.Post("/upload", c.API.Upload)
			r.Get("/salesforce/connect", c.API.ConnectCRM)
			r.Get("/salesforce/callback", c.API.CRMCallback)
		})

		// JSON API
		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequireAPI)
			if c.Validator != nil {
				r.Use(c.Validator.Middleware())
			}

			r.Get("/data/fetch/carriers", c.API.ListCarriers)
			r.Get("/data/fetch/carriers/{dot_number}", c.API.GetCarrier)
			r.Post("/data/refresh/carriers/{dot_number}", c.API.RefreshCarrier)
			r.Get("/data/fetch/lookup_history", c.API.ListLookupHistory)
			r.Post("/data/update/carrier_interests", c.API.UpdateCarrierInterests)
			r.Get("/data/export/carriers", c.API.ExportCarriers)
			r.Get("/data/export/lookup_history", c.API.ExportLookupHistory)
			r.Get("/data/fetch/sync_status", c.API.GetSyncStatus)
			r.Get("/data/fetch/sync_history/{dot_number}", c.API.GetSyncHistory)
			r.Delete("/data/sync_status/{dot_number}", c.API.DeleteSyncStatus)
			r.Post("/salesforce/disconnect", c.API.DisconnectCRM)
			r.Post("/salesforce/upload_carriers", c.API.UploadCarriers)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
