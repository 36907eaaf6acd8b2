// Точка входа dotscan — распознавание номеров USDOT на фотографиях
// табличек, обогащение данными реестра перевозчиков и выгрузка в CRM.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает сервисный слой и запускает HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/dotscan/internal/api/handlers"
	"github.com/bigkaa/dotscan/internal/api/middleware"
	"github.com/bigkaa/dotscan/internal/config"
	"github.com/bigkaa/dotscan/internal/database"
	"github.com/bigkaa/dotscan/internal/ocr"
	"github.com/bigkaa/dotscan/internal/ocr/tesseract"
	"github.com/bigkaa/dotscan/internal/registry"
	"github.com/bigkaa/dotscan/internal/repository"
	"github.com/bigkaa/dotscan/internal/salesforce"
	"github.com/bigkaa/dotscan/internal/server"
	"github.com/bigkaa/dotscan/internal/service"
	"github.com/bigkaa/dotscan/internal/ui/auth"
	uihandlers "github.com/bigkaa/dotscan/internal/ui/handlers"
	"github.com/bigkaa/dotscan/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/dotscan/internal/ui/middleware"
)

// jwksRefreshInterval — период обновления ключей подписи id_token.
const jwksRefreshInterval = time.Hour

func main() {
	// 0. Локальный .env (в кластере переменные задаются окружением)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Ошибка чтения .env", slog.String("error", err.Error()))
	}

	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("dotscan запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("ocr_backend", cfg.OCRBackend),
		slog.Bool("crm_enabled", cfg.CRMEnabled()),
	)

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics (проверка через тот же пул)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	repos := repository.NewRepos(pool)
	tx := repository.NewTxRunner(pool)

	// 5. OCR
	var engine ocr.Engine
	switch cfg.OCRBackend {
	case config.OCRBackendTesseract:
		engine = tesseract.New(cfg.OCRLanguages)
	default:
		engine = ocr.NewVisionEngine(cfg.OCREndpoint, cfg.OCRAPIKey, cfg.OCRTimeout, logger)
	}

	// 6. Реестр перевозчиков с LRU-кэшем
	registryClient := registry.NewClient(cfg.RegistryURL, cfg.RegistryTimeout, cfg.RegistryMaxRetries, logger)
	lookup := registry.NewCache(registryClient, cfg.RegistryCacheSize, cfg.RegistryCacheTTL)

	// 7. CRM
	crmOAuth := salesforce.NewOAuth(cfg.CRMDomain, cfg.CRMClientID, cfg.CRMClientSecret, cfg.CRMTimeout)
	crmClient := salesforce.NewClient(cfg.CRMAPIVersion, cfg.CRMTimeout, logger)

	// 8. Сервисы
	reconcileSvc := service.NewReconcileService(repos, tx, logger)
	syncSvc := service.NewSyncService(repos, tx, logger)
	tokenSvc := service.NewTokenService(repos.Tokens, crmOAuth, cfg.CRMTokenTTL, logger)
	crmSvc := service.NewCRMService(tokenSvc, repos.Carriers, crmClient, syncSvc, logger)
	ingestSvc := service.NewIngestService(engine, lookup, reconcileSvc, tx, logger)
	listingSvc := service.NewListingService(repos)
	membershipSvc := service.NewMembershipService(tx, logger)

	// 9. Переводы интерфейса
	if _, err := i18n.Load(logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Вход через OIDC-провайдер
	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionSecure)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("DS_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	oidcClient := auth.NewOIDCClient(auth.OIDCConfig{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		Audience:     cfg.OIDCAudience,
	})
	verifier, err := auth.NewIDTokenVerifier(
		oidcClient.JWKSURL(), oidcClient.Issuer(), oidcClient.ClientID(),
		jwksRefreshInterval, logger,
	)
	if err != nil {
		logger.Error("Ошибка создания верификатора id_token", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("OIDC инициализирован",
		slog.String("issuer", oidcClient.Issuer()),
		slog.String("client_id", cfg.OIDCClientID),
	)

	// 11. topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(
		"dotscan",
		cfg.DephealthGroup,
		pgDB,
		service.DephealthTargets{
			PostgresURL: cfg.DatabaseURL(),
			JWKSURL:     oidcClient.JWKSURL(),
			RegistryURL: cfg.RegistryURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	}

	// 12. HTTP-слой
	svc := handlers.Services{
		Carriers:    listingSvc,
		Engagements: reconcileSvc,
		Ingest:      ingestSvc,
		Sync:        syncSvc,
		CRM:         crmSvc,
		Tokens:      tokenSvc,
		Sessions:    sessionMgr,
	}
	if cfg.CRMEnabled() {
		svc.CRMAuth = crmOAuth
	} else {
		logger.Warn("CRM не настроена: DS_CRM_CLIENT_ID или DS_CRM_CLIENT_SECRET не заданы")
	}
	apiHandler := handlers.NewAPIHandler(svc, handlers.Options{
		CRMRedirectURL: cfg.CRMRedirectURL,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}, logger)

	doc, err := middleware.LoadSpec(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки openapi.yaml", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	components := server.Components{
		API: apiHandler,
		Health: handlers.NewHealthHandler(
			handlers.ReadinessCheck{Name: "postgresql", Checker: database.NewReadinessChecker(pool), Critical: true},
			handlers.ReadinessCheck{Name: "idp", Checker: auth.NewJWKSReadinessChecker(oidcClient.JWKSURL(), 5*time.Second)},
		),
		Auth:      uihandlers.NewAuthHandler(oidcClient, verifier, membershipSvc, sessionMgr, logger),
		Pages:     uihandlers.NewDashboardHandler(listingSvc, syncSvc, logger),
		Sessions:  uimiddleware.NewSessions(sessionMgr, tokenSvc, cfg.SessionTimeout, logger),
		Validator: validator,
	}

	// 13. HTTP-сервер
	srv := server.New(cfg, logger, components)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("dotscan остановлен")
}
