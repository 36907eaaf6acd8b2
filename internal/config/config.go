// Пакет config — загрузка и валидация конфигурации dotscan
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые OCR-бэкенды.
const (
	OCRBackendVision    = "vision"
	OCRBackendTesseract = "tesseract"
)

// Config содержит все параметры конфигурации dotscan.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Максимальный размер multipart-загрузки в байтах
	UploadMaxBytes int64

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула и время жизни простаивающего соединения
	DBMaxConns        int
	DBMaxConnIdleTime time.Duration

	// --- OIDC (Auth0-совместимый провайдер) ---

	// Issuer, например https://tenant.eu.auth0.com
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	// Audience для authorize-запроса (опционально)
	OIDCAudience string

	// --- Сессия ---

	// Ключ шифрования cookie (пусто — случайный на процесс)
	SessionSecret string
	// Таймаут неактивности сессии
	SessionTimeout time.Duration
	// Флаг Secure для cookie (за TLS-терминатором)
	SessionSecure bool

	// --- OCR ---

	// vision | tesseract
	OCRBackend string
	// API-ключ Google Vision
	OCRAPIKey string
	// Endpoint images:annotate
	OCREndpoint string
	// Языки tesseract (через запятую)
	OCRLanguages []string
	// Таймаут запроса к облачному OCR
	OCRTimeout time.Duration

	// --- Реестр перевозчиков ---

	RegistryURL        string
	RegistryTimeout    time.Duration
	RegistryMaxRetries int
	RegistryCacheSize  int
	RegistryCacheTTL   time.Duration

	// --- CRM (Salesforce) ---

	// Домен авторизации, например login.salesforce.com
	CRMDomain       string
	CRMClientID     string
	CRMClientSecret string
	// Явный redirect URL (для туннелей); пусто — строится из запроса
	CRMRedirectURL string
	CRMAPIVersion  string
	// Срок жизни access token, от issued_at
	CRMTokenTTL time.Duration
	// Таймаут запросов к CRM
	CRMTimeout time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DS_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	maxBytes, err := getEnvInt("DS_UPLOAD_MAX_BYTES", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("DS_UPLOAD_MAX_BYTES: %w", err)
	}
	if maxBytes < 1 {
		return nil, fmt.Errorf("DS_UPLOAD_MAX_BYTES: значение %d должно быть положительным", maxBytes)
	}
	cfg.UploadMaxBytes = int64(maxBytes)

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DS_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DS_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DS_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DS_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DS_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("DS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("DS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DS_DB_MAX_CONNS: должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}
	if cfg.DBMaxConnIdleTime, err = getEnvDuration("DS_DB_MAX_CONN_IDLE_TIME", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("DS_DB_MAX_CONN_IDLE_TIME: %w", err)
	}

	// --- OIDC ---

	if cfg.OIDCIssuerURL, err = getEnvRequired("DS_OIDC_ISSUER_URL"); err != nil {
		return nil, err
	}
	cfg.OIDCIssuerURL = strings.TrimRight(cfg.OIDCIssuerURL, "/")
	if cfg.OIDCClientID, err = getEnvRequired("DS_OIDC_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.OIDCClientSecret, err = getEnvRequired("DS_OIDC_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	cfg.OIDCAudience = getEnvDefault("DS_OIDC_AUDIENCE", "")

	// --- Сессия ---

	cfg.SessionSecret = getEnvDefault("DS_SESSION_SECRET", "")
	cfg.SessionTimeout, err = getEnvDuration("DS_SESSION_TIMEOUT", 900*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SESSION_TIMEOUT: %w", err)
	}
	cfg.SessionSecure, err = getEnvBool("DS_SESSION_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("DS_SESSION_SECURE: %w", err)
	}

	// --- OCR ---

	cfg.OCRBackend = strings.ToLower(getEnvDefault("DS_OCR_BACKEND", OCRBackendVision))
	switch cfg.OCRBackend {
	case OCRBackendVision:
		// Для Vision ключ обязателен
		if cfg.OCRAPIKey, err = getEnvRequired("DS_OCR_API_KEY"); err != nil {
			return nil, err
		}
	case OCRBackendTesseract:
		cfg.OCRAPIKey = getEnvDefault("DS_OCR_API_KEY", "")
	default:
		return nil, fmt.Errorf("DS_OCR_BACKEND: недопустимое значение %q, допустимые: vision, tesseract", cfg.OCRBackend)
	}
	cfg.OCREndpoint = getEnvDefault("DS_OCR_ENDPOINT", "https://vision.googleapis.com/v1/images:annotate")
	cfg.OCRLanguages = parseCSV(getEnvDefault("DS_OCR_LANGUAGES", "eng"))
	cfg.OCRTimeout, err = getEnvDuration("DS_OCR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_OCR_TIMEOUT: %w", err)
	}

	// --- Реестр ---

	if cfg.RegistryURL, err = getEnvRequired("DS_REGISTRY_URL"); err != nil {
		return nil, err
	}
	cfg.RegistryURL = strings.TrimRight(cfg.RegistryURL, "/")
	cfg.RegistryTimeout, err = getEnvDuration("DS_REGISTRY_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_REGISTRY_TIMEOUT: %w", err)
	}
	cfg.RegistryMaxRetries, err = getEnvInt("DS_REGISTRY_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("DS_REGISTRY_MAX_RETRIES: %w", err)
	}
	if cfg.RegistryMaxRetries < 1 {
		return nil, fmt.Errorf("DS_REGISTRY_MAX_RETRIES: значение %d должно быть не меньше 1", cfg.RegistryMaxRetries)
	}
	cfg.RegistryCacheSize, err = getEnvInt("DS_REGISTRY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("DS_REGISTRY_CACHE_SIZE: %w", err)
	}
	cfg.RegistryCacheTTL, err = getEnvDuration("DS_REGISTRY_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_REGISTRY_CACHE_TTL: %w", err)
	}

	// --- CRM ---

	cfg.CRMDomain = strings.TrimRight(getEnvDefault("DS_CRM_DOMAIN", "login.salesforce.com"), "/")
	cfg.CRMClientID = getEnvDefault("DS_CRM_CLIENT_ID", "")
	cfg.CRMClientSecret = getEnvDefault("DS_CRM_CLIENT_SECRET", "")
	cfg.CRMRedirectURL = getEnvDefault("DS_CRM_REDIRECT_URL", "")
	cfg.CRMAPIVersion = getEnvDefault("DS_CRM_API_VERSION", "v58.0")
	cfg.CRMTimeout, err = getEnvDuration("DS_CRM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_CRM_TIMEOUT: %w", err)
	}
	cfg.CRMTokenTTL, err = getEnvDuration("DS_CRM_TOKEN_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_CRM_TOKEN_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("DS_DEPHEALTH_GROUP", "dotscan")
	cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// CRMEnabled сообщает, настроена ли интеграция с CRM.
func (c *Config) CRMEnabled() bool {
	return c.CRMClientID != "" && c.CRMClientSecret != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения (для dephealth и migrate).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми. Пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
