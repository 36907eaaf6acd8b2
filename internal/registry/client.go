// Пакет registry — поиск перевозчика в публичном реестре (снимок компании
// SAFER) и приведение ответа к записи carrier_data.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// ErrNotFound — реестр не знает такого номера.
var ErrNotFound = errors.New("перевозчик не найден в реестре")

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotscan_registry_lookups_total",
	Help: "Количество запросов к реестру перевозчиков",
}, []string{"result"}) // result: found, not_found, error

// Client — HTTP-клиент сервиса снимков реестра.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
	logger     *slog.Logger
}

// NewClient создаёт клиент реестра. maxTries — число попыток на запрос (≥1).
func NewClient(baseURL string, timeout time.Duration, maxTries int, logger *slog.Logger) *Client {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxTries:   uint(maxTries),
		logger:     logger.With(slog.String("component", "registry_client")),
	}
}

// Snapshot возвращает вложенный снимок компании (GET /snapshot/{usdot}).
// 404 — ErrNotFound. Сетевые ошибки, 429 и 5xx повторяются.
func (c *Client) Snapshot(ctx context.Context, usdot string) (map[string]any, error) {
	reqURL := c.baseURL + "/snapshot/" + url.PathEscape(usdot)

	return backoff.Retry(ctx, func() (map[string]any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("создание запроса к реестру: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("запрос к реестру: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("реестр вернул статус %d: %s", resp.StatusCode, string(body))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, backoff.Permanent(fmt.Errorf("реестр вернул статус %d: %s", resp.StatusCode, string(body)))
		}

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		var snapshot map[string]any
		if err := dec.Decode(&snapshot); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("декодирование снимка реестра: %w", err))
		}
		if len(snapshot) == 0 {
			return nil, backoff.Permanent(ErrNotFound)
		}
		return snapshot, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
}

// Lookup ищет перевозчика и никогда не возвращает ошибку: любой сбой
// превращается в неуспешный результат с одним только номером.
func (c *Client) Lookup(ctx context.Context, usdot string) model.CarrierLookup {
	c.logger.Info("Поиск перевозчика в реестре", slog.String("usdot", usdot))

	snapshot, err := c.Snapshot(ctx, usdot)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			lookupsTotal.WithLabelValues("not_found").Inc()
			c.logger.Warn("Перевозчик не найден в реестре", slog.String("usdot", usdot))
		} else {
			lookupsTotal.WithLabelValues("error").Inc()
			c.logger.Error("Ошибка запроса к реестру",
				slog.String("usdot", usdot),
				slog.String("error", err.Error()),
			)
		}
		return model.FailedLookup(usdot)
	}

	flat := Flatten(snapshot)
	if got := snapshotUSDOT(flat); got != "" && got != usdot {
		c.logger.Warn("Номер в ответе реестра отличается от запрошенного",
			slog.String("usdot", usdot),
			slog.String("registry_usdot", got),
		)
	}
	carrier, err := ToCarrier(usdot, flat)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.Error("Некорректный снимок реестра",
			slog.String("usdot", usdot),
			slog.String("error", err.Error()),
		)
		return model.FailedLookup(usdot)
	}

	lookupsTotal.WithLabelValues("found").Inc()
	return model.CarrierLookup{Carrier: *carrier, Success: true}
}
