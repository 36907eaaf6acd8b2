package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

var crmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotscan_crm_requests_total",
	Help: "Количество запросов к CRM",
}, []string{"code"})

// maxBodyExcerpt — сколько байт тела ответа сохраняется для журнала.
const maxBodyExcerpt = 2048

// Attributes — служебный блок записи Composite Tree.
type Attributes struct {
	Type        string `json:"type"`
	ReferenceID string `json:"referenceId"`
}

// Account — запись Account для Composite Tree API.
type Account struct {
	Attributes     Attributes `json:"attributes"`
	Name           string     `json:"Name"`
	Phone          *string    `json:"Phone"`
	BillingStreet  *string    `json:"BillingStreet"`
	ShippingStreet *string    `json:"ShippingStreet"`
	AccountNumber  string     `json:"AccountNumber"`
	Type           *string    `json:"Type"`
	Description    *string    `json:"Description"`
	URL            *string    `json:"URL__c"`
}

// ReferenceID — идентификатор записи перевозчика внутри запроса.
func ReferenceID(usdot string) string {
	return "carrier_" + usdot
}

// AccountFromCarrier строит Account из записи перевозчика.
func AccountFromCarrier(c *model.Carrier) Account {
	return Account{
		Attributes:     Attributes{Type: "Account", ReferenceID: ReferenceID(c.USDOT)},
		Name:           c.DisplayName(),
		Phone:          c.Phone,
		BillingStreet:  c.PhysicalAddress,
		ShippingStreet: c.MailingAddress,
		AccountNumber:  c.USDOT,
		Type:           c.EntityType,
		Description:    c.USDOTStatus,
		URL:            c.URL,
	}
}

// TreeError — ошибка создания одной записи.
type TreeError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields"`
}

// TreeResult — результат по одной записи.
type TreeResult struct {
	ReferenceID string      `json:"referenceId"`
	ID          string      `json:"id"`
	Errors      []TreeError `json:"errors"`
}

// TreeResponse — тело ответа Composite Tree API.
type TreeResponse struct {
	HasErrors bool         `json:"hasErrors"`
	Results   []TreeResult `json:"results"`
}

// PushResult — итог запроса: код, фрагмент тела и разобранный ответ
// (nil, если тело не удалось разобрать).
type PushResult struct {
	StatusCode int
	Body       string
	Response   *TreeResponse
}

// Accepted — CRM ответила 2xx.
func (r *PushResult) Accepted() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client — клиент REST API CRM.
type Client struct {
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создаёт клиент; apiVersion — например, "v58.0".
func NewClient(apiVersion string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "crm_client")),
	}
}

// CreateAccounts создаёт Account-записи одним запросом.
// Ошибка возвращается только при сбое транспорта; ответ CRM с кодом
// не 2xx отдаётся в PushResult.
func (c *Client) CreateAccounts(ctx context.Context, instanceURL, accessToken string, accounts []Account) (*PushResult, error) {
	body, err := json.Marshal(map[string]any{"records": accounts})
	if err != nil {
		return nil, fmt.Errorf("кодирование записей CRM: %w", err)
	}

	reqURL := strings.TrimRight(instanceURL, "/") + "/services/data/" + c.apiVersion + "/composite/tree/Account/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса к CRM: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("Отправка перевозчиков в CRM", slog.Int("count", len(accounts)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		crmRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("запрос к CRM: %w", err)
	}
	defer resp.Body.Close()
	crmRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа CRM: %w", err)
	}

	result := &PushResult{StatusCode: resp.StatusCode, Body: excerpt(raw)}
	var tree TreeResponse
	if err := json.Unmarshal(raw, &tree); err == nil && len(tree.Results) > 0 {
		result.Response = &tree
	}

	if !result.Accepted() {
		c.logger.Error("CRM отклонила запрос",
			slog.Int("status", resp.StatusCode),
			slog.String("body", result.Body),
		)
	}
	return result, nil
}

func excerpt(b []byte) string {
	if len(b) > maxBodyExcerpt {
		b = b[:maxBodyExcerpt]
	}
	return string(b)
}

// Detail — текст ошибок записи в виде "CODE: message; CODE: message".
func (r TreeResult) Detail() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		code := e.StatusCode
		if code == "" {
			code = "UNKNOWN"
		}
		msg := e.Message
		if msg == "" {
			msg = "Unknown error"
		}
		parts = append(parts, code+": "+msg)
	}
	return strings.Join(parts, "; ")
}
