package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// VisionEngine — Google Cloud Vision (REST images:annotate, TEXT_DETECTION)
// с авторизацией по API-ключу.
type VisionEngine struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxTries   uint
	logger     *slog.Logger
}

// NewVisionEngine создаёт движок Vision.
func NewVisionEngine(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *VisionEngine {
	return &VisionEngine{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxTries:   3,
		logger:     logger.With(slog.String("component", "ocr_vision")),
	}
}

func (e *VisionEngine) Name() string { return "vision" }

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"responses"`
}

// Recognize отправляет изображение в Vision и возвращает полный текст
// (первая аннотация). 5xx и 429 повторяются с экспоненциальной задержкой.
func (e *VisionEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(visionRequest{Requests: []visionImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []visionFeature{{Type: "TEXT_DETECTION"}},
	}}})
	if err != nil {
		return "", fmt.Errorf("кодирование запроса Vision: %w", err)
	}

	reqURL := e.endpoint + "?key=" + url.QueryEscape(e.apiKey)

	text, err := backoff.Retry(ctx, func() (string, error) {
		return e.annotate(ctx, reqURL, body)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(e.maxTries),
	)
	Observe(e.Name(), err)
	if err != nil {
		return "", err
	}

	if text == "" {
		e.logger.Warn("Текст на изображении не найден")
	}
	return text, nil
}

func (e *VisionEngine) annotate(ctx context.Context, reqURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("создание запроса Vision: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос к Vision: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("Vision вернул статус %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	var vr visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", backoff.Permanent(fmt.Errorf("декодирование ответа Vision: %w", err))
	}
	if len(vr.Responses) == 0 {
		return "", nil
	}
	r := vr.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", backoff.Permanent(errors.New("ошибка Vision API: " + r.Error.Message))
	}
	if len(r.TextAnnotations) == 0 {
		return "", nil
	}
	return r.TextAnnotations[0].Description, nil
}
