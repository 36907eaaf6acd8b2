package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockVision создаёт mock-сервер images:annotate.
func setupMockVision(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// TestVisionEngine_Recognize проверяет формат запроса и разбор ответа.
func TestVisionEngine_Recognize(t *testing.T) {
	image := []byte("fake-png-bytes")

	server := setupMockVision(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, хотели test-key", got)
		}

		var req visionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("ошибка декодирования запроса: %v", err)
		}
		if len(req.Requests) != 1 {
			t.Fatalf("ожидался 1 запрос, получено %d", len(req.Requests))
		}
		decoded, _ := base64.StdEncoding.DecodeString(req.Requests[0].Image.Content)
		if string(decoded) != string(image) {
			t.Error("содержимое изображения не совпадает")
		}
		if req.Requests[0].Features[0].Type != "TEXT_DETECTION" {
			t.Errorf("feature = %q, хотели TEXT_DETECTION", req.Requests[0].Features[0].Type)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"responses":[{"textAnnotations":[
			{"description":"ACME\nUSDOT 123456"},
			{"description":"ACME"}]}]}`))
	})

	engine := NewVisionEngine(server.URL, "test-key", 5*time.Second, testLogger())
	text, err := engine.Recognize(context.Background(), image)
	if err != nil {
		t.Fatalf("Ошибка Recognize: %v", err)
	}
	if text != "ACME\nUSDOT 123456" {
		t.Errorf("text = %q, ожидался полный текст первой аннотации", text)
	}
}

// TestVisionEngine_NoText проверяет пустой ответ без аннотаций.
func TestVisionEngine_NoText(t *testing.T) {
	server := setupMockVision(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responses":[{}]}`))
	})

	engine := NewVisionEngine(server.URL, "k", 5*time.Second, testLogger())
	text, err := engine.Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Ошибка Recognize: %v", err)
	}
	if text != "" {
		t.Errorf("ожидалась пустая строка, получено %q", text)
	}
}

// TestVisionEngine_APIError проверяет ошибку в теле ответа.
func TestVisionEngine_APIError(t *testing.T) {
	var calls atomic.Int32
	server := setupMockVision(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	})

	engine := NewVisionEngine(server.URL, "k", 5*time.Second, testLogger())
	if _, err := engine.Recognize(context.Background(), []byte("x")); err == nil {
		t.Fatal("ожидалась ошибка Vision API")
	}
	if calls.Load() != 1 {
		t.Errorf("ошибка API не должна повторяться, вызовов: %d", calls.Load())
	}
}

// TestVisionEngine_ClientErrorNotRetried проверяет, что 4xx не повторяется.
func TestVisionEngine_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := setupMockVision(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"API key invalid"}}`))
	})

	engine := NewVisionEngine(server.URL, "k", 5*time.Second, testLogger())
	if _, err := engine.Recognize(context.Background(), []byte("x")); err == nil {
		t.Fatal("ожидалась ошибка для 403")
	}
	if calls.Load() != 1 {
		t.Errorf("ожидался 1 вызов, получено %d", calls.Load())
	}
}

// TestVisionEngine_RetriesServerError проверяет повтор после 503.
func TestVisionEngine_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := setupMockVision(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"responses":[{"textAnnotations":[{"description":"DOT-42"}]}]}`))
	})

	engine := NewVisionEngine(server.URL, "k", 5*time.Second, testLogger())
	text, err := engine.Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Ошибка Recognize: %v", err)
	}
	if text != "DOT-42" {
		t.Errorf("text = %q, хотели DOT-42", text)
	}
	if calls.Load() != 2 {
		t.Errorf("ожидалось 2 вызова, получено %d", calls.Load())
	}
}
