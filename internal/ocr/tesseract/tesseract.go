// Пакет tesseract — локальный OCR через libtesseract (gosseract).
// Требует установленных tesseract и языковых данных.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/bigkaa/dotscan/internal/ocr"
)

// Engine распознаёт текст локально; клиент создаётся на каждый запрос,
// так как gosseract.Client не потокобезопасен.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
	observe       func(engine string, err error)
}

// New создаёт движок с заданными языками (например, "eng").
func New(languages []string) *Engine {
	return &Engine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
		observe:       ocr.Observe,
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize возвращает распознанный текст изображения.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	text, err := e.recognize(ctx, image)
	e.observe(e.Name(), err)
	return text, err
}

func (e *Engine) recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("установка языков tesseract: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("передача изображения в tesseract: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("распознавание tesseract: %w", err)
	}
	return strings.TrimSpace(text), nil
}
