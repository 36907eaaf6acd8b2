// Пакет i18n — интернационализация веб-интерфейса dotscan.
// Страницы получают строки через T(ctx, key) и Tf(ctx, key, args...).
// Поддерживаемые языки: English (en), Русский (ru).
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang — язык по умолчанию и запасной каталог.
const DefaultLang = "en"

// Languages — коды поддерживаемых языков, порядок совпадает с tags.
var Languages = []string{"en", "ru"}

var (
	tags    = []language.Tag{language.English, language.Russian}
	matcher = language.NewMatcher(tags)
)

//go:embed locales/*.json
var localeFS embed.FS

type contextKey string

const contextKeyLang contextKey = "i18n_lang"

// Bundle — каталоги переводов по языкам.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
}

// NewBundle создаёт пустой Bundle.
func NewBundle() *Bundle {
	return &Bundle{catalogs: make(map[string]map[string]string)}
}

// LoadMessages загружает плоский JSON-каталог {"key": "translation"}.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка разбора каталога %s: %w", lang, err)
	}
	b.mu.Lock()
	b.catalogs[lang] = messages
	b.mu.Unlock()
	return nil
}

// Translate возвращает перевод; при отсутствии ключа — английский вариант,
// затем сам ключ.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := b.catalogs[DefaultLang][key]; ok {
		return msg
	}
	return key
}

var (
	globalMu     sync.RWMutex
	globalBundle *Bundle
)

// Load читает встроенные каталоги и делает их глобальными для T и Tf.
func Load(logger *slog.Logger) (*Bundle, error) {
	b := NewBundle()
	for _, lang := range Languages {
		path := "locales/" + lang + ".json"
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := b.LoadMessages(lang, data); err != nil {
			return nil, err
		}
	}

	globalMu.Lock()
	globalBundle = b
	globalMu.Unlock()

	logger.Info("Каталоги переводов загружены", slog.Int("languages", len(Languages)))
	return b, nil
}

func bundle() *Bundle {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalBundle
}

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKeyLang, lang)
}

// LangFromContext извлекает язык из контекста. Default: "en".
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLang).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// T возвращает перевод ключа на язык запроса.
func T(ctx context.Context, key string) string {
	b := bundle()
	if b == nil {
		return key
	}
	return b.Translate(LangFromContext(ctx), key)
}

// Tf — T с подстановкой аргументов в формат из каталога.
func Tf(ctx context.Context, key string, args ...any) string {
	format := T(ctx, key)
	if len(args) == 0 {
		return format
	}
	return sprintf(format, args...)
}

// sprintf скрывает fmt.Sprintf от printf-анализатора go vet:
// формат приходит из каталога во время выполнения.
var sprintf = fmt.Sprintf

// MatchLanguage выбирает поддерживаемый язык по Accept-Language.
func MatchLanguage(acceptLanguage string) string {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	return Languages[idx]
}

// Supported сообщает, поддерживается ли язык.
func Supported(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}
