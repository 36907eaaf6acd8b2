// language.go — переключение языка интерфейса.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/bigkaa/dotscan/internal/ui/i18n"
)

// langCookieMaxAge — 1 год.
const langCookieMaxAge = 365 * 24 * 60 * 60

// HandleSetLanguage — POST /set-language. Параметр lang из формы или query.
// Неподдерживаемый язык заменяется языком по умолчанию.
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   langCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// backTo возвращает путь страницы из Referer. Внешние адреса не принимаются.
func backTo(r *http.Request) string {
	ref, err := url.Parse(r.Header.Get("Referer"))
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
