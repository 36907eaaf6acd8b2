// Пакет pages — серверные HTML-страницы dotscan (templ-компоненты).
package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bigkaa/dotscan/internal/ui/i18n"
)

// User — данные пользователя для шапки страницы. Пустой UserID — гость.
type User struct {
	UserID       string
	Name         string
	Picture      string
	CRMConnected bool
}

// html накапливает первую ошибку записи.
type html struct {
	w   io.Writer
	err error
}

// raw пишет разметку без экранирования.
func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

// text пишет экранированный текст.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// attr пишет атрибут name="value" с экранированием.
func (h *html) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

func (h *html) link(href, label string) {
	h.raw("<a")
	h.attr("href", href)
	h.raw(">")
	h.text(label)
	h.raw("</a>")
}

func (h *html) component(ctx context.Context, c templ.Component) {
	if h.err != nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// Layout — общий каркас страницы с навигацией.
// Заголовок — ключ каталога переводов с аргументами.
func Layout(user User, body templ.Component, titleKey string, args ...any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		lang := i18n.LangFromContext(ctx)

		h.raw(`<!DOCTYPE html><html lang="` + lang + `"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw("<title>")
		h.text(i18n.Tf(ctx, titleKey, args...) + " · dotscan")
		h.raw(`</title><link rel="stylesheet" href="/static/css/app.css"></head><body>`)

		h.raw(`<header class="topbar"><a class="brand" href="/">dotscan</a><nav>`)
		if user.UserID != "" {
			h.link("/dashboards/carriers", i18n.T(ctx, "nav.carriers"))
			h.link("/dashboards/lookup_history", i18n.T(ctx, "nav.lookup_history"))
			if user.CRMConnected {
				h.raw(`<span class="badge ok">`)
				h.text(i18n.T(ctx, "crm.connected"))
				h.raw("</span>")
			} else {
				h.link("/salesforce/connect", i18n.T(ctx, "crm.connect"))
			}
		}
		h.raw("</nav>")
		langSwitch(ctx, h, lang)
		if user.UserID != "" {
			h.raw(`<div class="user">`)
			if user.Picture != "" {
				h.raw(`<img class="avatar" alt=""`)
				h.attr("src", user.Picture)
				h.raw(">")
			}
			h.text(user.Name)
			h.raw(" ")
			h.link("/logout", i18n.T(ctx, "nav.logout"))
			h.raw("</div>")
		}
		h.raw("</header><main>")
		h.component(ctx, body)
		h.raw("</main></body></html>")
		return h.err
	})
}

func langSwitch(ctx context.Context, h *html, current string) {
	other := "ru"
	if current == "ru" {
		other = "en"
	}
	h.raw(`<form class="lang" method="post" action="/set-language">`)
	h.raw(`<input type="hidden" name="lang"`)
	h.attr("value", other)
	h.raw(`><button type="submit">`)
	h.text(i18n.T(ctx, "lang."+other))
	h.raw("</button></form>")
}

// Landing — стартовая страница.
func Landing(user User) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="hero"><h1>`)
		h.text(i18n.T(ctx, "landing.title"))
		h.raw("</h1><p>")
		h.text(i18n.T(ctx, "landing.subtitle"))
		h.raw(`</p><div class="actions">`)
		if user.UserID != "" {
			h.link("/dashboards/carriers", i18n.T(ctx, "landing.open_dashboard"))
		} else {
			h.link("/login", i18n.T(ctx, "landing.login"))
			h.link("/signup", i18n.T(ctx, "landing.signup"))
		}
		h.raw("</div></section>")
		return h.err
	})
	return Layout(user, body, "landing.page_title")
}

// pager выводит ссылки на соседние страницы списка.
func pager(ctx context.Context, h *html, base string, offset, limit, rows int, extra string) {
	h.raw(`<nav class="pager">`)
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		h.link(base+"?offset="+strconv.Itoa(prev)+"&limit="+strconv.Itoa(limit)+extra, i18n.T(ctx, "pager.prev"))
	}
	if rows == limit {
		h.link(base+"?offset="+strconv.Itoa(offset+limit)+"&limit="+strconv.Itoa(limit)+extra, i18n.T(ctx, "pager.next"))
	}
	h.raw("</nav>")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func yesNo(ctx context.Context, v bool) string {
	if v {
		return i18n.T(ctx, "common.yes")
	}
	return i18n.T(ctx, "common.no")
}
