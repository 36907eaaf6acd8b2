package pages

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/ui/i18n"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// CarriersData — данные дашборда перевозчиков.
type CarriersData struct {
	Items  []model.CarrierListItem
	Offset int
	Limit  int
	// Sync — последний статус выгрузки в CRM по номеру
	Sync map[string]*model.SyncStatus
	// Filter — фильтры в исходном виде для ссылок пагинации
	Filter url.Values
}

// LookupHistoryData — данные дашборда истории распознаваний.
type LookupHistoryData struct {
	Items     []model.LookupHistoryItem
	Offset    int
	Limit     int
	ValidOnly bool
	// Highlight — идентификаторы результатов только что обработанной загрузки
	Highlight map[int64]bool
}

// CarrierDetailsData — карточка перевозчика. Carrier == nil — номер не найден.
type CarrierDetailsData struct {
	USDOT   string
	Carrier *model.Carrier
	Sync    []*model.SyncHistory
}

func filterSuffix(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	return "&" + v.Encode()
}

// CarriersDashboard — таблица перевозчиков организации.
func CarriersDashboard(user User, data CarriersData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw("<h1>")
		h.text(i18n.T(ctx, "carriers.title"))
		h.raw(`</h1><div class="toolbar">`)
		uploadForm(ctx, h)
		h.link("/data/export/carriers?format=csv", i18n.T(ctx, "export.csv"))
		h.link("/data/export/carriers?format=xlsx", i18n.T(ctx, "export.xlsx"))
		h.raw(`</div>`)

		if len(data.Items) == 0 {
			h.raw(`<p class="empty">`)
			h.text(i18n.T(ctx, "carriers.empty"))
			h.raw("</p>")
			return h.err
		}

		h.raw(`<table class="grid"><thead><tr>`)
		for _, key := range []string{
			"col.usdot", "col.legal_name", "col.phone", "col.mailing_address", "col.created_at",
			"col.interested", "col.contacted", "col.followed_up", "col.emailed", "col.follow_up_by", "col.crm",
		} {
			h.raw("<th>")
			h.text(i18n.T(ctx, key))
			h.raw("</th>")
		}
		h.raw("</tr></thead><tbody>")
		for _, it := range data.Items {
			h.raw("<tr><td>")
			h.link("/dashboards/carrier_details/"+url.PathEscape(it.USDOT), it.USDOT)
			for _, v := range []string{
				orDash(it.LegalName),
				orDash(it.Phone),
				orDash(it.MailingAddress),
				it.CreatedAt.UTC().Format(timestampLayout),
				yesNo(ctx, it.Interested),
				yesNo(ctx, it.Contacted),
				yesNo(ctx, it.FollowedUp),
				yesNo(ctx, it.Emailed),
			} {
				h.raw("</td><td>")
				h.text(v)
			}
			h.raw("</td><td>")
			if it.FollowUpByDate != nil {
				h.text(it.FollowUpByDate.Format(dateLayout))
			} else {
				h.text("-")
			}
			h.raw("</td><td>")
			if st, ok := data.Sync[it.USDOT]; ok {
				h.raw(`<span class="badge ` + syncClass(st.Status) + `">`)
				h.text(string(st.Status))
				h.raw("</span>")
			} else {
				h.text("-")
			}
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
		pager(ctx, h, "/dashboards/carriers", data.Offset, data.Limit, len(data.Items), filterSuffix(data.Filter))
		return h.err
	})
	return Layout(user, body, "carriers.title")
}

func syncClass(s model.SyncOutcome) string {
	if s == model.SyncSuccess {
		return "ok"
	}
	return "fail"
}

func uploadForm(ctx context.Context, h *html) {
	h.raw(`<form class="upload" method="post" action="/upload" enctype="multipart/form-data">`)
	h.raw(`<input type="file" name="files" accept=".png,.jpg,.jpeg,.bmp" multiple required>`)
	h.raw(`<button type="submit">`)
	h.text(i18n.T(ctx, "upload.submit"))
	h.raw("</button></form>")
}

// LookupHistoryDashboard — история распознаваний организации.
func LookupHistoryDashboard(user User, data LookupHistoryData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw("<h1>")
		h.text(i18n.T(ctx, "history.title"))
		h.raw(`</h1><div class="toolbar">`)
		uploadForm(ctx, h)
		if data.ValidOnly {
			h.link("/dashboards/lookup_history", i18n.T(ctx, "history.show_all"))
		} else {
			h.link("/dashboards/lookup_history?valid_dot_only=true", i18n.T(ctx, "history.valid_only"))
		}
		h.link("/data/export/lookup_history?format=csv", i18n.T(ctx, "export.csv"))
		h.link("/data/export/lookup_history?format=xlsx", i18n.T(ctx, "export.xlsx"))
		h.raw("</div>")

		if len(data.Items) == 0 {
			h.raw(`<p class="empty">`)
			h.text(i18n.T(ctx, "history.empty"))
			h.raw("</p>")
			return h.err
		}

		h.raw(`<table class="grid"><thead><tr>`)
		for _, key := range []string{"col.usdot", "col.legal_name", "col.phone", "col.mailing_address", "col.created_at", "col.filename"} {
			h.raw("<th>")
			h.text(i18n.T(ctx, key))
			h.raw("</th>")
		}
		h.raw("</tr></thead><tbody>")
		for _, it := range data.Items {
			if data.Highlight[it.ID] {
				h.raw(`<tr class="fresh"><td>`)
			} else {
				h.raw("<tr><td>")
			}
			if it.DOTReading != nil {
				h.link("/dot_carrier_details/"+url.PathEscape(*it.DOTReading), *it.DOTReading)
			} else {
				h.text("-")
			}
			for _, v := range []string{
				orDash(it.LegalName),
				orDash(it.Phone),
				orDash(it.MailingAddress),
				it.Timestamp.UTC().Format(timestampLayout),
				it.Filename,
			} {
				h.raw("</td><td>")
				h.text(v)
			}
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
		extra := ""
		if data.ValidOnly {
			extra = "&valid_dot_only=true"
		}
		pager(ctx, h, "/dashboards/lookup_history", data.Offset, data.Limit, len(data.Items), extra)
		return h.err
	})
	return Layout(user, body, "history.title")
}

// CarrierDetails — карточка перевозчика с журналом выгрузок в CRM.
func CarrierDetails(user User, data CarrierDetailsData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw("<h1>")
		h.text(i18n.Tf(ctx, "details.title", data.USDOT))
		h.raw("</h1>")

		c := data.Carrier
		if c == nil {
			h.raw(`<p class="empty">`)
			h.text(i18n.Tf(ctx, "details.not_found", data.USDOT))
			h.raw("</p>")
			return h.err
		}

		h.raw(`<p class="subtitle">`)
		h.text(c.DisplayName())
		h.raw("</p>")
		if c.URL != nil && isHTTPURL(*c.URL) {
			h.raw(`<p><a rel="noopener" target="_blank"`)
			h.attr("href", *c.URL)
			h.raw(">")
			h.text(i18n.T(ctx, "details.registry_link"))
			h.raw("</a></p>")
		}

		h.raw(`<dl class="fields">`)
		for _, f := range c.Fields() {
			h.raw("<dt>")
			h.text(f.Column)
			h.raw("</dt><dd>")
			h.text(fieldValue(f.Ptr))
			h.raw("</dd>")
		}
		h.raw("</dl>")

		h.raw("<h2>")
		h.text(i18n.T(ctx, "details.sync_history"))
		h.raw("</h2>")
		if len(data.Sync) == 0 {
			h.raw(`<p class="empty">`)
			h.text(i18n.T(ctx, "details.sync_empty"))
			h.raw("</p>")
			return h.err
		}
		h.raw(`<table class="grid"><tbody>`)
		for _, s := range data.Sync {
			h.raw("<tr><td>")
			h.text(s.Timestamp.UTC().Format(timestampLayout))
			h.raw(`</td><td><span class="badge ` + syncClass(s.Status) + `">`)
			h.text(string(s.Status))
			h.raw("</span></td><td>")
			h.text(orDash(s.Detail))
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
		return h.err
	})
	return Layout(user, body, "details.title", data.USDOT)
}

// fieldValue форматирует значение **string или **int64 из Carrier.Fields.
func fieldValue(ptr any) string {
	switch p := ptr.(type) {
	case **string:
		return orDash(*p)
	case **int64:
		if *p == nil {
			return "-"
		}
		return strconv.FormatInt(**p, 10)
	}
	return "-"
}

// isHTTPURL пропускает только http(s)-ссылки из данных реестра.
func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
