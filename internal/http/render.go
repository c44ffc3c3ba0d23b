package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/parcel-express/internal/contact"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/site"
	"github.com/example/parcel-express/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "services", "how-it-works", "rate-card", "contact", "admin", "rider", "login"}

type renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"price": models.FormatPrice,
	"phone": contact.FormatPhoneNumber,
	// html/template drops tel: URLs unless marked safe.
	"tel":   func(phone string) template.URL { return template.URL(contact.TelLink(phone)) },
	"date":  func(t time.Time) string { return t.Local().Format("02 Jan 2006, 15:04") },
	"lines": nonEmptyLines,
	"topic": upload.Topic,
	"next": func(s models.OrderStatus) string {
		n, _ := s.Next()
		return string(n)
	},
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		r.pages[name] = t
	}
	return r, nil
}

// view is what every template receives.
type view struct {
	Page    string
	Meta    site.PageMeta
	Site    *site.Content
	Contact contact.Config
	Session identity.Session
	Flash   *flash
	// Live turns on the page's websocket when set.
	Live bool
	Data any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, live bool, data any) {
	v := view{
		Page:    page,
		Meta:    s.site.Meta(page),
		Site:    s.site,
		Contact: s.contact,
		Session: identity.FromContext(r.Context()),
		Flash:   takeFlash(w, r),
		Live:    live,
		Data:    data,
	}
	var buf bytes.Buffer
	if err := s.pages.pages[page].ExecuteTemplate(&buf, "layout", v); err != nil {
		s.logger.Error("render_failed", "page", page, "error", err, "request_id", requestIDFromContext(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

const flashCookie = "px_flash"

// flash is a one-shot notification shown on the next rendered page.
type flash struct {
	Kind    string
	Message string
}

func setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + "|" + message),
		Path:     "/",
		MaxAge:   30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func takeFlash(w http.ResponseWriter, r *http.Request) *flash {
	ck, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	raw, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(raw, "|")
	if !ok || msg == "" {
		return nil
	}
	return &flash{Kind: kind, Message: msg}
}

// done reports a finished action and sends the browser back to target.
func (s *Server) done(w http.ResponseWriter, r *http.Request, target string, err error, success string) {
	if err != nil {
		setFlash(w, "error", "Error: "+err.Error())
	} else {
		setFlash(w, "success", success)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
