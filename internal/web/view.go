package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/pkg"

	"github.com/microcosm-cc/bluemonday"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageTemplates = []string{
	"home.html",
	"post.html",
	"login.html",
	"register.html",
	"loading.html",
	"message.html",
	"user_dashboard.html",
	"user_posts.html",
	"user_comments.html",
	"post_form.html",
	"admin_dashboard.html",
	"admin_posts.html",
	"admin_comments.html",
	"admin_users.html",
}

type Link struct {
	Label string
	Href  string
}

// DashboardLink is the header link of a logged-in user: admins go to the
// admin console, everybody else to the user dashboard.
func DashboardLink(user *session.UserProfile) Link {
	if user != nil && user.IsAdmin {
		return Link{Label: "Admin Panel", Href: "/admin"}
	}
	return Link{Label: "Dashboard", Href: "/dashboard"}
}

type Header struct {
	Authenticated bool
	Username      string
	Panel         Link
	// LogoutZone picks the login page shown after logout
	LogoutZone session.Zone
	Links      []Link
	RssURL     string
}

func NewHeader(snap session.Snapshot, rssURL string) Header {
	h := Header{RssURL: rssURL}
	if !snap.IsAuthenticated() {
		h.Links = []Link{
			{Label: "User Login", Href: "/login"},
			{Label: "Admin Login", Href: "/admin/login"},
		}
		return h
	}

	h.Authenticated = true
	h.Username = snap.User.Username
	h.Panel = DashboardLink(snap.User)
	h.LogoutZone = session.ZoneUser
	if snap.IsAdmin() {
		h.LogoutZone = session.ZoneAdmin
	}
	return h
}

type pageData struct {
	Title  string
	Header Header
	Flash  string
	Error  string
	// WatchZone, when set, makes the page follow session changes of that
	// guarded zone
	WatchZone session.Zone
	Data      interface{}
}

type views struct {
	templates map[string]*template.Template
}

// postPolicy keeps formatting markup of user written posts and drops
// scripts, event handlers and unsafe urls.
var postPolicy = bluemonday.UGCPolicy()

var templateFuncs = template.FuncMap{
	"pageURL": func(lq ListQuery, path string, page int) string {
		return lq.PageURL(path, page)
	},
	"tagNames": func(tags []backend.Tag) string {
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			names = append(names, t.Name)
		}
		return strings.Join(names, ", ")
	},
	// post content is stored as HTML written by any registered user
	"postHTML": func(s string) template.HTML {
		return template.HTML(postPolicy.Sanitize(s))
	},
	"derefInt": func(i *int) int {
		if i == nil {
			return 0
		}
		return *i
	},
}

func loadViews() (*views, error) {
	v := &views{templates: make(map[string]*template.Template)}
	for _, name := range pageTemplates {
		tmpl, err := template.New(name).
			Funcs(templateFuncs).
			ParseFS(templatesFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.templates[name] = tmpl
	}
	return v, nil
}

func (v *views) render(w http.ResponseWriter, status int, name string, data *pageData) {
	tmpl, ok := v.templates[name]
	if !ok {
		log.Errorf("render: unknown template %s", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Errorf("render %s: %s", name, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.HTML, buf.Bytes(), status)
}
