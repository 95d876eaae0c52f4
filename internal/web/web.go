package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/blogportal/internal/authclient"
	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/cache"
	"github.com/2beens/blogportal/internal/guard"
	"github.com/2beens/blogportal/internal/middleware"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// maxUploadBytes limits post forms carrying a featured image
const maxUploadBytes = 10 << 20

// doneMessages are the flash messages shown after a redirect, keyed by the
// "done" query param.
var doneMessages = map[string]string{
	"post-saved":        "Post saved",
	"post-deleted":      "Post deleted",
	"comment-posted":    "Comment posted",
	"comment-pending":   "Thank you! Your comment was submitted and will appear once a moderator approves it",
	"comment-saved":     "Comment updated",
	"comment-deleted":   "Comment deleted",
	"comment-moderated": "Comment moderated",
	"user-deleted":      "User deleted",
}

type PortalParams struct {
	Api                  *backend.Client
	Posts                *cache.PostsCache
	MetricsManager       *metrics.Manager
	RateLimiter          middleware.RequestRateLimiter
	LoginRateLimitPerMin int
	RssFeedURL           string
	// WatchHeartbeat is the ping period of session watch streams
	WatchHeartbeat time.Duration
}

// Portal serves the public blog, the user portal and the admin console.
type Portal struct {
	api            *backend.Client
	posts          *cache.PostsCache
	views          *views
	metricsManager *metrics.Manager

	rateLimiter          middleware.RequestRateLimiter
	loginRateLimitPerMin int
	rssFeedURL           string
	watchHeartbeat       time.Duration
}

func NewPortal(params PortalParams) (*Portal, error) {
	v, err := loadViews()
	if err != nil {
		return nil, fmt.Errorf("load views: %w", err)
	}
	return &Portal{
		api:                  params.Api,
		posts:                params.Posts,
		views:                v,
		metricsManager:       params.MetricsManager,
		rateLimiter:          params.RateLimiter,
		loginRateLimitPerMin: params.LoginRateLimitPerMin,
		rssFeedURL:           params.RssFeedURL,
		watchHeartbeat:       params.WatchHeartbeat,
	}, nil
}

// SetupRoutes registers all portal pages on router. The router must already
// run the session provider middleware.
func (p *Portal) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/", p.handleHome).Methods("GET").Name("home")
	router.HandleFunc("/tag/{slug}", p.handleHome).Methods("GET").Name("tag")
	router.HandleFunc("/blog/{slug}", p.handlePost).Methods("GET").Name("post")
	router.HandleFunc("/blog/{slug}/comments", p.handleNewComment).Methods("POST").Name("new-comment")
	router.HandleFunc("/rss", p.handleRSS).Methods("GET").Name("rss")

	// registered before the admin zone, so /admin/login stays unguarded
	authRouter := router.NewRoute().Subrouter()
	authRouter.HandleFunc("/login", p.handleLogin(guard.UserZone)).Methods("GET", "POST").Name("user-login")
	authRouter.HandleFunc("/register", p.handleRegister(guard.UserZone)).Methods("GET", "POST").Name("user-register")
	authRouter.HandleFunc("/admin/login", p.handleLogin(guard.AdminZone)).Methods("GET", "POST").Name("admin-login")
	authRouter.HandleFunc("/admin/register", p.handleRegister(guard.AdminZone)).Methods("GET", "POST").Name("admin-register")
	authRouter.HandleFunc("/logout", p.handleLogout).Methods("POST").Name("logout")
	if p.rateLimiter != nil {
		authRouter.Use(middleware.RateLimit(p.rateLimiter, "login", p.loginRateLimitPerMin, p.metricsManager))
	}

	router.HandleFunc("/session/watch/{zone}", p.handleWatch).Methods("GET").Name("session-watch")

	userRouter := router.NewRoute().Subrouter()
	userRouter.HandleFunc("/dashboard", p.handleUserDashboard).Methods("GET").Name("user-dashboard")
	userRouter.HandleFunc("/user/dashboard", p.handleUserDashboard).Methods("GET").Name("user-dashboard-alias")
	userRouter.HandleFunc("/user/posts", p.handleUserPosts).Methods("GET").Name("user-posts")
	userRouter.HandleFunc("/user/posts/new", p.handlePostForm(guard.UserZone, "/user/posts")).Methods("GET", "POST").Name("user-new-post")
	userRouter.HandleFunc("/user/posts/{id:[0-9]+}/edit", p.handlePostForm(guard.UserZone, "/user/posts")).Methods("GET", "POST").Name("user-edit-post")
	userRouter.HandleFunc("/user/posts/{id:[0-9]+}/delete", p.handleDeletePost(guard.UserZone, "/user/posts")).Methods("POST").Name("user-delete-post")
	userRouter.HandleFunc("/user/comments", p.handleUserComments).Methods("GET").Name("user-comments")
	userRouter.HandleFunc("/user/comments/{id:[0-9]+}/edit", p.handleEditComment(guard.UserZone, "/user/comments")).Methods("POST").Name("user-edit-comment")
	userRouter.HandleFunc("/user/comments/{id:[0-9]+}/delete", p.handleDeleteComment(guard.UserZone, "/user/comments")).Methods("POST").Name("user-delete-comment")
	userRouter.Use(guard.Middleware(guard.UserZone, p.loadingHandler(), p.metricsManager))

	adminRouter := router.NewRoute().Subrouter()
	adminRouter.HandleFunc("/admin", p.handleAdminDashboard).Methods("GET").Name("admin-dashboard")
	adminRouter.HandleFunc("/admin/posts", p.handleAdminPosts).Methods("GET").Name("admin-posts")
	adminRouter.HandleFunc("/admin/posts/new", p.handlePostForm(guard.AdminZone, "/admin/posts")).Methods("GET", "POST").Name("admin-new-post")
	adminRouter.HandleFunc("/admin/posts/{id:[0-9]+}/edit", p.handlePostForm(guard.AdminZone, "/admin/posts")).Methods("GET", "POST").Name("admin-edit-post")
	adminRouter.HandleFunc("/admin/posts/{id:[0-9]+}/delete", p.handleDeletePost(guard.AdminZone, "/admin/posts")).Methods("POST").Name("admin-delete-post")
	adminRouter.HandleFunc("/admin/comments", p.handleAdminComments).Methods("GET").Name("admin-comments")
	adminRouter.HandleFunc("/admin/comments/{id:[0-9]+}/moderate", p.handleModerateComment).Methods("POST").Name("admin-moderate-comment")
	adminRouter.HandleFunc("/admin/comments/{id:[0-9]+}/edit", p.handleEditComment(guard.AdminZone, "/admin/comments")).Methods("POST").Name("admin-edit-comment")
	adminRouter.HandleFunc("/admin/comments/{id:[0-9]+}/delete", p.handleDeleteComment(guard.AdminZone, "/admin/comments")).Methods("POST").Name("admin-delete-comment")
	adminRouter.HandleFunc("/admin/users", p.handleAdminUsers).Methods("GET").Name("admin-users")
	adminRouter.HandleFunc("/admin/users/{id:[0-9]+}/delete", p.handleDeleteUser).Methods("POST").Name("admin-delete-user")
	adminRouter.Use(guard.Middleware(guard.AdminZone, p.loadingHandler(), p.metricsManager))

	// all the rest - unhandled paths
	router.PathPrefix("/").HandlerFunc(p.handleNotFound).Name("unknown")
}

func (p *Portal) loadingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.views.render(w, http.StatusOK, "loading.html", p.page(r, "Loading"))
	})
}

func (p *Portal) handleWatch(w http.ResponseWriter, r *http.Request) {
	cfg, ok := guard.ForZone(session.Zone(mux.Vars(r)["zone"]))
	if !ok {
		http.NotFound(w, r)
		return
	}
	guard.WatchHandler(cfg, p.watchHeartbeat)(w, r)
}

func (p *Portal) handleNotFound(w http.ResponseWriter, r *http.Request) {
	data := p.page(r, "Page not found")
	data.Data = "The page you are looking for does not exist."
	p.views.render(w, http.StatusNotFound, "message.html", data)
}

// page returns the common page data of the requesting client.
func (p *Portal) page(r *http.Request, title string) *pageData {
	snap := session.Snapshot{}
	if m, ok := session.FromContext(r.Context()); ok {
		snap = m.Snapshot()
	}
	return &pageData{
		Title:  title,
		Header: NewHeader(snap, p.rssFeedURL),
		Flash:  doneMessages[r.URL.Query().Get("done")],
	}
}

// guardedPage is page for a guarded zone, with the session watch enabled.
func (p *Portal) guardedPage(r *http.Request, cfg guard.Config, title string) *pageData {
	data := p.page(r, title)
	data.WatchZone = cfg.Zone
	return data
}

// authed returns the bearer token and profile of a guarded request.
func authed(r *http.Request) (string, *session.UserProfile) {
	m, ok := session.FromContext(r.Context())
	if !ok {
		return "", nil
	}
	return m.Token(), m.Snapshot().User
}

// authedUser is authed for handlers that need the profile. A session that
// ended after the guard ran sends the client to the zone login.
func authedUser(w http.ResponseWriter, r *http.Request, cfg guard.Config) (string, *session.UserProfile, bool) {
	token, user := authed(r)
	if user == nil {
		http.Redirect(w, r, cfg.LoginPath, http.StatusSeeOther)
		return "", nil, false
	}
	return token, user, true
}

// UserMessage is the text shown for err. Server messages are shown verbatim.
func UserMessage(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, session.ErrInitializing):
		return "Your session is still loading, please try again in a moment"
	case errors.Is(err, backend.ErrNetwork):
		return "Could not reach the server, please try again later"
	case errors.Is(err, session.ErrInvalidSession):
		return backend.FallbackMessage
	default:
		return err.Error()
	}
}

// StatusFor maps err to the status code of the page rendering it.
func StatusFor(err error) int {
	var (
		validationErr *ValidationError
		authErr       *authclient.Error
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInitializing):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrNetwork):
		return http.StatusBadGateway
	case errors.As(err, &authErr) && authErr.Status >= 400:
		return authErr.Status
	}
	if status := backend.StatusOf(err); status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}

// fail renders the failure of a backend call on a guarded page. A rejected
// token ends the session and sends the client to the zone login.
func (p *Portal) fail(w http.ResponseWriter, r *http.Request, cfg guard.Config, what string, err error) {
	log.Errorf("%s: %s", what, err)

	if backend.StatusOf(err) == http.StatusUnauthorized {
		if m, ok := session.FromContext(r.Context()); ok {
			if logoutErr := m.Logout(r.Context()); logoutErr != nil {
				log.Warnf("%s: logout after rejected token: %s", what, logoutErr)
			}
		}
		http.Redirect(w, r, cfg.LoginPath, http.StatusSeeOther)
		return
	}

	data := p.guardedPage(r, cfg, "Something went wrong")
	data.Error = UserMessage(err)
	p.views.render(w, StatusFor(err), "message.html", data)
}

func redirectDone(w http.ResponseWriter, r *http.Request, path, done string) {
	http.Redirect(w, r, path+"?done="+done, http.StatusSeeOther)
}

func idVar(r *http.Request) int {
	// routes only match digits
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}
